/*
PURPOSE:
  Reduces the completed levels to the overall optimum.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/search.go (finish)
*/

package engine

import "github.com/daryltucker/fio-tuner/internal/model"

// Aggregate returns the level with the best trial across the whole search,
// using the same ordering as SelectBest. It returns false for no levels.
func Aggregate(levels []model.JobCountResult) (model.JobCountResult, bool) {
	best := -1
	for i := range levels {
		if best < 0 || Better(levels[i].Best, levels[best].Best) {
			best = i
		}
	}
	if best < 0 {
		return model.JobCountResult{}, false
	}
	return levels[best], true
}

// Optimum turns the winning level into the summary record.
func Optimum(level model.JobCountResult) *model.Optimum {
	return &model.Optimum{
		JobCount:      level.JobCount,
		QueueDepth:    level.Best.QueueDepth,
		IOPS:          level.Best.IOPS,
		TailLatencyMs: level.Best.TailLatencyMs,
	}
}
