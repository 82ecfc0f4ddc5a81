/*
PURPOSE:
  Picks the trial a level reports once its inner loop stops.

REQUIREMENTS:
  - "predecessor" reports the trial before the plateau trial.
  - "highest" reports the max-IOPS trial; ties go to the lower p99 latency.

RELATED FILES:
  - internal/model/policy.go
*/

package engine

import "github.com/daryltucker/fio-tuner/internal/model"

// Better reports whether a beats b: higher IOPS first, then lower tail latency.
func Better(a, b model.Trial) bool {
	if a.IOPS != b.IOPS {
		return a.IOPS > b.IOPS
	}
	return a.TailLatencyMs < b.TailLatencyMs
}

// SelectBest picks the best trial of one level. plateau is the index of the
// trial that triggered the plateau, or -1 when the level stopped for any
// other reason. It returns false when there is no candidate.
func SelectBest(trials []model.Trial, plateau int, policy model.BestPolicy) (model.Trial, bool) {
	var (
		best  model.Trial
		found bool
	)
	for i, t := range trials {
		if i == plateau && policy == model.PolicyPredecessor {
			continue
		}
		if !found || Better(t, best) {
			best, found = t, true
		}
	}
	return best, found
}
