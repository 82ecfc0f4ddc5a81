/*
PURPOSE:
  Inner loop: doubles iodepth for one numjobs value until IOPS plateau.

REQUIREMENTS:
  User-specified:
  - iodepth starts at 1 and doubles while each run is a significant improvement.

  Implementation-discovered:
  - A minimum number of runs can be forced before a plateau is accepted.
  - The iodepth safeguard ends the level without a plateau; the caller must be told.

ERROR HANDLING:
  - A failed trial discards the level. Cancellation keeps what was measured.

RELATED FILES:
  - internal/engine/search.go
  - internal/engine/plateau.go
*/

package engine

import (
	"context"
	"errors"

	"github.com/daryltucker/fio-tuner/internal/model"
)

type innerState int

const (
	innerInit innerState = iota
	innerTrial
	innerContinue
	innerStop
)

// scanQueueDepths is the inner loop for a fixed jobCount: iodepth starts at
// 1 and doubles while every trial is a significant improvement.
//
// On a trial failure it returns a nil result: no level is made up from a
// partial scan. On cancellation the trials already measured still form a
// level, returned together with the error.
func (s *Searcher) scanQueueDepths(ctx context.Context, jobCount int) (*model.JobCountResult, error) {
	detector := Detector{Threshold: s.cfg.Threshold, Window: s.cfg.Window}

	var (
		state   = innerInit
		depth   int
		history *model.TrialHistory
		prior   []float64
		plateau = -1
		stop    model.StopReason
		err     error
	)

	for {
		switch state {
		case innerInit:
			depth = 1
			history = model.NewTrialHistory(jobCount)
			state = innerTrial

		case innerTrial:
			if err = s.beforeTrial(ctx, jobCount, depth); err != nil {
				stop = model.StopCanceled
				state = innerStop
				break
			}

			var trial model.Trial
			trial, err = s.runTrial(ctx, jobCount, depth)
			if err != nil {
				return nil, err
			}
			idx := history.Append(trial)

			dec := detector.Check(prior, trial.IOPS)
			prior = append(prior, trial.IOPS)

			switch {
			case dec.Compared == 0:
				s.record(trial, model.VerdictBaseline, dec)
				state = innerContinue
			case dec.Significant:
				s.record(trial, model.VerdictImproving, dec)
				state = innerContinue
			case history.Len() < s.cfg.MinQueueDepthRuns:
				s.record(trial, model.VerdictWarmup, dec)
				state = innerContinue
			default:
				s.record(trial, model.VerdictPlateau, dec)
				s.logger.Info("IOPS plateaued for iodepth",
					"numjobs", jobCount,
					"iodepth", depth,
					"iops", round2(trial.IOPS),
					"reference_iops", round2(dec.Reference),
					"window", dec.Compared)
				plateau = idx
				stop = model.StopPlateau
				state = innerStop
			}

		case innerContinue:
			if depth*2 > s.cfg.MaxQueueDepth {
				s.logger.Warn("iodepth safeguard limit reached without a plateau",
					"numjobs", jobCount, "iodepth", depth, "max_iodepth", s.cfg.MaxQueueDepth)
				stop = model.StopSafeguard
				state = innerStop
				break
			}
			depth *= 2
			state = innerTrial

		case innerStop:
			best, ok := SelectBest(history.Trials(), plateau, s.policy)
			if !ok {
				return nil, err
			}
			return &model.JobCountResult{
				JobCount: jobCount,
				Best:     best,
				Trials:   history.Trials(),
				Stop:     stop,
			}, err
		}
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
