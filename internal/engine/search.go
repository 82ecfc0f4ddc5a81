/*
PURPOSE:
  Adaptive search for the numjobs/iodepth pair with the highest IOPS.
  Outer loop doubles numjobs; for each value the inner loop doubles iodepth
  until IOPS stop improving by more than the threshold.

REQUIREMENTS:
  User-specified:
  - Significant improvement = strictly more than 5% over the max of the last 3 runs.
  - Stop scaling numjobs once its best result stops improving.
  - Report optimal numjobs, optimal iodepth and max IOPS.

  Implementation-discovered:
  - Safeguard limits on both parameters; hitting one is reported, not hidden.
  - Ctrl-C must not throw away what was already measured.
  - A failed or unparsable trial aborts the search; nothing is fabricated.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go
  - Uses: Invoker (internal/fio.Client in production), internal/output (logging)

ERROR HANDLING:
  - Trial failures come back as *SearchError together with the partial report.
  - Cancellation is only observed between trials.

IMPLEMENTATION RULES:
  - Strictly sequential. Trials never overlap: they share one storage target.
  - Both loops are explicit state machines; levels talk through JobCountResult values.

RELATED FILES:
  - internal/engine/inner.go
  - internal/engine/plateau.go
  - internal/engine/select.go
*/

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/daryltucker/fio-tuner/internal/config"
	"github.com/daryltucker/fio-tuner/internal/model"
	"github.com/daryltucker/fio-tuner/internal/output"
)

// Invoker runs one trial and returns the benchmark tool's raw output. It
// blocks until the trial completes or fails.
type Invoker interface {
	Invoke(ctx context.Context, jobCount, queueDepth int) ([]byte, error)
}

// ParseFunc extracts metrics from raw output.
type ParseFunc func(raw []byte) (model.Metrics, error)

// TrialWriter receives every trial as soon as its verdict is known.
type TrialWriter interface {
	Write(rec model.TrialRecord) error
}

// Searcher owns the search state. It is not safe for concurrent use, and a
// Searcher runs one search.
type Searcher struct {
	cfg     config.SearchConfig
	policy  model.BestPolicy
	invoker Invoker
	parse   ParseFunc
	writers []TrialWriter
	logger  *slog.Logger
	runID   string
	settle  time.Duration
	timeout time.Duration
	now     func() time.Time

	trialsRun int
	lastTrial *model.Trial
	report    *model.Report
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithWriters adds trial log sinks.
func WithWriters(w ...TrialWriter) Option {
	return func(s *Searcher) { s.writers = append(s.writers, w...) }
}

// WithLogger overrides output.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Searcher) { s.logger = l }
}

// WithRunID tags the report and every trial record.
func WithRunID(id string) Option {
	return func(s *Searcher) { s.runID = id }
}

// WithSettleDelay pauses between consecutive trials.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Searcher) { s.settle = d }
}

// WithTrialTimeout tells the searcher the invoker's per-trial deadline so
// trials that finish just short of it can be flagged.
func WithTrialTimeout(d time.Duration) Option {
	return func(s *Searcher) { s.timeout = d }
}

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Searcher) { s.now = now }
}

// NewSearcher validates cfg and builds a Searcher.
func NewSearcher(cfg config.SearchConfig, inv Invoker, parse ParseFunc, opts ...Option) (*Searcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := model.ParseBestPolicy(cfg.BestPolicy)
	if err != nil {
		return nil, err
	}

	s := &Searcher{
		cfg:     cfg,
		policy:  policy,
		invoker: inv,
		parse:   parse,
		logger:  output.Logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runID != "" {
		s.logger = s.logger.With("run_id", s.runID)
	}
	return s, nil
}

type outerState int

const (
	outerInit outerState = iota
	outerRunInner
	outerContinue
	outerStop
)

// searchState is the running best across levels plus the per-level best
// IOPS the outer plateau check compares against.
type searchState struct {
	best  *model.JobCountResult
	prior []float64
}

func (st *searchState) update(level model.JobCountResult) bool {
	if st.best == nil || Better(level.Best, st.best.Best) {
		st.best = &level
		return true
	}
	return false
}

// Search runs the whole search. The returned report is never nil: on error
// or cancellation it holds every level completed so far and the best of them.
func (s *Searcher) Search(ctx context.Context) (*model.Report, error) {
	s.report = &model.Report{
		RunID:     s.runID,
		StartedAt: s.now(),
	}
	report := s.report

	outer := Detector{Threshold: s.cfg.Threshold, Window: s.cfg.OuterWindow}
	var (
		state    = outerInit
		jobCount int
		st       searchState
		err      error
	)

	for state != outerStop {
		switch state {
		case outerInit:
			jobCount = 1
			state = outerRunInner

		case outerRunInner:
			s.logger.Info("Optimizing iodepth", "numjobs", jobCount)

			var level *model.JobCountResult
			level, err = s.scanQueueDepths(ctx, jobCount)
			if level != nil {
				report.Levels = append(report.Levels, *level)
				if level.SafeguardLimitReached() {
					report.SafeguardLimitReached = true
				}
				if st.update(*level) {
					s.logger.Info("New best overall",
						"numjobs", level.JobCount,
						"iodepth", level.Best.QueueDepth,
						"iops", round2(level.Best.IOPS))
				}
			}
			if err != nil {
				state = outerStop
				break
			}

			dec := outer.Check(st.prior, level.Best.IOPS)
			st.prior = append(st.prior, level.Best.IOPS)
			s.logger.Info("Best result for numjobs",
				"numjobs", jobCount,
				"iodepth", level.Best.QueueDepth,
				"iops", round2(level.Best.IOPS),
				"tail_latency_ms", round2(level.Best.TailLatencyMs),
				"significant", dec.Significant,
				"reference_iops", round2(dec.Reference))

			if !dec.Significant && len(st.prior) >= s.cfg.MinJobCountRuns {
				s.logger.Info("IOPS plateaued for numjobs",
					"numjobs", jobCount,
					"iops", round2(level.Best.IOPS),
					"reference_iops", round2(dec.Reference))
				report.Stop = model.StopPlateau
				state = outerStop
				break
			}
			state = outerContinue

		case outerContinue:
			if jobCount*2 > s.cfg.MaxJobCount {
				s.logger.Warn("numjobs safeguard limit reached without a plateau",
					"numjobs", jobCount, "max_numjobs", s.cfg.MaxJobCount)
				report.Stop = model.StopSafeguard
				report.SafeguardLimitReached = true
				state = outerStop
				break
			}
			jobCount *= 2
			state = outerRunInner
		}
	}

	s.finish(err)
	return report, err
}

func (s *Searcher) finish(err error) {
	report := s.report
	report.FinishedAt = s.now()
	if level, ok := Aggregate(report.Levels); ok {
		report.Optimum = Optimum(level)
	}

	switch {
	case err == nil:
	case isCanceled(err):
		report.Canceled = true
		report.Stop = model.StopCanceled
		report.Error = err.Error()
	default:
		report.Stop = model.StopFailed
		report.Error = err.Error()
	}
}

// beforeTrial is the only place cancellation is observed.
func (s *Searcher) beforeTrial(ctx context.Context, jobCount, queueDepth int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("search canceled before numjobs=%d iodepth=%d: %w", jobCount, queueDepth, context.Cause(ctx))
	}
	if s.trialsRun == 0 || s.settle <= 0 {
		return nil
	}

	timer := time.NewTimer(s.settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("search canceled before numjobs=%d iodepth=%d: %w", jobCount, queueDepth, context.Cause(ctx))
	case <-timer.C:
		return nil
	}
}

// runTrial invokes and parses one trial. The trial itself is detached from
// ctx cancellation; only the invoker's own deadline can cut it short.
func (s *Searcher) runTrial(ctx context.Context, jobCount, queueDepth int) (model.Trial, error) {
	s.logger.Info("Running test", "numjobs", jobCount, "iodepth", queueDepth)

	start := s.now()
	raw, err := s.invoker.Invoke(context.WithoutCancel(ctx), jobCount, queueDepth)
	s.trialsRun++
	if err != nil {
		s.logger.Error("Stopping optimization due to a fio error",
			"numjobs", jobCount, "iodepth", queueDepth, "error", err)
		return model.Trial{}, s.fail(jobCount, queueDepth, nil, err)
	}

	m, err := s.parse(raw)
	if err != nil {
		s.logger.Error("Stopping optimization: fio output could not be parsed",
			"numjobs", jobCount, "iodepth", queueDepth, "error", err)
		s.logger.Debug("Problematic fio output", "raw", string(truncate(raw, 1000)))
		return model.Trial{}, s.fail(jobCount, queueDepth, raw, err)
	}

	trial := model.Trial{
		JobCount:      jobCount,
		QueueDepth:    queueDepth,
		IOPS:          m.IOPS,
		TailLatencyMs: m.TailLatencyMs,
		Timestamp:     start,
		Duration:      s.now().Sub(start),
	}
	if nearDeadline(trial.Duration, s.timeout) {
		s.logger.Warn("Trial finished close to the trial timeout; check that runtime matches the job file",
			"numjobs", jobCount,
			"iodepth", queueDepth,
			"duration", trial.Duration,
			"timeout", s.timeout)
	}
	s.lastTrial = &trial
	return trial, nil
}

func (s *Searcher) fail(jobCount, queueDepth int, raw []byte, err error) error {
	serr := &SearchError{
		JobCount:   jobCount,
		QueueDepth: queueDepth,
		Raw:        raw,
		Err:        err,
	}
	if s.lastTrial != nil {
		last := *s.lastTrial
		serr.LastTrial = &last
	}
	return serr
}

// record publishes a trial to the report, the log and every writer.
func (s *Searcher) record(trial model.Trial, verdict model.Verdict, dec Decision) {
	rec := model.TrialRecord{
		Trial:         trial,
		RunID:         s.runID,
		Verdict:       verdict,
		ReferenceIOPS: dec.Reference,
	}
	s.report.Trials = append(s.report.Trials, rec)

	s.logger.Info("Result",
		"numjobs", trial.JobCount,
		"iodepth", trial.QueueDepth,
		"iops", round2(trial.IOPS),
		"tail_latency_ms", round2(trial.TailLatencyMs),
		"verdict", verdict,
		"reference_iops", round2(dec.Reference))

	for _, w := range s.writers {
		if err := w.Write(rec); err != nil {
			s.logger.Error("Failed to write trial record", "error", err)
		}
	}
}

// nearDeadline reports whether d used 90% or more of timeout.
func nearDeadline(d, timeout time.Duration) bool {
	return timeout > 0 && d >= timeout-timeout/10
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
