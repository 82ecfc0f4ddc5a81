package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/fio-tuner/internal/config"
	"github.com/daryltucker/fio-tuner/internal/model"
)

type params struct{ jobs, depth int }

// fakeInvoker serves scripted IOPS per (numjobs, iodepth). Unscripted
// parameters fail so a test notices any trial it did not expect.
type fakeInvoker struct {
	iops    map[params]float64
	latency map[params]float64
	fail    map[params]error
	garbage map[params]bool
	calls   []params

	// onInvoke runs before the trial result is produced.
	onInvoke func(ctx context.Context, p params)
}

func (f *fakeInvoker) Invoke(ctx context.Context, jobs, depth int) ([]byte, error) {
	p := params{jobs, depth}
	f.calls = append(f.calls, p)
	if f.onInvoke != nil {
		f.onInvoke(ctx, p)
	}
	if err, ok := f.fail[p]; ok {
		return nil, err
	}
	if f.garbage[p] {
		return []byte("fio: something went sideways"), nil
	}
	iops, ok := f.iops[p]
	if !ok {
		return nil, fmt.Errorf("%w: unexpected trial numjobs=%d iodepth=%d", model.ErrInvocation, jobs, depth)
	}
	lat := f.latency[p]
	if lat == 0 {
		lat = 1
	}
	return json.Marshal(model.Metrics{IOPS: iops, TailLatencyMs: lat})
}

func parseJSON(raw []byte) (model.Metrics, error) {
	var m model.Metrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.Metrics{}, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	return m, nil
}

// level scripts one numjobs level: IOPS for iodepth 1, 2, 4, ...
func level(f *fakeInvoker, jobs int, iops ...float64) {
	if f.iops == nil {
		f.iops = map[params]float64{}
	}
	depth := 1
	for _, v := range iops {
		f.iops[params{jobs, depth}] = v
		depth *= 2
	}
}

func newTestSearcher(t *testing.T, cfg config.SearchConfig, inv Invoker, opts ...Option) *Searcher {
	t.Helper()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixed }),
		WithRunID("test-run"),
	}, opts...)
	s, err := NewSearcher(cfg, inv, parseJSON, opts...)
	require.NoError(t, err)
	return s
}

// oneJobLevel scripts numjobs=1: the 32-deep run gains less than 5% over
// the 16-deep run.
func oneJobLevel(f *fakeInvoker) {
	level(f, 1, 812.78, 1548.70, 3100, 7000, 14517.11, 14725.47)
}

func TestSearch_InnerLoopReportsPredecessor(t *testing.T) {
	inv := &fakeInvoker{}
	oneJobLevel(inv)

	cfg := config.DefaultSearchConfig()
	cfg.MaxJobCount = 1
	s := newTestSearcher(t, cfg, inv)

	report, err := s.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Levels, 1)

	lvl := report.Levels[0]
	assert.Equal(t, model.StopPlateau, lvl.Stop)
	assert.Equal(t, 16, lvl.Best.QueueDepth)
	assert.InDelta(t, 14517.11, lvl.Best.IOPS, 1e-9)
	assert.Len(t, lvl.Trials, 6)

	require.NotNil(t, report.Optimum)
	assert.Equal(t, 1, report.Optimum.JobCount)
	assert.Equal(t, 16, report.Optimum.QueueDepth)

	last := report.Trials[len(report.Trials)-1]
	assert.Equal(t, model.VerdictPlateau, last.Verdict)
	assert.InDelta(t, 14517.11, last.ReferenceIOPS, 1e-9)
	assert.Equal(t, model.VerdictBaseline, report.Trials[0].Verdict)
	assert.Equal(t, "test-run", last.RunID)
}

func TestSearch_HighestPolicyKeepsPlateauTrial(t *testing.T) {
	inv := &fakeInvoker{}
	oneJobLevel(inv)

	cfg := config.DefaultSearchConfig()
	cfg.MaxJobCount = 1
	cfg.BestPolicy = string(model.PolicyHighest)
	s := newTestSearcher(t, cfg, inv)

	report, err := s.Search(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Optimum)
	assert.Equal(t, 32, report.Optimum.QueueDepth)
	assert.InDelta(t, 14725.47, report.Optimum.IOPS, 1e-9)
}

func threeJobLevels(f *fakeInvoker) {
	oneJobLevel(f)
	level(f, 2, 1000, 2000, 4000, 8000, 14913.69, 15000)
	level(f, 4, 1500, 3000, 6000, 12000, 14800, 14900)
}

// 14913.69 is only a 2.7% gain over 14517.11, so at the default 5%
// threshold the outer loop stops after numjobs=2.
func TestSearch_DefaultThresholdStopsAtTwoJobs(t *testing.T) {
	inv := &fakeInvoker{}
	threeJobLevels(inv)

	s := newTestSearcher(t, config.DefaultSearchConfig(), inv)
	report, err := s.Search(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Levels, 2)
	assert.Equal(t, model.StopPlateau, report.Stop)
	require.NotNil(t, report.Optimum)
	assert.Equal(t, 2, report.Optimum.JobCount)
	assert.Equal(t, 16, report.Optimum.QueueDepth)
	assert.InDelta(t, 14913.69, report.Optimum.IOPS, 1e-9)
	assert.False(t, report.SafeguardLimitReached)
}

// With a threshold the numjobs=2 gain does clear, the outer loop continues
// to numjobs=4, which is not significant over numjobs=2.
func TestSearch_ContinuesToFourJobs(t *testing.T) {
	inv := &fakeInvoker{}
	threeJobLevels(inv)

	cfg := config.DefaultSearchConfig()
	cfg.Threshold = 1.02
	s := newTestSearcher(t, cfg, inv)
	report, err := s.Search(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Levels, 3)
	assert.Equal(t, 4, report.Levels[2].JobCount)
	assert.InDelta(t, 14800, report.Levels[2].Best.IOPS, 1e-9)
	require.NotNil(t, report.Optimum)
	assert.Equal(t, 2, report.Optimum.JobCount)
	assert.InDelta(t, 14913.69, report.Optimum.IOPS, 1e-9)
}

func TestSearch_InvocationFailureKeepsCompletedLevels(t *testing.T) {
	inv := &fakeInvoker{
		fail: map[params]error{
			{2, 4}: fmt.Errorf("%w: exit status 1", model.ErrInvocation),
		},
	}
	oneJobLevel(inv)
	level(inv, 2, 1000, 2000)

	s := newTestSearcher(t, config.DefaultSearchConfig(), inv)
	report, err := s.Search(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvocation)

	var serr *SearchError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 2, serr.JobCount)
	assert.Equal(t, 4, serr.QueueDepth)
	require.NotNil(t, serr.LastTrial)
	assert.Equal(t, 2, serr.LastTrial.JobCount)
	assert.Equal(t, 2, serr.LastTrial.QueueDepth)

	require.NotNil(t, report)
	require.Len(t, report.Levels, 1, "no level is fabricated for numjobs=2")
	assert.Equal(t, 1, report.Levels[0].JobCount)
	require.NotNil(t, report.Optimum)
	assert.Equal(t, 1, report.Optimum.JobCount)
	assert.Equal(t, model.StopFailed, report.Stop)
	assert.NotEmpty(t, report.Error)
	assert.Len(t, report.Trials, 8)
}

func TestSearch_TimeoutIsAnInvocationFailure(t *testing.T) {
	inv := &fakeInvoker{
		fail: map[params]error{{1, 1}: fmt.Errorf("%w: exceeded 3m0s", model.ErrTimeout)},
	}
	s := newTestSearcher(t, config.DefaultSearchConfig(), inv)

	report, err := s.Search(context.Background())
	assert.ErrorIs(t, err, model.ErrTimeout)
	assert.ErrorIs(t, err, model.ErrInvocation)
	assert.Nil(t, report.Optimum)
	assert.Empty(t, report.Levels)

	var serr *SearchError
	require.ErrorAs(t, err, &serr)
	assert.Nil(t, serr.LastTrial)
}

func TestSearch_ParseFailureCarriesRawOutput(t *testing.T) {
	inv := &fakeInvoker{garbage: map[params]bool{{1, 4}: true}}
	level(inv, 1, 100, 200)

	s := newTestSearcher(t, config.DefaultSearchConfig(), inv)
	_, err := s.Search(context.Background())
	require.ErrorIs(t, err, model.ErrParse)

	var serr *SearchError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "fio: something went sideways", string(serr.Raw))
	assert.Equal(t, 4, serr.QueueDepth)
}

func TestSearch_SafeguardQueueDepth(t *testing.T) {
	inv := &fakeInvoker{}
	level(inv, 1, 100, 200, 400, 800)

	cfg := config.DefaultSearchConfig()
	cfg.MaxQueueDepth = 8
	cfg.MaxJobCount = 1
	s := newTestSearcher(t, cfg, inv)

	report, err := s.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Levels, 1)

	lvl := report.Levels[0]
	assert.True(t, lvl.SafeguardLimitReached())
	assert.Equal(t, 8, lvl.Best.QueueDepth)
	assert.InDelta(t, 800, lvl.Best.IOPS, 1e-9)
	assert.True(t, report.SafeguardLimitReached)
	assert.Equal(t, model.StopSafeguard, report.Stop)
	assert.Len(t, inv.calls, 4)
}

func TestSearch_SafeguardJobCount(t *testing.T) {
	inv := &fakeInvoker{}
	level(inv, 1, 100, 101)
	level(inv, 2, 200, 201)

	cfg := config.DefaultSearchConfig()
	cfg.MaxJobCount = 2
	s := newTestSearcher(t, cfg, inv)

	report, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Levels, 2)
	assert.Equal(t, model.StopSafeguard, report.Stop)
	assert.True(t, report.SafeguardLimitReached)
	for _, lvl := range report.Levels {
		assert.Equal(t, model.StopPlateau, lvl.Stop)
	}
}

func TestSearch_DoublingInvariant(t *testing.T) {
	inv := &fakeInvoker{}
	threeJobLevels(inv)

	cfg := config.DefaultSearchConfig()
	cfg.Threshold = 1.02
	s := newTestSearcher(t, cfg, inv)
	_, err := s.Search(context.Background())
	require.NoError(t, err)

	seen := map[params]bool{}
	for i, c := range inv.calls {
		assert.False(t, seen[c], "trial %v run twice", c)
		seen[c] = true
		if i == 0 {
			assert.Equal(t, params{1, 1}, c)
			continue
		}
		prev := inv.calls[i-1]
		if c.jobs == prev.jobs {
			assert.Equal(t, prev.depth*2, c.depth)
		} else {
			assert.Equal(t, prev.jobs*2, c.jobs)
			assert.Equal(t, 1, c.depth)
		}
	}
}

func TestSearch_MinQueueDepthRunsDelaysPlateau(t *testing.T) {
	inv := &fakeInvoker{}
	// Flat from the start: without warmup the level would stop at iodepth=2.
	level(inv, 1, 1000, 1001, 1002, 1003, 1004)

	cfg := config.DefaultSearchConfig()
	cfg.MaxJobCount = 1
	cfg.MinQueueDepthRuns = 4
	s := newTestSearcher(t, cfg, inv)

	report, err := s.Search(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Levels, 1)
	assert.Len(t, report.Levels[0].Trials, 4)

	verdicts := make([]model.Verdict, 0, len(report.Trials))
	for _, tr := range report.Trials {
		verdicts = append(verdicts, tr.Verdict)
	}
	assert.Equal(t, []model.Verdict{
		model.VerdictBaseline, model.VerdictWarmup, model.VerdictWarmup, model.VerdictPlateau,
	}, verdicts)
	// iodepth=8 hit the ceiling; best of the rest is iodepth=4.
	assert.Equal(t, 4, report.Levels[0].Best.QueueDepth)
}

func TestSearch_TieBreakPrefersLowerLatency(t *testing.T) {
	inv := &fakeInvoker{
		latency: map[params]float64{{1, 1}: 5, {1, 2}: 2},
	}
	level(inv, 1, 1000, 1000)

	cfg := config.DefaultSearchConfig()
	cfg.MaxJobCount = 1
	cfg.BestPolicy = string(model.PolicyHighest)
	s := newTestSearcher(t, cfg, inv)

	report, err := s.Search(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Optimum)
	assert.Equal(t, 2, report.Optimum.QueueDepth)
	assert.InDelta(t, 2, report.Optimum.TailLatencyMs, 1e-9)
}

func TestSearch_CancelBetweenTrialsKeepsBestSoFar(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var trialCtxErrs []error
	inv := &fakeInvoker{
		onInvoke: func(trialCtx context.Context, p params) {
			if p == (params{2, 2}) {
				cancel()
			}
			trialCtxErrs = append(trialCtxErrs, trialCtx.Err())
		},
	}
	oneJobLevel(inv)
	level(inv, 2, 1000, 2000, 4000)

	s := newTestSearcher(t, config.DefaultSearchConfig(), inv)
	report, err := s.Search(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, report.Canceled)
	assert.Equal(t, model.StopCanceled, report.Stop)
	require.Len(t, report.Levels, 2)
	assert.Equal(t, model.StopCanceled, report.Levels[1].Stop)
	assert.Len(t, report.Levels[1].Trials, 2)
	require.NotNil(t, report.Optimum)
	assert.Equal(t, 1, report.Optimum.JobCount)
	assert.InDelta(t, 14517.11, report.Optimum.IOPS, 1e-9)

	// The trial in flight when cancel() fired was never interrupted.
	for _, e := range trialCtxErrs {
		assert.NoError(t, e)
	}
	assert.Equal(t, params{2, 2}, inv.calls[len(inv.calls)-1])
}

func TestSearch_CanceledBeforeFirstTrial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := &fakeInvoker{}
	s := newTestSearcher(t, config.DefaultSearchConfig(), inv)
	report, err := s.Search(ctx)

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, inv.calls)
	assert.Empty(t, report.Levels)
	assert.Nil(t, report.Optimum)
	assert.True(t, report.Canceled)
}

func TestSearch_SettleDelayIsCancelable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := &fakeInvoker{
		onInvoke: func(context.Context, params) {
			time.AfterFunc(50*time.Millisecond, cancel)
		},
	}
	level(inv, 1, 100, 200)

	s := newTestSearcher(t, config.DefaultSearchConfig(), inv, WithSettleDelay(time.Hour))

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = s.Search(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("search did not return after cancel during settle delay")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, inv.calls, 1)
}

type recordingWriter struct {
	recs []model.TrialRecord
	err  error
}

func (w *recordingWriter) Write(rec model.TrialRecord) error {
	w.recs = append(w.recs, rec)
	return w.err
}

func TestSearch_WritersSeeEveryTrial(t *testing.T) {
	inv := &fakeInvoker{}
	oneJobLevel(inv)

	ok := &recordingWriter{}
	broken := &recordingWriter{err: errors.New("disk full")}

	cfg := config.DefaultSearchConfig()
	cfg.MaxJobCount = 1
	s := newTestSearcher(t, cfg, inv, WithWriters(ok, broken))

	report, err := s.Search(context.Background())
	require.NoError(t, err, "writer failures never abort the search")
	assert.Equal(t, report.Trials, ok.recs)
	assert.Len(t, broken.recs, 6)
}

func TestNewSearcher_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultSearchConfig()
	cfg.BestPolicy = "median"
	_, err := NewSearcher(cfg, &fakeInvoker{}, parseJSON)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = config.DefaultSearchConfig()
	cfg.Threshold = 1
	_, err = NewSearcher(cfg, &fakeInvoker{}, parseJSON)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestSearch_WarnsWhenTrialNearsTimeout(t *testing.T) {
	inv := &fakeInvoker{}
	level(inv, 1, 100, 200)

	cfg := config.DefaultSearchConfig()
	cfg.MaxJobCount = 1
	cfg.MaxQueueDepth = 2

	// Every clock read advances 95s, so each trial measures 95s of a 100s budget.
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(95 * time.Second)
		return now
	}

	var buf bytes.Buffer
	s := newTestSearcher(t, cfg, inv,
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithClock(clock),
		WithTrialTimeout(100*time.Second))

	_, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Trial finished close to the trial timeout")
	assert.Contains(t, buf.String(), "timeout=1m40s")
}

func TestSearch_NoDeadlineWarningWithoutTimeout(t *testing.T) {
	inv := &fakeInvoker{}
	level(inv, 1, 100, 200)

	cfg := config.DefaultSearchConfig()
	cfg.MaxJobCount = 1
	cfg.MaxQueueDepth = 2

	var buf bytes.Buffer
	s := newTestSearcher(t, cfg, inv, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "close to the trial timeout")
}

func TestNearDeadline(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		timeout  time.Duration
		want     bool
	}{
		{"no timeout", time.Hour, 0, false},
		{"well inside", 30 * time.Second, 100 * time.Second, false},
		{"just under the margin", 89 * time.Second, 100 * time.Second, false},
		{"at the margin", 90 * time.Second, 100 * time.Second, true},
		{"past the timeout", 101 * time.Second, 100 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nearDeadline(tt.duration, tt.timeout))
		})
	}
}
