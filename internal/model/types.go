/*
PURPOSE:
  Defines the core data structures shared by the search engine, the fio
  invoker and the output writers.

REQUIREMENTS:
  User-specified:
  - Record numjobs, iodepth, IOPS and 99th percentile completion latency per trial.
  - Report the optimal numjobs/iodepth pair and the max achieved IOPS.

  Implementation-discovered:
  - Trials need a verdict so the trial log explains why the search moved on or stopped.
  - Reports must distinguish "plateau found" from "search space exhausted".

ARCHITECTURE INTEGRATION:
  - Used by: internal/engine, internal/fio, internal/output
  - Shared across boundaries.

ERROR HANDLING:
  - None (pure data structs). Sentinels live in errors.go.

IMPLEMENTATION RULES:
  - Trials are values; never mutate one after it is recorded.
  - JSON/YAML tags on everything that ends up in the report.

RELATED FILES:
  - internal/model/history.go
  - internal/output/csv.go
  - internal/output/json.go
*/

package model

import (
	"time"
)

// Metrics is what the parser extracts from one fio run. Direction is "read"
// or "write"; Source names the fio block the numbers came from
// (e.g. "All clients").
type Metrics struct {
	IOPS          float64 `json:"iops" yaml:"iops"`
	TailLatencyMs float64 `json:"tail_latency_ms" yaml:"tail_latency_ms"`
	Direction     string  `json:"direction" yaml:"direction"`
	Source        string  `json:"source" yaml:"source"`
}

// Trial is one benchmark execution at a fixed (JobCount, QueueDepth).
type Trial struct {
	JobCount      int           `json:"job_count" yaml:"job_count"`
	QueueDepth    int           `json:"queue_depth" yaml:"queue_depth"`
	IOPS          float64       `json:"iops" yaml:"iops"`
	TailLatencyMs float64       `json:"tail_latency_ms" yaml:"tail_latency_ms"`
	Timestamp     time.Time     `json:"timestamp" yaml:"timestamp"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
}

// Verdict is the plateau decision attached to a trial.
type Verdict string

const (
	// VerdictBaseline marks the first trial of a level; nothing to compare against.
	VerdictBaseline Verdict = "baseline"
	// VerdictImproving marks a significant gain; the parameter keeps doubling.
	VerdictImproving Verdict = "improving"
	// VerdictWarmup marks a trial accepted because the minimum run count was not reached.
	VerdictWarmup Verdict = "warmup"
	// VerdictPlateau marks the trial whose gain was not significant.
	VerdictPlateau Verdict = "plateau"
)

// TrialRecord is a trial plus the decision taken after it.
type TrialRecord struct {
	Trial `yaml:",inline"`

	RunID   string  `json:"run_id" yaml:"run_id"`
	Verdict Verdict `json:"verdict" yaml:"verdict"`

	// ReferenceIOPS is the max IOPS of the comparison window (0 for a baseline).
	ReferenceIOPS float64 `json:"reference_iops" yaml:"reference_iops"`
}

// StopReason explains why a loop stopped.
type StopReason string

const (
	StopPlateau   StopReason = "plateau"
	StopSafeguard StopReason = "safeguard_limit"
	StopCanceled  StopReason = "canceled"
	StopFailed    StopReason = "failed"
)

// JobCountResult is the best trial of one queue-depth scan.
type JobCountResult struct {
	JobCount int        `json:"job_count" yaml:"job_count"`
	Best     Trial      `json:"best" yaml:"best"`
	Trials   []Trial    `json:"trials" yaml:"trials"`
	Stop     StopReason `json:"stop" yaml:"stop"`
}

// SafeguardLimitReached reports whether the scan ran out of queue depths
// before it found a plateau.
func (r JobCountResult) SafeguardLimitReached() bool {
	return r.Stop == StopSafeguard
}

// Optimum is the final summary record.
type Optimum struct {
	JobCount      int     `json:"optimal_job_count" yaml:"optimal_job_count"`
	QueueDepth    int     `json:"optimal_queue_depth" yaml:"optimal_queue_depth"`
	IOPS          float64 `json:"max_iops" yaml:"max_iops"`
	TailLatencyMs float64 `json:"tail_latency_ms" yaml:"tail_latency_ms"`
}

// Report is the outcome of a whole search.
type Report struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	// Optimum is nil when no level completed.
	Optimum *Optimum         `json:"optimum,omitempty" yaml:"optimum,omitempty"`
	Levels  []JobCountResult `json:"levels" yaml:"levels"`
	Trials  []TrialRecord    `json:"trials" yaml:"trials"`

	Stop                  StopReason `json:"stop" yaml:"stop"`
	SafeguardLimitReached bool       `json:"safeguard_limit_reached" yaml:"safeguard_limit_reached"`
	Canceled              bool       `json:"canceled" yaml:"canceled"`
	Error                 string     `json:"error,omitempty" yaml:"error,omitempty"`
}
