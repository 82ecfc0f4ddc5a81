/*
PURPOSE:
  Prometheus textfile output for node_exporter's textfile collector.

REQUIREMENTS:
  Implementation-discovered:
  - The file is rewritten after every trial so a long search can be watched.
  - Writes go through a temp file and rename; the collector never sees a partial file.

ARCHITECTURE INTEGRATION:
  - Created by: internal/engine/runner.go
  - Implements: engine.TrialWriter

RELATED FILES:
  - internal/output/csv.go
  - internal/output/json.go
*/

package output

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/daryltucker/fio-tuner/internal/model"
)

// MetricsWriter mirrors the trial log into Prometheus gauges and writes them
// as a node_exporter textfile. Each Write rewrites the file so the collector
// sees progress during long searches.
type MetricsWriter struct {
	path     string
	registry *prometheus.Registry

	trialIOPS    *prometheus.GaugeVec
	trialLatency *prometheus.GaugeVec
	trials       *prometheus.CounterVec
	optimumIOPS  prometheus.Gauge
	optimumJobs  prometheus.Gauge
	optimumDepth prometheus.Gauge
	safeguard    prometheus.Gauge
}

// NewMetricsWriter registers the fio-tuner gauges on a private registry.
func NewMetricsWriter(path string) *MetricsWriter {
	m := &MetricsWriter{
		path:     path,
		registry: prometheus.NewRegistry(),
		trialIOPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fio_tuner_trial_iops",
			Help: "IOPS measured by a trial",
		}, []string{"numjobs", "iodepth"}),
		trialLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fio_tuner_trial_tail_latency_ms",
			Help: "99th percentile completion latency of a trial in milliseconds",
		}, []string{"numjobs", "iodepth"}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fio_tuner_trials_total",
			Help: "Trials run by verdict",
		}, []string{"verdict"}),
		optimumIOPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fio_tuner_optimum_iops",
			Help: "Max IOPS of the search",
		}),
		optimumJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fio_tuner_optimum_numjobs",
			Help: "numjobs of the optimum",
		}),
		optimumDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fio_tuner_optimum_iodepth",
			Help: "iodepth of the optimum",
		}),
		safeguard: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fio_tuner_safeguard_limit_reached",
			Help: "1 if a safeguard limit stopped the search before a plateau",
		}),
	}
	m.registry.MustRegister(m.trialIOPS, m.trialLatency, m.trials,
		m.optimumIOPS, m.optimumJobs, m.optimumDepth, m.safeguard)
	return m
}

// Registry exposes the registry (tests, future HTTP exposition).
func (m *MetricsWriter) Registry() *prometheus.Registry {
	return m.registry
}

// Write records one trial and flushes the textfile.
func (m *MetricsWriter) Write(r model.TrialRecord) error {
	labels := prometheus.Labels{
		"numjobs": strconv.Itoa(r.JobCount),
		"iodepth": strconv.Itoa(r.QueueDepth),
	}
	m.trialIOPS.With(labels).Set(r.IOPS)
	m.trialLatency.With(labels).Set(r.TailLatencyMs)
	m.trials.WithLabelValues(string(r.Verdict)).Inc()
	return m.flush()
}

// Finish records the outcome of the search and flushes the textfile.
func (m *MetricsWriter) Finish(r *model.Report) error {
	if r.Optimum != nil {
		m.optimumIOPS.Set(r.Optimum.IOPS)
		m.optimumJobs.Set(float64(r.Optimum.JobCount))
		m.optimumDepth.Set(float64(r.Optimum.QueueDepth))
	}
	if r.SafeguardLimitReached {
		m.safeguard.Set(1)
	} else {
		m.safeguard.Set(0)
	}
	return m.flush()
}

func (m *MetricsWriter) flush() error {
	if m.path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.path, m.registry)
}
