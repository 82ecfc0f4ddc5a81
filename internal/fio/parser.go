/*
PURPOSE:
  Extracts IOPS and tail completion latency from raw fio output.

REQUIREMENTS:
  User-specified:
  - Handle both single-node output and aggregated multi-client output.
  - Use the 99th percentile completion latency for the latency check.

  Implementation-discovered:
  - fio prints banners (hostname=..., be=0, ...) before the JSON in client mode.
  - fio may emit several JSON documents back to back; the last one is final.
  - The "All clients" aggregate has no percentiles, only a mean.
  - A custom percentile_list may leave out the 99th; that run is unusable.
  - A run cut off mid-document must not fall back to an earlier document.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (via ParseFunc), internal/cli (parse command)
  - Produces: internal/model.Metrics

ERROR HANDLING:
  - Every failure wraps model.ErrParse.

IMPLEMENTATION RULES:
  - Pure: no I/O, no clock, no logging. Same bytes in, same metrics out.
  - Read stats win over write stats when both are non-zero.

RELATED FILES:
  - internal/fio/client.go
*/

package fio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/daryltucker/fio-tuner/internal/model"
)

// AllClients is the jobname fio gives the aggregate block in client/server mode.
const AllClients = "All clients"

// P99Key is the completion-latency percentile used as the tail latency.
const P99Key = "99.000000"

type latencyStats struct {
	Mean       *float64           `json:"mean"`
	Percentile map[string]float64 `json:"percentile"`
}

type ioStats struct {
	IOPS   float64       `json:"iops"`
	ClatNs *latencyStats `json:"clat_ns"`
}

type jobStats struct {
	JobName string   `json:"jobname"`
	Read    *ioStats `json:"read"`
	Write   *ioStats `json:"write"`
}

type document struct {
	ClientStats []jobStats `json:"client_stats"`
	Jobs        []jobStats `json:"jobs"`
}

// Parse extracts exactly one throughput and one tail-latency value from raw.
func Parse(raw []byte) (model.Metrics, error) {
	docs, truncated := extractDocuments(raw)
	if truncated {
		return model.Metrics{}, fmt.Errorf("%w: last fio JSON document is incomplete", model.ErrParse)
	}
	if len(docs) == 0 {
		return model.Metrics{}, fmt.Errorf("%w: no fio JSON document found", model.ErrParse)
	}

	job, err := selectJob(docs[len(docs)-1])
	if err != nil {
		return model.Metrics{}, err
	}
	return metricsFor(job)
}

// extractDocuments decodes every top-level JSON object in raw that carries
// job statistics, skipping any text around them. truncated reports an
// object after the last accepted document that mentions job statistics but
// does not decode: fio was cut off and the earlier documents are stale.
func extractDocuments(raw []byte) (docs []document, truncated bool) {
	for i := 0; i < len(raw); {
		start := bytes.IndexByte(raw[i:], '{')
		if start < 0 {
			break
		}
		start += i

		dec := json.NewDecoder(bytes.NewReader(raw[start:]))
		var doc document
		if err := dec.Decode(&doc); err != nil {
			if !truncated && mentionsStats(raw[start:]) {
				truncated = true
			}
			i = start + 1
			continue
		}
		if len(doc.ClientStats) > 0 || len(doc.Jobs) > 0 {
			docs = append(docs, doc)
			truncated = false
		}
		i = start + int(dec.InputOffset())
	}
	return docs, truncated
}

func mentionsStats(b []byte) bool {
	return bytes.Contains(b, []byte(`"jobs"`)) || bytes.Contains(b, []byte(`"client_stats"`))
}

// selectJob picks the authoritative block: the client aggregate, then the
// first client block, then the (group reported) job.
func selectJob(doc document) (jobStats, error) {
	for _, job := range doc.ClientStats {
		if job.JobName == AllClients {
			return job, nil
		}
	}
	if len(doc.ClientStats) > 0 {
		return doc.ClientStats[0], nil
	}

	switch len(doc.Jobs) {
	case 0:
		return jobStats{}, fmt.Errorf("%w: document has no job blocks", model.ErrParse)
	case 1:
		return doc.Jobs[0], nil
	default:
		return combine(doc.Jobs), nil
	}
}

// combine folds per-job blocks (no group_reporting) into one: IOPS add up,
// the tail latency is the worst one seen.
func combine(jobs []jobStats) jobStats {
	out := jobStats{
		JobName: fmt.Sprintf("%d jobs combined", len(jobs)),
		Read:    &ioStats{},
		Write:   &ioStats{},
	}
	for _, job := range jobs {
		fold(out.Read, job.Read)
		fold(out.Write, job.Write)
	}
	return out
}

func fold(dst, src *ioStats) {
	if src == nil || src.IOPS <= 0 {
		return
	}
	dst.IOPS += src.IOPS
	lat, ok := tailLatencyNs(src.ClatNs)
	if !ok {
		return
	}
	if dst.ClatNs == nil || lat > dst.ClatNs.Percentile[P99Key] {
		dst.ClatNs = &latencyStats{Percentile: map[string]float64{P99Key: lat}}
	}
}

func metricsFor(job jobStats) (model.Metrics, error) {
	var (
		direction string
		stats     *ioStats
	)
	switch {
	case job.Read != nil && job.Read.IOPS > 0:
		direction, stats = "read", job.Read
	case job.Write != nil && job.Write.IOPS > 0:
		direction, stats = "write", job.Write
	default:
		return model.Metrics{}, fmt.Errorf("%w: job %q has no read/write stats", model.ErrParse, job.JobName)
	}

	if math.IsNaN(stats.IOPS) || math.IsInf(stats.IOPS, 0) {
		return model.Metrics{}, fmt.Errorf("%w: job %q reports invalid IOPS", model.ErrParse, job.JobName)
	}

	latNs, ok := tailLatencyNs(stats.ClatNs)
	if !ok {
		return model.Metrics{}, fmt.Errorf("%w: job %q has no %s completion latency (p99 or mean)", model.ErrParse, job.JobName, direction)
	}

	return model.Metrics{
		IOPS:          stats.IOPS,
		TailLatencyMs: latNs / 1_000_000,
		Direction:     direction,
		Source:        job.JobName,
	}, nil
}

// tailLatencyNs uses the 99th percentile when fio reports percentiles and
// the mean only when it reports none, which is all the aggregate view
// provides. A percentile list without the 99th entry is not usable.
func tailLatencyNs(lat *latencyStats) (float64, bool) {
	switch {
	case lat == nil:
		return 0, false
	case lat.Percentile != nil:
		p99, ok := lat.Percentile[P99Key]
		return p99, ok && p99 >= 0
	case lat.Mean != nil && *lat.Mean >= 0:
		return *lat.Mean, true
	default:
		return 0, false
	}
}
