/*
PURPOSE:
  Writes the trial log to a CSV file, one row per trial.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - Keep an auditable record of every trial.

  Implementation-discovered:
  - A run interrupted after hours of trials must still leave the rows on disk.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (as a TrialWriter)
  - Consumes: internal/model.TrialRecord

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).

USAGE:
  w, err := output.NewCSVWriter("fio_trials.csv")
  w.Write(rec)
  w.Close()

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/daryltucker/fio-tuner/internal/model"
)

var csvHeader = []string{
	"run_id", "timestamp", "numjobs", "iodepth", "iops", "tail_latency_ms",
	"duration_s", "verdict", "reference_iops",
}

// CSVWriter handles writing trial records to a CSV file.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates a new CSVWriter.
// It overwrites the file if it exists.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()

	return &CSVWriter{
		file:   f,
		writer: w,
	}, nil
}

// Write writes a single trial record to the CSV file.
func (cw *CSVWriter) Write(r model.TrialRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	record := []string{
		r.RunID,
		r.Timestamp.Format(time.RFC3339),
		strconv.Itoa(r.JobCount),
		strconv.Itoa(r.QueueDepth),
		strconv.FormatFloat(r.IOPS, 'f', 2, 64),
		strconv.FormatFloat(r.TailLatencyMs, 'f', 3, 64),
		strconv.FormatFloat(r.Duration.Seconds(), 'f', 2, 64),
		string(r.Verdict),
		strconv.FormatFloat(r.ReferenceIOPS, 'f', 2, 64),
	}

	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.file.Close()
}
