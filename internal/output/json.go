/*
PURPOSE:
  Writes the trial log to a JSON Lines file (NDJSON).

REQUIREMENTS:
  Implementation-discovered:
  - JSON Lines is better for streaming/logging than a single large array (append-friendly).

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (as a TrialWriter)
  - Consumes: internal/model.TrialRecord

ERROR HANDLING:
  - Returns error on file creation or write failure.
  - A record that fails to encode is not written at all (no half lines).

IMPLEMENTATION RULES:
  - Each record is encoded into a buffer first, then written and synced in one go.

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/daryltucker/fio-tuner/internal/model"
)

// JSONWriter appends trial records to a JSON Lines file.
type JSONWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  bytes.Buffer
	enc  *json.Encoder
}

// NewJSONWriter truncates path and returns a writer for it.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	jw := &JSONWriter{file: f}
	jw.enc = json.NewEncoder(&jw.buf)
	jw.enc.SetEscapeHTML(false)
	return jw, nil
}

// Write appends one record as a line and syncs it to disk.
func (jw *JSONWriter) Write(r model.TrialRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	jw.buf.Reset()
	if err := jw.enc.Encode(r); err != nil {
		return fmt.Errorf("encode trial numjobs=%d iodepth=%d: %w", r.JobCount, r.QueueDepth, err)
	}
	if _, err := jw.file.Write(jw.buf.Bytes()); err != nil {
		return err
	}
	return jw.file.Sync()
}

// Close syncs and closes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.file.Sync(); err != nil {
		jw.file.Close()
		return err
	}
	return jw.file.Close()
}
