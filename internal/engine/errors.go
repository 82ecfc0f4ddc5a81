/*
PURPOSE:
  Error type for a search aborted by a failed trial.

ERROR HANDLING:
  - Wraps model.ErrInvocation or model.ErrParse; match with errors.Is.
  - Carries the failing parameters, the last good trial and the raw output.
*/

package engine

import (
	"fmt"

	"github.com/daryltucker/fio-tuner/internal/model"
)

// SearchError is returned when a trial fails. It carries what a person needs
// to resume by hand: the failing parameters, the last trial that did succeed
// and, for parse failures, the raw output.
type SearchError struct {
	JobCount   int
	QueueDepth int
	LastTrial  *model.Trial
	Raw        []byte
	Err        error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("trial numjobs=%d iodepth=%d: %v", e.JobCount, e.QueueDepth, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}
