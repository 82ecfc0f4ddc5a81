/*
PURPOSE:
  Sentinel errors for trial failures.

ERROR HANDLING:
  - ErrTimeout wraps ErrInvocation: a timed-out trial is an invocation failure.
*/

package model

import (
	"errors"
	"fmt"
)

// ErrInvocation covers fio launch failures and non-zero exits.
var ErrInvocation = errors.New("benchmark invocation failed")

// ErrTimeout is a trial that outlived its deadline. It wraps ErrInvocation:
// callers that only care about "the trial did not run" need one check.
var ErrTimeout = fmt.Errorf("%w: trial timed out", ErrInvocation)

// ErrParse means the output did not contain extractable metrics.
var ErrParse = errors.New("no extractable metrics in benchmark output")
