/*
PURPOSE:
  Runs one fio trial for a (numjobs, iodepth) pair and returns its raw output.

REQUIREMENTS:
  User-specified:
  - Use a job file; numjobs and iodepth are injected through the environment
    (the job file refers to ${numjobs} and ${iodepth}).
  - Optional client/server mode through a client file (--client=<file>).
  - JSON output (--output-format=json).

  Implementation-discovered:
  - Each trial needs a hard deadline (runtime + grace) so a wedged target
    cannot hang the search.
  - fio in client mode can leave children behind; the whole process group is
    killed on timeout.
  - The parent environment must not be mutated between trials.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (implements engine.Invoker)
  - Uses: internal/model (error sentinels)

ERROR HANDLING:
  - Launch failure, non-zero exit and empty output wrap model.ErrInvocation.
  - Deadline exceeded wraps model.ErrTimeout (which is an ErrInvocation).
  - No retries here: the engine decides what a failure means.

IMPLEMENTATION RULES:
  - Blocking. One call, one fio process.
  - Capture stderr for diagnosis, stdout for parsing.

RELATED FILES:
  - internal/fio/parser.go
  - internal/fio/proc_unix.go
*/

package fio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/daryltucker/fio-tuner/internal/model"
)

// Environment variable names the job file uses for the two scaled parameters.
const (
	EnvNumJobs = "numjobs"
	EnvIODepth = "iodepth"
)

// maxStderr bounds how much stderr ends up in an error message.
const maxStderr = 2048

// Client invokes the fio executable.
type Client struct {
	// Path is the fio executable name or path.
	Path string
	// JobFile is the workload template.
	JobFile string
	// ClientFile enables client/server mode when non-empty.
	ClientFile string
	// Timeout bounds a single trial. Zero disables the deadline.
	Timeout time.Duration
	// Env is the base environment of the child. Nil means os.Environ().
	Env []string
}

// InvocationError describes a trial that did not produce output.
type InvocationError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error

	kind error
}

func (e *InvocationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: %s", e.kind, e.Command)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *InvocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.Err}
}

// Args returns the fio command line arguments (without the executable).
func (c *Client) Args() []string {
	args := []string{c.JobFile, "--output-format=json"}
	if c.ClientFile != "" {
		args = append(args, "--client="+c.ClientFile)
	}
	return args
}

// Invoke runs fio once and returns its stdout.
func (c *Client) Invoke(ctx context.Context, jobCount, queueDepth int) ([]byte, error) {
	if jobCount <= 0 || queueDepth <= 0 {
		return nil, fmt.Errorf("%w: numjobs=%d iodepth=%d must be positive", model.ErrInvocation, jobCount, queueDepth)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	args := c.Args()
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Env = append(c.baseEnv(),
		EnvNumJobs+"="+strconv.Itoa(jobCount),
		EnvIODepth+"="+strconv.Itoa(queueDepth),
	)
	cmd.WaitDelay = 5 * time.Second
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	command := c.Path + " " + strings.Join(args, " ")
	err := cmd.Run()
	if err != nil {
		ierr := &InvocationError{
			Command:  command,
			ExitCode: -1,
			Stderr:   tail(stderr.String(), maxStderr),
			Err:      err,
			kind:     model.ErrInvocation,
		}
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			ierr.kind = model.ErrTimeout
			ierr.Err = fmt.Errorf("exceeded %s", c.Timeout)
		case errors.As(err, &exitErr):
			ierr.ExitCode = exitErr.ExitCode()
		}
		return stdout.Bytes(), ierr
	}

	if len(bytes.TrimSpace(stdout.Bytes())) == 0 {
		return nil, &InvocationError{
			Command:  command,
			ExitCode: 0,
			Stderr:   tail(stderr.String(), maxStderr),
			Err:      errors.New("fio produced no output"),
			kind:     model.ErrInvocation,
		}
	}
	return stdout.Bytes(), nil
}

// LookPath checks the fio executable resolves before any trial runs.
func (c *Client) LookPath() error {
	if _, err := exec.LookPath(c.Path); err != nil {
		return &InvocationError{Command: c.Path, ExitCode: -1, Err: err, kind: model.ErrInvocation}
	}
	return nil
}

func (c *Client) baseEnv() []string {
	if c.Env != nil {
		return append([]string(nil), c.Env...)
	}
	return os.Environ()
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
