package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ErrTimeout is reported when a command is killed because it exceeded the
// runner's time limit.
var ErrTimeout = errors.New("command timed out")

// Result captures the observable outcome of one external command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// OK reports whether the command ran to completion with exit code zero.
func (r Result) OK() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// Runner executes external commands inside a given working directory.
//
// Run takes the program and its arguments as an explicit vector; nothing is
// ever interpolated through a shell. RunShell is the one deliberate shell
// boundary: it hands a user-authored command line to `sh -c`, because
// pre/post/test command lines from the series config may legitimately use
// shell features. Engine-owned invocations (git, the patch script) always go
// through Run.
type Runner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (Result, error)
	RunShell(ctx context.Context, dir string, commandLine string) (Result, error)
}

// ExecRunner runs commands with os/exec, capturing stdout and stderr and
// enforcing an upper bound on run time so one hung subprocess cannot stall a
// worker forever.
type ExecRunner struct {
	// Timeout bounds each invocation. Zero means no bound beyond the
	// caller's context.
	Timeout time.Duration
}

func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

func (e *ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (Result, error) {
	return e.run(ctx, dir, name, args)
}

func (e *ExecRunner) RunShell(ctx context.Context, dir string, commandLine string) (Result, error) {
	return e.run(ctx, dir, "sh", []string{"-c", commandLine})
}

func (e *ExecRunner) run(ctx context.Context, dir string, name string, args []string) (Result, error) {
	cmdCtx := ctx
	if e.Timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			cmdCtx, cancel = context.WithTimeout(ctx, e.Timeout)
			defer cancel()
		}
	}

	cmd := exec.CommandContext(cmdCtx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if cmdCtx.Err() != nil {
		res.TimedOut = errors.Is(cmdCtx.Err(), context.DeadlineExceeded)
		res.ExitCode = -1
		if res.TimedOut {
			return res, ErrTimeout
		}
		return res, cmdCtx.Err()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Non-zero exit is a normal, reportable outcome, not a runner error.
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// The process could not be started at all (missing binary, bad dir).
		res.ExitCode = -1
		return res, runErr
	}

	return res, nil
}
