// Package xexec runs external tools with a hard timeout.
package xexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

var (
	// ErrNotFound is returned when the binary is not on PATH.
	ErrNotFound = errors.New("executable not found")

	// ErrTimeout is returned when the process outlived its timeout.
	ErrTimeout = errors.New("process timed out")
)

// Result holds the outcome of one process run.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout, falling back to stderr when stdout is empty. Some
// tools print their version banner on stderr.
func (r Result) Output() string {
	if r.Stdout != "" {
		return r.Stdout
	}
	return r.Stderr
}

// Runner executes a command and captures its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Timeout bounds every process; zero means no extra bound beyond ctx.
	Timeout time.Duration
	Dir     string
}

// New creates an ExecRunner with the given per-process timeout.
func New(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// LookPath reports where name is on PATH.
func (r *ExecRunner) LookPath(name string) (string, error) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p, nil
}

// Run executes name with args. A non-zero exit yields the captured output
// together with an *exec.ExitError; a missing binary yields ErrNotFound; an
// expired timeout yields ErrTimeout.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, name, args...)
	if r.Dir != "" {
		c.Dir = r.Dir
	}
	// Kill leaves grandchildren holding the pipes open; stop waiting for them.
	c.WaitDelay = 100 * time.Millisecond

	var outBuf, errBuf bytes.Buffer
	c.Stdout = &outBuf
	c.Stderr = &errBuf
	err := c.Run()

	res := Result{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%w: %s after %s", ErrTimeout, name, r.Timeout)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		return res, err
	}
	res.ExitCode = -1
	if errors.Is(err, exec.ErrNotFound) {
		return res, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return res, fmt.Errorf("exec error: %w", err)
}
