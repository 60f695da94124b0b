// Package command runs external programs on behalf of the exec module,
// capturing output and the exit status the module maps to a result code.
package command

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result holds the outcome of one external program invocation.
type Result struct {
	Stdout string
	Stderr string
	// ExitCode is the program's exit status. -1 means the program could not
	// be started or was killed before exiting on its own.
	ExitCode int
	Duration time.Duration
}

// Runner executes external programs. The exec module takes one so tests can
// substitute a fake.
type Runner interface {
	// Run executes program with args, honoring context cancellation. A
	// non-zero exit status is not an error; callers inspect ExitCode.
	Run(ctx context.Context, program string, args []string, env []string) (*Result, error)
}

type defaultRunner struct{}

// NewRunner creates the os/exec backed runner.
func NewRunner() Runner {
	return &defaultRunner{}
}

func (r *defaultRunner) Run(ctx context.Context, program string, args []string, env []string) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(env) > 0 {
		cmd.Env = env
	}

	start := time.Now()
	err := cmd.Run()

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}

	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The program ran to completion with a non-zero status.
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}

	res.ExitCode = 0
	return res, nil
}
