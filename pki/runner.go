package pki

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Outcome is the captured result of one command.
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes commands. Run returns an error only when the command
// could not be started; a non-zero exit is reported in Outcome.ExitCode.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Outcome, error)
}

// ExecRunner runs commands as local processes in Dir.
type ExecRunner struct {
	Dir string
	Env []string // appended to the current environment
}

var _ Runner = (*ExecRunner)(nil)

// Run starts cmd and waits for it. Output is buffered in full. The context
// is only consulted before start: a started command runs to completion.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	c := exec.Command(cmd.Program, cmd.Args()...)
	c.Dir = r.Dir
	if len(r.Env) > 0 {
		c.Env = append(os.Environ(), r.Env...)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	out := Outcome{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		return out, fmt.Errorf("starting %s: %w", cmd.Program, err)
	}
	return out, nil
}
