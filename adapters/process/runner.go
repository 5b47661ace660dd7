// Package process runs the external classifier tools.
package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"morphocv/internal"
	"morphocv/internal/errors"
	"morphocv/ports"
)

// maxOutput bounds the captured stdout+stderr kept for error messages
const maxOutput = 64 * 1024

// Runner executes commands with os/exec. Cancellation follows ctx; no
// timeout is applied here.
type Runner struct {
	logger *internal.Logger
}

// NewRunner creates a command runner
func NewRunner(logger *internal.Logger) ports.CommandRunner {
	return &Runner{logger: logger.WithComponent("process")}
}

// Run executes cmd and returns its combined output. A non-zero exit is
// reported as an ExternalProcessError carrying the output tail.
func (r *Runner) Run(ctx context.Context, cmd ports.Command) ([]byte, error) {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	var out limitedBuffer
	c.Stdout = &out
	c.Stderr = &out

	line := Describe(cmd)
	r.logger.Debug("exec %s", line)
	err := c.Run()
	if err != nil {
		if ctx.Err() != nil {
			return out.Bytes(), errors.ExternalProcessError(line, ctx.Err())
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return out.Bytes(), errors.ExternalProcessError(line,
				fmt.Errorf("exit code %d: %s", exitErr.ExitCode(), strings.TrimSpace(out.String())))
		}
		return out.Bytes(), errors.ExternalProcessError(line, err)
	}
	if out.Len() > 0 {
		r.logger.Trace("%s output:\n%s", cmd.Path, strings.TrimRight(out.String(), "\n"))
	}
	return out.Bytes(), nil
}

// Describe renders a command line for logs and error messages
func Describe(cmd ports.Command) string {
	if len(cmd.Args) == 0 {
		return cmd.Path
	}
	return cmd.Path + " " + strings.Join(cmd.Args, " ")
}

// limitedBuffer keeps the last maxOutput bytes written to it
type limitedBuffer struct {
	bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= maxOutput {
		b.Reset()
		b.Buffer.Write(p[n-maxOutput:])
		return n, nil
	}
	if over := b.Len() + n - maxOutput; over > 0 {
		b.Next(over)
	}
	b.Buffer.Write(p)
	return n, nil
}
