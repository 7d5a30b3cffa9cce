package imfit

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// CommandRunner executes the imfit binary. Tests substitute a fake that
// writes the output files imfit would produce.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec, killing the process when ctx ends
type ExecRunner struct{}

// Run executes name in dir and returns combined stdout/stderr
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return out.Bytes(), ctx.Err()
		}
		return out.Bytes(), fmt.Errorf("%s: %w\n%s", name, err, tail(out.Bytes(), 2048))
	}
	return out.Bytes(), nil
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
