package gotest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// DefaultCommand runs the go tool in JSON mode; test arguments are appended.
var DefaultCommand = []string{"go", "test", "-json"}

// ErrStart reports that the test command could not be started. Hooks are not
// called in that case.
var ErrStart = errors.New("test command did not start")

// RunOptions configures Run.
type RunOptions struct {
	Options
	// Command overrides DefaultCommand.
	Command []string
	// Stderr receives the child's stderr. Nil means os.Stderr.
	Stderr io.Writer
	Dir    string
}

// Run executes the test command, drives hooks from its output and returns the
// child's exit status unchanged. Hooks see SessionStart before the child is
// started and SessionEnd after it exited, or with status 1 when it could not
// be started.
func Run(ctx context.Context, args []string, hooks Hooks, opts RunOptions) (int, error) {
	if hooks == nil {
		hooks = NopHooks{}
	}
	command := opts.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	argv := append(append([]string{}, command[1:]...), args...)
	cmd := exec.CommandContext(ctx, command[0], argv...)
	cmd.Dir = opts.Dir
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("%w: %v", ErrStart, err)
	}

	hooks.SessionStart(ctx)
	if err := cmd.Start(); err != nil {
		hooks.SessionEnd(ctx, 1)
		return 1, fmt.Errorf("%w: %s: %v", ErrStart, command[0], err)
	}
	_, readErr := Consume(ctx, stdout, hooks, opts.Options)
	status := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			hooks.SessionEnd(ctx, 1)
			return 1, err
		}
		status = exitErr.ExitCode()
	}
	hooks.SessionEnd(ctx, status)
	return status, readErr
}

// Watch drives hooks from an existing event stream, such as
// `go test -json ./... | resmon watch`. The exit status is derived from the
// package results in the stream.
func Watch(ctx context.Context, r io.Reader, hooks Hooks, opts Options) (int, error) {
	if hooks == nil {
		hooks = NopHooks{}
	}
	hooks.SessionStart(ctx)
	res, err := Consume(ctx, r, hooks, opts)
	status := res.ExitStatus()
	hooks.SessionEnd(ctx, status)
	return status, err
}
