// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// DefaultTailSize is the number of trailing output bytes retained in
// [Result.Output] when ExecRunner.TailSize is zero.
const DefaultTailSize = 8 * 1024

// Invocation describes one external command.
type Invocation struct {
	// Name is the executable, resolved via PATH when it contains no
	// separator.
	Name string

	// Args are the command-line arguments (without Name).
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds additional KEY=VALUE entries appended to the inherited
	// environment. Later entries win.
	Env []string

	// Output receives combined stdout and stderr as it is produced.
	// May be nil.
	Output io.Writer

	// GracePeriod, when positive, makes cancellation send SIGTERM to
	// the process group first and SIGKILL after the grace period.
	GracePeriod time.Duration
}

// String renders the invocation as a shell-like command line for logs
// and error messages.
func (inv Invocation) String() string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, inv.Name)
	for _, argument := range inv.Args {
		if argument == "" || strings.ContainsAny(argument, " \t\"'") {
			parts = append(parts, fmt.Sprintf("%q", argument))
		} else {
			parts = append(parts, argument)
		}
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	// ExitCode is the process exit status. Zero means success.
	ExitCode int

	// Output holds the tail of the combined stdout/stderr stream.
	Output []byte
}

// Tail returns the retained output with surrounding whitespace
// trimmed, for inclusion in error messages.
func (r Result) Tail() string {
	return strings.TrimSpace(string(r.Output))
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, invocation Invocation) (Result, error)
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	// TailSize bounds Result.Output. Zero means DefaultTailSize.
	TailSize int
}

// Run starts the command in its own process group and waits for it.
//
// The process group matters for tools like PyInstaller and pip that
// spawn children: without it, cancelling the context kills only the
// direct child and the grandchildren keep the output pipe open, so
// Wait blocks until they finish on their own.
func (r ExecRunner) Run(ctx context.Context, invocation Invocation) (Result, error) {
	tailSize := r.TailSize
	if tailSize <= 0 {
		tailSize = DefaultTailSize
	}
	tail := newTailBuffer(tailSize)

	var output io.Writer = tail
	if invocation.Output != nil {
		output = io.MultiWriter(tail, invocation.Output)
	}

	cmd := exec.CommandContext(ctx, invocation.Name, invocation.Args...)
	cmd.Dir = invocation.Dir
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(invocation.Env) > 0 {
		cmd.Env = append(os.Environ(), invocation.Env...)
	}

	gracePeriod := invocation.GracePeriod
	if gracePeriod > 0 {
		cmd.Cancel = func() error {
			processGroupID := -cmd.Process.Pid
			if err := syscall.Kill(processGroupID, syscall.SIGTERM); err != nil {
				return syscall.Kill(processGroupID, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(gracePeriod)
				// ESRCH from an already-exited group is harmless.
				_ = syscall.Kill(processGroupID, syscall.SIGKILL)
			}()
			return nil
		}
		cmd.WaitDelay = gracePeriod + time.Second
	} else {
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	err := cmd.Run()
	result := Result{Output: tail.Bytes()}
	if err == nil {
		return result, nil
	}

	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, fmt.Errorf("%s: %w", invocation.Name, ctx.Err())
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		result.ExitCode = exitError.ExitCode()
		return result, nil
	}

	result.ExitCode = -1
	return result, fmt.Errorf("%s: %w", invocation.Name, err)
}

// tailBuffer is an io.Writer that keeps only the last limit bytes
// written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	written := len(p)
	if len(p) >= b.limit {
		b.data = append(b.data[:0], p[len(p)-b.limit:]...)
		return written, nil
	}
	if overflow := len(b.data) + len(p) - b.limit; overflow > 0 {
		b.data = append(b.data[:0], b.data[overflow:]...)
	}
	b.data = append(b.data, p...)
	return written, nil
}

func (b *tailBuffer) Bytes() []byte {
	result := make([]byte, len(b.data))
	copy(result, b.data)
	return result
}
