// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerSuccess(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var live bytes.Buffer
	result, err := ExecRunner{}.Run(context.Background(), Invocation{
		Name:   "sh",
		Args:   []string{"-c", "echo hello; echo problem >&2"},
		Output: &live,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if !strings.Contains(result.Tail(), "hello") || !strings.Contains(result.Tail(), "problem") {
		t.Errorf("Tail = %q, want both stdout and stderr", result.Tail())
	}
	if !strings.Contains(live.String(), "hello") {
		t.Errorf("live output = %q, want it to contain hello", live.String())
	}
}

func TestExecRunnerNonZeroExitIsNotAnError(t *testing.T) {
	t.Parallel()
	requireShell(t)

	result, err := ExecRunner{}.Run(context.Background(), Invocation{
		Name: "sh",
		Args: []string{"-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
}

func TestExecRunnerEnvAndDir(t *testing.T) {
	t.Parallel()
	requireShell(t)

	directory := t.TempDir()
	result, err := ExecRunner{}.Run(context.Background(), Invocation{
		Name: "sh",
		Args: []string{"-c", `printf '%s|%s' "$BUNDLE_NAME" "$(pwd)"`},
		Dir:  directory,
		Env:  []string{"BUNDLE_NAME=DollTower"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	name, workingDirectory, _ := strings.Cut(result.Tail(), "|")
	if name != "DollTower" {
		t.Errorf("BUNDLE_NAME = %q, want DollTower", name)
	}
	if !strings.HasSuffix(workingDirectory, strings.TrimPrefix(directory, "/private")) {
		t.Errorf("pwd = %q, want %q", workingDirectory, directory)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := ExecRunner{}.Run(context.Background(), Invocation{Name: "bundlepipe-no-such-tool"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestExecRunnerCancellationKillsGroup(t *testing.T) {
	t.Parallel()
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := ExecRunner{}.Run(ctx, Invocation{
		Name: "sh",
		Args: []string{"-c", "sleep 30 & sleep 30; wait"},
	})
	if err == nil {
		t.Fatal("expected error from cancelled command")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
	if result.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", result.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancellation took %v; background child kept the pipe open", elapsed)
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	t.Parallel()

	tail := newTailBuffer(5)
	tail.Write([]byte("abc"))
	tail.Write([]byte("defg"))
	if got := string(tail.Bytes()); got != "cdefg" {
		t.Errorf("after two writes = %q, want %q", got, "cdefg")
	}
	tail.Write([]byte("0123456789"))
	if got := string(tail.Bytes()); got != "56789" {
		t.Errorf("after oversized write = %q, want %q", got, "56789")
	}
}

func TestInvocationString(t *testing.T) {
	t.Parallel()

	invocation := Invocation{Name: "python3", Args: []string{"-m", "PyInstaller", "--name", "Doll Tower"}}
	want := `python3 -m PyInstaller --name "Doll Tower"`
	if got := invocation.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
