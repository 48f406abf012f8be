// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pyruntime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/bundlepipe/lib/process"
	"github.com/bureau-foundation/bundlepipe/lib/process/processtest"
)

// createVenvHandler simulates "python -m venv --clear <dir>".
func createVenvHandler(t *testing.T) processtest.Handler {
	return func(invocation process.Invocation) (process.Result, error) {
		dir := invocation.Args[len(invocation.Args)-1]
		if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
			t.Errorf("creating venv: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "bin", "python"), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Errorf("creating venv python: %v", err)
		}
		return process.Result{}, nil
	}
}

func probe(name string) processtest.Matcher {
	return processtest.All(processtest.Name(name), processtest.Args("-c"))
}

func TestVersionMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		requested, actual string
		want              bool
	}{
		{"3.10", "3.10.12", true},
		{"3.10", "3.1.0", false},
		{"3.1", "3.10.12", false},
		{"3.10", "3.100.0", false},
		{"3", "3.12.4", true},
		{"3.12.4", "3.12.4", true},
		{"3.12.4", "3.12", false},
		{"3.12.4", "3.12.5", false},
	}
	for _, test := range tests {
		if got := VersionMatches(test.requested, test.actual); got != test.want {
			t.Errorf("VersionMatches(%q, %q) = %v, want %v", test.requested, test.actual, got, test.want)
		}
	}
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	got := Candidates("3.12", map[string]string{"3.12": "/opt/py312/bin/python3", "3.11": "/opt/py311/bin/python3"})
	want := []string{"/opt/py312/bin/python3", "python3.12", "python3"}
	if !slices.Equal(got, want) {
		t.Errorf("Candidates = %v, want %v", got, want)
	}

	got = Candidates("3", nil)
	if !slices.Equal(got, []string{"python3"}) {
		t.Errorf("Candidates(3) = %v", got)
	}
}

func TestProvisionUsesMatchingInterpreter(t *testing.T) {
	t.Parallel()

	venv := filepath.Join(t.TempDir(), "ws", "venv")
	runner := processtest.New().
		On(probe("python3.12"), processtest.Succeed("3.12.4\n/usr/local/bin/python3.12\n")).
		On(processtest.Args("-m", "venv"), createVenvHandler(t))

	runtime, err := Provision(context.Background(), runner, ProvisionOptions{Version: "3.12", VenvDir: venv})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if runtime.Version != "3.12.4" || runtime.Requested != "3.12" {
		t.Errorf("versions = %q requested %q", runtime.Version, runtime.Requested)
	}
	if runtime.Interpreter != "/usr/local/bin/python3.12" {
		t.Errorf("Interpreter = %q", runtime.Interpreter)
	}
	if runtime.Python() != filepath.Join(venv, "bin", "python") {
		t.Errorf("Python = %q", runtime.Python())
	}

	lines := runner.CommandLines()
	last := lines[len(lines)-1]
	if last != "/usr/local/bin/python3.12 -m venv --clear "+venv {
		t.Errorf("venv command = %q", last)
	}
}

func TestProvisionSkipsWrongVersion(t *testing.T) {
	t.Parallel()

	venv := filepath.Join(t.TempDir(), "venv")
	runner := processtest.New().
		On(probe("/opt/custom/python"), processtest.Succeed("3.1.0\n/opt/custom/python\n")).
		On(probe("python3.10"), processtest.Succeed("Could not find platform independent libraries\n3.10.12\n/usr/bin/python3.10\n")).
		On(processtest.Args("-m", "venv"), createVenvHandler(t))

	runtime, err := Provision(context.Background(), runner, ProvisionOptions{
		Version:      "3.10",
		Interpreters: map[string]string{"3.10": "/opt/custom/python"},
		VenvDir:      venv,
	})
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if runtime.Interpreter != "/usr/bin/python3.10" || runtime.Version != "3.10.12" {
		t.Errorf("runtime = %+v", runtime)
	}
}

func TestProvisionVersionMismatch(t *testing.T) {
	t.Parallel()

	runner := processtest.New().
		On(probe("python3"), processtest.Succeed("3.11.2\n/usr/bin/python3\n"))

	_, err := Provision(context.Background(), runner, ProvisionOptions{Version: "3.12", VenvDir: filepath.Join(t.TempDir(), "venv")})
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("error = %v, want ErrVersionMismatch", err)
	}
	if !strings.Contains(err.Error(), "3.11.2") {
		t.Errorf("error should name the versions found: %v", err)
	}
}

func TestProvisionNoInterpreter(t *testing.T) {
	t.Parallel()

	runner := processtest.New()
	_, err := Provision(context.Background(), runner, ProvisionOptions{Version: "3.12", VenvDir: filepath.Join(t.TempDir(), "venv")})
	if !errors.Is(err, ErrInterpreterNotFound) {
		t.Fatalf("error = %v, want ErrInterpreterNotFound", err)
	}
	if len(runner.Calls()) != 2 {
		t.Errorf("calls = %v", runner.CommandLines())
	}
}

func TestProvisionVenvFailure(t *testing.T) {
	t.Parallel()

	runner := processtest.New().
		On(probe("python3.12"), processtest.Succeed("3.12.1\n/usr/bin/python3.12\n")).
		On(processtest.Args("-m", "venv"), processtest.Exit(1, "ensurepip is not available"))

	_, err := Provision(context.Background(), runner, ProvisionOptions{Version: "3.12", VenvDir: filepath.Join(t.TempDir(), "venv")})
	if !errors.Is(err, ErrVenv) {
		t.Fatalf("error = %v, want ErrVenv", err)
	}
	if !strings.Contains(err.Error(), "ensurepip") {
		t.Errorf("error should carry tool output: %v", err)
	}
}

func TestProvisionVenvWithoutInterpreter(t *testing.T) {
	t.Parallel()

	runner := processtest.New().
		On(probe("python3.12"), processtest.Succeed("3.12.1\n/usr/bin/python3.12\n")).
		On(processtest.Args("-m", "venv"), processtest.Succeed(""))

	_, err := Provision(context.Background(), runner, ProvisionOptions{Version: "3.12", VenvDir: filepath.Join(t.TempDir(), "venv")})
	if !errors.Is(err, ErrVenv) {
		t.Fatalf("error = %v, want ErrVenv", err)
	}
}

func TestProvisionCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Provision(ctx, processtest.New(), ProvisionOptions{Version: "3.12", VenvDir: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestProvisionRequiresInputs(t *testing.T) {
	t.Parallel()

	if _, err := Provision(context.Background(), processtest.New(), ProvisionOptions{VenvDir: t.TempDir()}); err == nil {
		t.Error("expected error without a version")
	}
	if _, err := Provision(context.Background(), processtest.New(), ProvisionOptions{Version: "3"}); err == nil {
		t.Error("expected error without a venv directory")
	}
}

func TestRuntimeEnvAndPackages(t *testing.T) {
	t.Parallel()

	runtime := Runtime{VenvDir: "/ws/venv", Installed: map[string]string{"pygame": "2.5.2", "numpy": "1.26.4"}}
	env := runtime.Env()
	if !slices.Contains(env, "VIRTUAL_ENV=/ws/venv") {
		t.Errorf("Env missing VIRTUAL_ENV: %v", env)
	}
	var path string
	for _, entry := range env {
		if value, ok := strings.CutPrefix(entry, "PATH="); ok {
			path = value
		}
	}
	if !strings.HasPrefix(path, "/ws/venv/bin") {
		t.Errorf("PATH should start with venv bin: %q", path)
	}
	if got := runtime.Packages(); !slices.Equal(got, []string{"numpy==1.26.4", "pygame==2.5.2"}) {
		t.Errorf("Packages = %v", got)
	}
}
