// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pyruntime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/bureau-foundation/bundlepipe/lib/process"
)

var (
	// ErrInterpreterNotFound reports that no candidate interpreter
	// could be run.
	ErrInterpreterNotFound = errors.New("no python interpreter found")

	// ErrVersionMismatch reports that interpreters were found but none
	// has the requested version.
	ErrVersionMismatch = errors.New("no python interpreter matches the requested version")

	// ErrVenv reports a failure creating the virtual environment.
	ErrVenv = errors.New("creating virtual environment failed")
)

// Runtime is a provisioned interpreter and virtual environment.
type Runtime struct {
	// Requested is the version asked for ("3.12").
	Requested string `json:"requested"`

	// Version is the interpreter's full version ("3.12.4").
	Version string `json:"version"`

	// Interpreter is the base interpreter the venv was created from.
	Interpreter string `json:"interpreter"`

	// VenvDir is the virtual environment directory.
	VenvDir string `json:"venv_dir"`

	// Installed maps normalized project names to installed versions.
	// Empty until InstallDependencies runs.
	Installed map[string]string `json:"installed,omitempty"`
}

// Python returns the venv's interpreter path.
func (r Runtime) Python() string {
	return filepath.Join(r.VenvDir, "bin", "python")
}

// BinDir returns the venv's executable directory.
func (r Runtime) BinDir() string {
	return filepath.Join(r.VenvDir, "bin")
}

// Packages returns the installed set as sorted "name==version" lines.
func (r Runtime) Packages() []string {
	names := slices.Collect(maps.Keys(r.Installed))
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = name + "==" + r.Installed[name]
	}
	return lines
}

// Env returns environment entries that make tools resolve the venv
// first and keep Python from writing bytecode into the source tree.
func (r Runtime) Env() []string {
	return []string{
		"VIRTUAL_ENV=" + r.VenvDir,
		"PATH=" + r.BinDir() + string(os.PathListSeparator) + os.Getenv("PATH"),
		"PYTHONDONTWRITEBYTECODE=1",
		"PIP_DISABLE_PIP_VERSION_CHECK=1",
		"PIP_NO_INPUT=1",
	}
}

// ProvisionOptions configures Provision.
type ProvisionOptions struct {
	// Version is the requested version ("3", "3.12", "3.12.4").
	Version string

	// Interpreters maps versions to explicit interpreter paths,
	// tried first.
	Interpreters map[string]string

	// VenvDir is where the virtual environment is created.
	VenvDir string

	// Output receives the output of the commands run.
	Output io.Writer

	// GracePeriod is passed to every invocation.
	GracePeriod time.Duration
}

// versionProbe prints the full version and the resolved executable.
const versionProbe = "import sys; print('%d.%d.%d' % sys.version_info[:3]); print(sys.executable)"

// Provision finds an interpreter matching options.Version and creates
// a virtual environment from it.
func Provision(ctx context.Context, runner process.Runner, options ProvisionOptions) (Runtime, error) {
	if options.Version == "" {
		return Runtime{}, errors.New("no python version requested")
	}
	if options.VenvDir == "" {
		return Runtime{}, errors.New("no virtual environment directory")
	}

	candidates := Candidates(options.Version, options.Interpreters)
	var attempts []string
	found := false

	for _, candidate := range candidates {
		result, err := runner.Run(ctx, process.Invocation{
			Name:        candidate,
			Args:        []string{"-c", versionProbe},
			GracePeriod: options.GracePeriod,
		})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Runtime{}, ctxErr
		}
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", candidate, err))
			continue
		}
		if result.ExitCode != 0 {
			attempts = append(attempts, fmt.Sprintf("%s: exit status %d: %s", candidate, result.ExitCode, result.Tail()))
			continue
		}

		version, executable, err := parseProbe(result.Tail())
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", candidate, err))
			continue
		}
		found = true
		if !VersionMatches(options.Version, version) {
			attempts = append(attempts, fmt.Sprintf("%s: version %s", candidate, version))
			continue
		}
		if executable == "" {
			executable = candidate
		}

		runtime := Runtime{
			Requested:   options.Version,
			Version:     version,
			Interpreter: executable,
			VenvDir:     options.VenvDir,
		}
		if err := createVenv(ctx, runner, runtime, options); err != nil {
			return Runtime{}, err
		}
		return runtime, nil
	}

	sentinel := ErrInterpreterNotFound
	if found {
		sentinel = ErrVersionMismatch
	}
	return Runtime{}, fmt.Errorf("%w: python %s (tried %s)", sentinel, options.Version, strings.Join(attempts, "; "))
}

// Candidates lists the interpreters Provision tries for version, in
// order: the configured path for that exact version, then
// python<version> on PATH, then python<major>, then python3.
func Candidates(version string, configured map[string]string) []string {
	var candidates []string
	add := func(name string) {
		if name != "" && !slices.Contains(candidates, name) {
			candidates = append(candidates, name)
		}
	}
	add(configured[version])
	add("python" + version)
	if major, _, ok := strings.Cut(version, "."); ok {
		add("python" + major)
	}
	add("python3")
	return candidates
}

func parseProbe(output string) (version, executable string, err error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", "", errors.New("no version reported")
	}
	// Interpreters may print warnings first; the probe's two lines are
	// last.
	if len(lines) >= 2 {
		version = strings.TrimSpace(lines[len(lines)-2])
		executable = strings.TrimSpace(lines[len(lines)-1])
	} else {
		version = strings.TrimSpace(lines[0])
	}
	if !isDottedNumber(version) {
		return "", "", fmt.Errorf("unexpected version output %q", version)
	}
	return version, executable, nil
}

func isDottedNumber(s string) bool {
	if s == "" {
		return false
	}
	for part := range strings.SplitSeq(s, ".") {
		if part == "" {
			return false
		}
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// VersionMatches reports whether actual satisfies requested, compared
// component by component: every component of requested must equal the
// corresponding component of actual. "3.10" matches "3.10.12" but not
// "3.1.0" or "3.100.0".
func VersionMatches(requested, actual string) bool {
	want := strings.Split(strings.TrimSpace(requested), ".")
	have := strings.Split(strings.TrimSpace(actual), ".")
	if len(want) > len(have) {
		return false
	}
	for i := range want {
		if want[i] != have[i] {
			return false
		}
	}
	return true
}

func createVenv(ctx context.Context, runner process.Runner, runtime Runtime, options ProvisionOptions) error {
	if err := os.MkdirAll(filepath.Dir(runtime.VenvDir), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrVenv, err)
	}
	invocation := process.Invocation{
		Name:        runtime.Interpreter,
		Args:        []string{"-m", "venv", "--clear", runtime.VenvDir},
		Output:      options.Output,
		GracePeriod: options.GracePeriod,
	}
	result, err := runner.Run(ctx, invocation)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrVenv, invocation, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %s exited %d: %s", ErrVenv, invocation, result.ExitCode, result.Tail())
	}
	if _, err := os.Stat(runtime.Python()); err != nil {
		return fmt.Errorf("%w: venv interpreter missing: %w", ErrVenv, err)
	}
	return nil
}
