// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pyruntime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/bundlepipe/lib/manifest"
	"github.com/bureau-foundation/bundlepipe/lib/process"
)

var (
	// ErrInstall reports that pip exited non-zero.
	ErrInstall = errors.New("dependency installation failed")

	// ErrMissingAfterInstall reports that pip succeeded but a requested
	// project is absent from the environment.
	ErrMissingAfterInstall = errors.New("requirements missing after installation")
)

// InstallOptions configures InstallDependencies.
type InstallOptions struct {
	// Manifest is the requirements file path.
	Manifest string

	// Extra lists additional requirement specifiers installed with
	// the manifest, typically the freezing tool ("pyinstaller>=6").
	Extra []string

	// PipArgs are appended to the pip install command line.
	PipArgs []string

	// Dir is pip's working directory, normally the source tree so that
	// relative paths in the manifest resolve.
	Dir string

	Output      io.Writer
	GracePeriod time.Duration
}

// InstallDependencies installs the manifest and options.Extra into
// rt's virtual environment and returns a copy of rt with Installed
// populated from "pip freeze". The manifest is parsed and checked for
// conflicting pins before pip runs, so a malformed or contradictory
// manifest fails without touching the network.
func InstallDependencies(ctx context.Context, runner process.Runner, rt Runtime, options InstallOptions) (Runtime, *manifest.Manifest, error) {
	if rt.VenvDir == "" {
		return Runtime{}, nil, errors.New("runtime has no virtual environment")
	}

	parsed, err := manifest.Parse(options.Manifest)
	if err != nil {
		return Runtime{}, nil, fmt.Errorf("reading requirements: %w", err)
	}
	combined, err := withExtras(parsed, options.Extra)
	if err != nil {
		return Runtime{}, nil, err
	}
	if err := combined.Check(); err != nil {
		return Runtime{}, nil, err
	}

	args := []string{"-m", "pip", "install", "--disable-pip-version-check", "--no-input", "-r", options.Manifest}
	args = append(args, options.Extra...)
	args = append(args, options.PipArgs...)
	install := process.Invocation{
		Name:        rt.Python(),
		Args:        args,
		Dir:         options.Dir,
		Env:         rt.Env(),
		Output:      options.Output,
		GracePeriod: options.GracePeriod,
	}
	result, err := runner.Run(ctx, install)
	if err != nil {
		return Runtime{}, nil, fmt.Errorf("%s: %w", install, err)
	}
	if result.ExitCode != 0 {
		return Runtime{}, nil, fmt.Errorf("%w: pip exited %d: %s", ErrInstall, result.ExitCode, result.Tail())
	}

	installed, err := Freeze(ctx, runner, rt, options.GracePeriod)
	if err != nil {
		return Runtime{}, nil, err
	}
	if missing := combined.Missing(installed); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, requirement := range missing {
			names[i] = requirement.Name
		}
		return Runtime{}, nil, fmt.Errorf("%w: %s", ErrMissingAfterInstall, strings.Join(names, ", "))
	}

	updated := rt
	updated.Installed = installed
	return updated, combined, nil
}

// Freeze reports the projects installed in rt's environment.
func Freeze(ctx context.Context, runner process.Runner, rt Runtime, gracePeriod time.Duration) (map[string]string, error) {
	// The runner's result keeps only a tail; capture the full listing.
	var listing bytes.Buffer
	freeze := process.Invocation{
		Name:        rt.Python(),
		Args:        []string{"-m", "pip", "freeze", "--all", "--disable-pip-version-check"},
		Env:         rt.Env(),
		Output:      &listing,
		GracePeriod: gracePeriod,
	}
	result, err := runner.Run(ctx, freeze)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", freeze, err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("%w: pip freeze exited %d: %s", ErrInstall, result.ExitCode, result.Tail())
	}
	return manifest.ParseFreeze(listing.String()), nil
}

// withExtras returns a copy of m with the extra specifiers appended as
// requirements so they take part in conflict and presence checks.
func withExtras(m *manifest.Manifest, extra []string) (*manifest.Manifest, error) {
	combined := *m
	combined.Requirements = slices.Clone(m.Requirements)
	for _, text := range extra {
		requirement, err := manifest.ParseRequirement(text)
		if err != nil {
			return nil, fmt.Errorf("extra requirement: %w", err)
		}
		requirement.File = "(extra)"
		combined.Requirements = append(combined.Requirements, requirement)
	}
	return &combined, nil
}
