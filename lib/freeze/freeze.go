// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package freeze turns an entry-point script into an application
// bundle with PyInstaller, run from the provisioned virtual
// environment.
package freeze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/bundlepipe/lib/bundle"
	"github.com/bureau-foundation/bundlepipe/lib/process"
	"github.com/bureau-foundation/bundlepipe/lib/pyruntime"
)

var (
	// ErrEntryMissing reports that the entry script does not exist.
	// Synthesize returns it without running anything.
	ErrEntryMissing = errors.New("entry script not found")

	// ErrFreezer reports that PyInstaller exited non-zero.
	ErrFreezer = errors.New("pyinstaller failed")
)

// Options configures one synthesis.
type Options struct {
	// SourceDir is the workspace source tree. PyInstaller runs here.
	SourceDir string

	// Entry is the entry script, relative to SourceDir.
	Entry string

	// Name is the application name.
	Name string

	Layout bundle.Layout

	// DistDir receives the bundle. WorkDir holds PyInstaller's
	// intermediate files and the generated PyInstaller .spec file.
	DistDir string
	WorkDir string

	// Args are extra PyInstaller arguments, inserted before the entry
	// script.
	Args []string

	Output      io.Writer
	GracePeriod time.Duration
}

// Command returns the PyInstaller invocation Synthesize would run,
// without checking the filesystem.
func Command(rt pyruntime.Runtime, options Options) (process.Invocation, error) {
	if _, err := bundle.New(options.DistDir, options.Name, options.Layout); err != nil {
		return process.Invocation{}, err
	}
	if options.Entry == "" {
		return process.Invocation{}, errors.New("no entry script")
	}

	args := []string{
		"-m", "PyInstaller",
		"--noconfirm",
		"--clean",
		"--log-level", "WARN",
		"--name", options.Name,
		"--distpath", options.DistDir,
		"--workpath", options.WorkDir,
		"--specpath", options.WorkDir,
		"--onedir",
	}
	if options.Layout == bundle.LayoutApp || options.Layout == "" {
		// On macOS, --windowed makes PyInstaller emit <name>.app.
		args = append(args, "--windowed")
	}
	args = append(args, options.Args...)
	args = append(args, entryPath(options))

	return process.Invocation{
		Name:        rt.Python(),
		Args:        args,
		Dir:         options.SourceDir,
		Env:         rt.Env(),
		Output:      options.Output,
		GracePeriod: options.GracePeriod,
	}, nil
}

// Synthesize runs PyInstaller and returns the resulting bundle after
// checking its structure.
func Synthesize(ctx context.Context, runner process.Runner, rt pyruntime.Runtime, options Options) (bundle.Bundle, error) {
	target, err := bundle.New(options.DistDir, options.Name, options.Layout)
	if err != nil {
		return bundle.Bundle{}, err
	}
	if err := checkEntry(options); err != nil {
		return bundle.Bundle{}, err
	}

	invocation, err := Command(rt, options)
	if err != nil {
		return bundle.Bundle{}, err
	}
	result, err := runner.Run(ctx, invocation)
	if err != nil {
		return bundle.Bundle{}, fmt.Errorf("%s: %w", invocation, err)
	}
	if result.ExitCode != 0 {
		return bundle.Bundle{}, fmt.Errorf("%w: exit status %d: %s", ErrFreezer, result.ExitCode, result.Tail())
	}

	if err := bundle.Check(target); err != nil {
		return bundle.Bundle{}, err
	}
	return target, nil
}

func entryPath(options Options) string {
	if filepath.IsAbs(options.Entry) {
		return options.Entry
	}
	return filepath.Join(options.SourceDir, options.Entry)
}

func checkEntry(options Options) error {
	if options.Entry == "" {
		return fmt.Errorf("%w: no entry script configured", ErrEntryMissing)
	}
	path := entryPath(options)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEntryMissing, options.Entry)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrEntryMissing, options.Entry)
	}
	return nil
}
