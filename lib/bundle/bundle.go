// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Layout identifies the directory structure of a bundle.
type Layout string

const (
	LayoutApp    Layout = "app"
	LayoutOnedir Layout = "onedir"
)

// ParseLayout parses a layout name. The empty string is LayoutApp.
func ParseLayout(name string) (Layout, error) {
	switch Layout(name) {
	case "", LayoutApp:
		return LayoutApp, nil
	case LayoutOnedir:
		return LayoutOnedir, nil
	default:
		return "", fmt.Errorf("unknown bundle layout %q (supported: app, onedir)", name)
	}
}

// DirectoryName returns the name of the bundle directory for an
// application called name.
func (l Layout) DirectoryName(name string) string {
	if l == LayoutApp {
		return name + ".app"
	}
	return name
}

// ExecutableSubpath returns the executable's slash-separated path
// relative to the bundle directory.
func (l Layout) ExecutableSubpath(name string) string {
	if l == LayoutApp {
		return "Contents/MacOS/" + name
	}
	return name
}

// ErrMalformed reports a bundle whose executable is not where its
// layout says it should be.
var ErrMalformed = errors.New("malformed bundle")

// Bundle is a synthesized application bundle on disk.
type Bundle struct {
	// Name is the application name (no ".app" suffix).
	Name string `json:"name"`

	// Layout is the bundle's directory structure.
	Layout Layout `json:"layout"`

	// Root is the absolute path of the bundle directory
	// (".../dist/Demo.app" or ".../dist/Demo").
	Root string `json:"root"`
}

// New describes the bundle for name with the given layout inside
// distDirectory. It does not touch the filesystem; use [Check] to
// confirm the bundle exists.
func New(distDirectory, name string, layout Layout) (Bundle, error) {
	if err := ValidateName(name); err != nil {
		return Bundle{}, err
	}
	if _, err := ParseLayout(string(layout)); err != nil {
		return Bundle{}, err
	}
	if layout == "" {
		layout = LayoutApp
	}
	return Bundle{
		Name:   name,
		Layout: layout,
		Root:   filepath.Join(distDirectory, layout.DirectoryName(name)),
	}, nil
}

// Open describes an existing bundle directory. The layout is inferred
// from the directory name: a ".app" suffix means LayoutApp. The bundle
// is checked before it is returned.
func Open(root string) (Bundle, error) {
	absolute, err := filepath.Abs(root)
	if err != nil {
		return Bundle{}, err
	}
	base := filepath.Base(absolute)
	layout := LayoutOnedir
	name := base
	if trimmed, ok := strings.CutSuffix(base, ".app"); ok {
		layout = LayoutApp
		name = trimmed
	}
	bundle, err := New(filepath.Dir(absolute), name, layout)
	if err != nil {
		return Bundle{}, err
	}
	if err := Check(bundle); err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}

// ValidateName checks that name can be used as an application and file
// name.
func ValidateName(name string) error {
	switch {
	case name == "":
		return errors.New("bundle name is empty")
	case name == "." || name == "..":
		return fmt.Errorf("bundle name %q is not a valid file name", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("bundle name %q contains a path separator or NUL", name)
	case strings.HasSuffix(name, ".app"):
		return fmt.Errorf("bundle name %q must not include the .app suffix", name)
	}
	return nil
}

// Executable returns the absolute path of the bundle's main binary.
func (b Bundle) Executable() string {
	return filepath.Join(b.Root, filepath.FromSlash(b.Layout.ExecutableSubpath(b.Name)))
}

// Parent returns the directory containing the bundle directory (the
// dist directory for a synthesized bundle).
func (b Bundle) Parent() string {
	return filepath.Dir(b.Root)
}

// Check verifies the bundle's structure: the bundle directory exists
// and the executable is a regular file at the layout's sub-path.
// Failures wrap [ErrMalformed].
func Check(b Bundle) error {
	info, err := os.Stat(b.Root)
	if err != nil {
		return fmt.Errorf("%w: bundle directory: %w", ErrMalformed, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMalformed, b.Root)
	}

	executable := b.Executable()
	info, err = os.Lstat(executable)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: executable %s not found (layout %s)", ErrMalformed, b.Layout.ExecutableSubpath(b.Name), b.Layout)
	}
	if err != nil {
		return fmt.Errorf("%w: executable: %w", ErrMalformed, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: executable %s is not a regular file (%s)", ErrMalformed, executable, info.Mode().Type())
	}
	return nil
}
