// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace creates the isolated build directory for one
// packaging run and fills it with the application source.
//
// A workspace root holds everything a run writes:
//
//	<root>/src     the acquired source tree
//	<root>/venv    the virtual environment
//	<root>/build   the freezing tool's work directory
//	<root>/dist    the synthesized bundle
//	<root>/out     the archive
//
// Source is either copied from a working tree or, when a git ref is
// given, exported from the resolved commit so that uncommitted changes
// never leak into a build.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/bureau-foundation/bundlepipe/lib/archive"
	"github.com/bureau-foundation/bundlepipe/lib/git"
	"github.com/bureau-foundation/bundlepipe/lib/process"
)

// DefaultExclude lists directory names never copied from a working
// tree: version control metadata and the output of earlier local
// builds.
var DefaultExclude = []string{".git", "dist", "build", "__pycache__", ".venv"}

// Source describes where the application source comes from.
type Source struct {
	// Directory is a working tree or git repository.
	Directory string

	// Ref, when set, selects a commit to export instead of copying
	// the working tree.
	Ref string

	// Exclude adds directory names to DefaultExclude for working-tree
	// copies.
	Exclude []string
}

// String describes the source for logs.
func (s Source) String() string {
	if s.Ref != "" {
		return s.Directory + "@" + s.Ref
	}
	return s.Directory
}

// Workspace is an acquired build workspace.
type Workspace struct {
	// Root is the workspace directory.
	Root string `json:"root"`

	// Source describes what was acquired.
	Source string `json:"source"`

	// Commit is the exported commit hash; empty for working-tree
	// copies.
	Commit string `json:"commit,omitempty"`

	// Files is the number of regular files acquired.
	Files int `json:"files"`
}

// SourceDir returns the directory holding the acquired source.
func (w *Workspace) SourceDir() string { return filepath.Join(w.Root, "src") }

// VenvDir returns the virtual environment directory.
func (w *Workspace) VenvDir() string { return filepath.Join(w.Root, "venv") }

// BuildDir returns the freezing tool's work directory.
func (w *Workspace) BuildDir() string { return filepath.Join(w.Root, "build") }

// DistDir returns the bundle output directory.
func (w *Workspace) DistDir() string { return filepath.Join(w.Root, "dist") }

// OutDir returns the archive output directory.
func (w *Workspace) OutDir() string { return filepath.Join(w.Root, "out") }

// Remove deletes the workspace directory and everything in it.
func (w *Workspace) Remove() error {
	if w == nil || w.Root == "" {
		return nil
	}
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("removing workspace %s: %w", w.Root, err)
	}
	return nil
}

// ErrWorkspaceExists reports a workspace root that already has
// content. Each run must get a fresh directory.
var ErrWorkspaceExists = errors.New("workspace directory is not empty")

// Acquire creates the workspace at root and fills its source
// directory. root must not exist or must be empty. On failure the
// workspace directory is removed.
func Acquire(ctx context.Context, source Source, root string, runner process.Runner) (*Workspace, error) {
	info, err := os.Stat(source.Directory)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", source.Directory)
	}
	sourceDirectory, err := filepath.Abs(source.Directory)
	if err != nil {
		return nil, err
	}

	if err := prepareRoot(root); err != nil {
		return nil, err
	}
	absoluteRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	workspace := &Workspace{Root: absoluteRoot, Source: source.String()}
	success := false
	defer func() {
		if !success {
			workspace.Remove()
		}
	}()

	if source.Ref != "" {
		err = workspace.export(ctx, sourceDirectory, source.Ref, runner)
	} else {
		exclude := append(slices.Clone(DefaultExclude), source.Exclude...)
		workspace.Files, err = copyTree(ctx, sourceDirectory, workspace.SourceDir(), exclude)
	}
	if err != nil {
		return nil, err
	}

	success = true
	return workspace, nil
}

func prepareRoot(root string) error {
	entries, err := os.ReadDir(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(root, 0o755); err != nil {
			return fmt.Errorf("creating workspace: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("workspace %s: %w", root, err)
	case len(entries) > 0:
		return fmt.Errorf("%w: %s", ErrWorkspaceExists, root)
	}
	return nil
}

func (w *Workspace) export(ctx context.Context, directory, ref string, runner process.Runner) error {
	repository := git.NewRepository(directory, runner)
	commit, err := repository.ResolveCommit(ctx, ref)
	if err != nil {
		return err
	}
	w.Commit = commit

	tarPath := filepath.Join(w.Root, "source.tar")
	if err := repository.ExportTar(ctx, commit, tarPath); err != nil {
		return fmt.Errorf("exporting %s: %w", commit, err)
	}
	defer os.Remove(tarPath)

	file, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("opening export: %w", err)
	}
	defer file.Close()

	if err := os.MkdirAll(w.SourceDir(), 0o755); err != nil {
		return err
	}
	if _, err := archive.Extract(file, archive.FormatTar, w.SourceDir()); err != nil {
		return fmt.Errorf("unpacking export of %s: %w", commit, err)
	}

	files := 0
	err = filepath.WalkDir(w.SourceDir(), func(_ string, entry fs.DirEntry, err error) error {
		if err == nil && entry.Type().IsRegular() {
			files++
		}
		return err
	})
	w.Files = files
	return err
}

// copyTree copies the tree at source into destination, skipping
// directories named in exclude at any depth. Regular files keep their
// permission bits; symlinks are recreated as-is; other file types are
// skipped. It returns the number of regular files copied.
func copyTree(ctx context.Context, source, destination string, exclude []string) (int, error) {
	files := 0
	err := filepath.WalkDir(source, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relative, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destination, relative)

		switch {
		case entry.IsDir():
			if relative != "." && slices.Contains(exclude, entry.Name()) {
				return fs.SkipDir
			}
			// A workspace placed inside the source tree must not copy
			// itself.
			if path == destination || path == filepath.Dir(destination) {
				return fs.SkipDir
			}
			return os.MkdirAll(target, 0o755)

		case entry.Type()&fs.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)

		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				return err
			}
			files++
			return copyFile(path, target, info.Mode().Perm())
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("copying source: %w", err)
	}
	return files, nil
}

func copyFile(source, destination string, mode fs.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(destination, mode)
}
