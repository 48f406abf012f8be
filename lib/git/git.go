// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for source
// acquisition: resolving a ref to a commit and exporting that commit's
// tree. All commands target a specific repository directory via the -C
// flag, which every Repository method injects, and run through a
// [process.Runner] so they share process-group cancellation with the
// rest of the pipeline and can be scripted in tests.
package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/bundlepipe/lib/process"
)

// ErrUnknownRevision reports a ref that does not name a commit in the
// repository.
var ErrUnknownRevision = errors.New("unknown revision")

// ErrNotRepository reports a directory that is not inside a git work
// tree or bare repository.
var ErrNotRepository = errors.New("not a git repository")

// Repository represents a git repository at a specific directory.
type Repository struct {
	dir    string
	runner process.Runner
}

// NewRepository returns a Repository targeting dir. A nil runner means
// process.ExecRunner.
func NewRepository(dir string, runner process.Runner) *Repository {
	if runner == nil {
		runner = process.ExecRunner{}
	}
	return &Repository{dir: dir, runner: runner}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns its
// output with surrounding whitespace trimmed. A non-zero exit is an
// error carrying the output tail.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	invocation := process.Invocation{
		Name: "git",
		Args: append([]string{"-C", r.dir}, args...),
		// Keep git from prompting for credentials or paging output.
		Env: []string{"GIT_TERMINAL_PROMPT=0", "GIT_PAGER=cat"},
	}
	result, err := r.runner.Run(ctx, invocation)
	if err != nil {
		return "", fmt.Errorf("git %s in %s: %w", strings.Join(args, " "), r.dir, err)
	}
	if result.ExitCode != 0 {
		return "", &CommandError{
			Args:     args,
			Dir:      r.dir,
			ExitCode: result.ExitCode,
			Output:   result.Tail(),
		}
	}
	return result.Tail(), nil
}

// CommandError is a git command that exited non-zero.
type CommandError struct {
	Args     []string
	Dir      string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s in %s: exit status %d (output: %s)",
		strings.Join(e.Args, " "), e.Dir, e.ExitCode, e.Output)
}

// IsRepository reports whether the directory is inside a git
// repository.
func (r *Repository) IsRepository(ctx context.Context) bool {
	_, err := r.Run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// ResolveCommit resolves ref (branch, tag, abbreviated or full hash,
// "HEAD~2") to a full commit hash. Refs that do not exist or do not
// name a commit wrap ErrUnknownRevision; a directory outside any
// repository wraps ErrNotRepository.
func (r *Repository) ResolveCommit(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty ref", ErrUnknownRevision)
	}
	if strings.HasPrefix(ref, "-") {
		return "", fmt.Errorf("%w: %q looks like an option", ErrUnknownRevision, ref)
	}
	if !r.IsRepository(ctx) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %s", ErrNotRepository, r.dir)
	}

	output, err := r.Run(ctx, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		var commandError *CommandError
		if errors.As(err, &commandError) {
			return "", fmt.Errorf("%w: %q in %s", ErrUnknownRevision, ref, r.dir)
		}
		return "", err
	}

	commit := lastLine(output)
	if !isHexHash(commit) {
		return "", fmt.Errorf("git rev-parse %q returned %q, not a commit hash", ref, commit)
	}
	return commit, nil
}

// ExportTar writes the tree of commit as an uncompressed tar file at
// tarPath (git archive --format=tar). Members are relative to the
// repository root; the commit ID is recorded in a pax global header.
func (r *Repository) ExportTar(ctx context.Context, commit, tarPath string) error {
	_, err := r.Run(ctx, "archive", "--format=tar", "--output="+tarPath, commit)
	return err
}

// Describe returns "git describe --always --dirty" for provenance
// labels, or the empty string when it fails.
func (r *Repository) Describe(ctx context.Context) string {
	output, err := r.Run(ctx, "describe", "--always", "--dirty", "--tags")
	if err != nil {
		return ""
	}
	return lastLine(output)
}

func lastLine(output string) string {
	output = strings.TrimSpace(output)
	if index := strings.LastIndexByte(output, '\n'); index >= 0 {
		return strings.TrimSpace(output[index+1:])
	}
	return output
}

func isHexHash(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
