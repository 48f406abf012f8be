// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/bundlepipe/lib/xattr"
)

// NormalizeResult summarizes what Normalize changed.
type NormalizeResult struct {
	// ExecutableMode is the executable's mode after normalization.
	ExecutableMode os.FileMode `json:"executable_mode"`

	// Visited is the number of paths examined for extended attributes.
	Visited int `json:"visited"`

	// AttributesRemoved is the number of extended attributes stripped.
	AttributesRemoved int `json:"attributes_removed"`
}

// Normalize prepares a synthesized bundle for distribution: the main
// binary gets read and execute bits for user, group, and other, and
// extended attributes (quarantine flags, Finder metadata) are stripped
// from every path in the tree. The set of files is never changed.
//
// A missing executable returns an error wrapping [ErrMalformed] before
// anything is modified.
func Normalize(b Bundle) (NormalizeResult, error) {
	if err := Check(b); err != nil {
		return NormalizeResult{}, err
	}

	executable := b.Executable()
	info, err := os.Stat(executable)
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	mode := info.Mode().Perm() | 0o555
	if err := os.Chmod(executable, mode); err != nil {
		return NormalizeResult{}, fmt.Errorf("setting executable bits on %s: %w", executable, err)
	}

	stats, err := xattr.StripTree(b.Root)
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("stripping extended attributes: %w", err)
	}

	return NormalizeResult{
		ExecutableMode:    mode,
		Visited:           stats.Visited,
		AttributesRemoved: stats.Removed,
	}, nil
}
