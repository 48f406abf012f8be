// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin

package xattr

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Stats summarizes a StripTree pass.
type Stats struct {
	// Visited is the number of directories and regular files examined.
	Visited int

	// Removed is the number of attributes removed.
	Removed int
}

// List returns the names of the extended attributes on path. It
// follows symlinks.
func List(path string) ([]string, error) {
	size, err := unix.Listxattr(path, nil)
	if err != nil {
		if isUnsupported(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing xattrs of %s: %w", path, err)
	}
	if size == 0 {
		return nil, nil
	}

	buffer := make([]byte, size)
	for {
		size, err = unix.Listxattr(path, buffer)
		if errors.Is(err, unix.ERANGE) {
			// Attributes were added between the two calls.
			buffer = make([]byte, len(buffer)*2)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing xattrs of %s: %w", path, err)
		}
		break
	}

	var names []string
	for _, name := range bytes.Split(buffer[:size], []byte{0}) {
		if len(name) > 0 {
			names = append(names, string(name))
		}
	}
	return names, nil
}

// Strip removes every strippable extended attribute from path and
// returns how many were removed.
func Strip(path string) (int, error) {
	names, err := List(path)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		if !strippable(name) {
			continue
		}
		if err := unix.Removexattr(path, name); err != nil {
			if errors.Is(err, errNoAttribute) {
				continue
			}
			return removed, fmt.Errorf("removing xattr %s from %s: %w", name, path, err)
		}
		removed++
	}
	return removed, nil
}

// StripTree strips extended attributes from root and everything below
// it. Symlinks are skipped.
func StripTree(root string) (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !entry.IsDir() && !entry.Type().IsRegular() {
			return nil
		}

		stats.Visited++
		removed, err := Strip(path)
		stats.Removed += removed
		return err
	})
	return stats, err
}

func isUnsupported(err error) bool {
	return errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP)
}
