// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
)

// Entry is one path in a bundle listing.
type Entry struct {
	// Path is slash-separated and starts with the bundle directory
	// name ("Demo.app/Contents/MacOS/Demo").
	Path string `json:"path"`

	Mode fs.FileMode `json:"mode"`
	Size int64       `json:"size"`

	// Err is set when the path could not be read. The listing
	// continues past it.
	Err error `json:"-"`
}

// String formats the entry the way "ls -l" would show its mode, size,
// and path.
func (e Entry) String() string {
	if e.Err != nil {
		return fmt.Sprintf("?          %10s  %s (%v)", "-", e.Path, e.Err)
	}
	return fmt.Sprintf("%-10s %10d  %s", e.Mode, e.Size, e.Path)
}

// Entries returns a lazy listing of every path in the bundle in
// lexical order, starting with the bundle directory itself. Each call
// to the returned sequence walks the tree again; stopping the range
// loop early stops the walk.
//
// Paths that cannot be read are yielded with Err set rather than
// ending the listing.
func Entries(b Bundle) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		parent := b.Parent()
		stopped := false

		walkErr := filepath.WalkDir(b.Root, func(path string, entry fs.DirEntry, err error) error {
			relative, relErr := filepath.Rel(parent, path)
			if relErr != nil {
				relative = path
			}
			item := Entry{Path: filepath.ToSlash(relative)}

			if err != nil {
				item.Err = err
				if !yield(item) {
					stopped = true
					return fs.SkipAll
				}
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			info, err := entry.Info()
			if err != nil {
				item.Err = err
			} else {
				item.Mode = info.Mode()
				if info.Mode().IsRegular() {
					item.Size = info.Size()
				}
			}
			if !yield(item) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})

		// WalkDir reports a missing root through the callback, so
		// anything left here is unexpected; surface it as one entry.
		if walkErr != nil && !stopped {
			yield(Entry{Path: filepath.Base(b.Root), Err: walkErr})
		}
	}
}
