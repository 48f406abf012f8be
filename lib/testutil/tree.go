// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// WriteTree creates files under root. Keys are slash-separated relative
// paths. A key ending in "/" creates an empty directory. A key ending
// in "!x" creates the file (without the suffix) with mode 0755 instead
// of 0644.
//
//	testutil.WriteTree(t, root, map[string]string{
//	    "main.py":                          "print('hi')\n",
//	    "Demo.app/Contents/MacOS/Demo!x":   "#!/bin/sh\n",
//	    "Demo.app/Contents/Resources/":     "",
//	})
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()

	for key, content := range files {
		if strings.HasSuffix(key, "/") {
			directory := filepath.Join(root, filepath.FromSlash(key))
			if err := os.MkdirAll(directory, 0o755); err != nil {
				t.Fatalf("creating directory %s: %v", directory, err)
			}
			continue
		}

		mode := os.FileMode(0o644)
		name := key
		if trimmed, ok := strings.CutSuffix(key, "!x"); ok {
			name = trimmed
			mode = 0o755
		}

		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating parent of %s: %v", path, err)
		}
		if err := os.WriteFile(path, []byte(content), mode); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
		// WriteFile applies the umask; force the requested mode.
		if err := os.Chmod(path, mode); err != nil {
			t.Fatalf("chmod %s: %v", path, err)
		}
	}
}

// TreeEntry is one path captured by SnapshotTree.
type TreeEntry struct {
	Mode    fs.FileMode
	Content string
}

// SnapshotTree walks root and returns every entry keyed by its
// slash-separated relative path. Directories have empty Content;
// symlinks record their target as Content.
func SnapshotTree(t testing.TB, root string) map[string]TreeEntry {
	t.Helper()

	snapshot := make(map[string]TreeEntry)
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		relative, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}

		captured := TreeEntry{Mode: info.Mode()}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			captured.Content = target
		case info.Mode().IsRegular():
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			captured.Content = string(data)
		}
		snapshot[filepath.ToSlash(relative)] = captured
		return nil
	})
	if err != nil {
		t.Fatalf("snapshotting %s: %v", root, err)
	}
	return snapshot
}

// Paths returns the sorted keys of a snapshot.
func Paths(snapshot map[string]TreeEntry) []string {
	paths := make([]string, 0, len(snapshot))
	for path := range snapshot {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
