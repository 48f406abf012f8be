// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin

package xattr

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"golang.org/x/sys/unix"
)

const testAttribute = "user.bundlepipe.quarantine"

// setOrSkip sets an attribute, skipping the test on filesystems (tmpfs
// without user_xattr, some container overlays) that reject it.
func setOrSkip(t *testing.T, path, name string) {
	t.Helper()
	err := unix.Setxattr(path, name, []byte("0081;00000000;Safari;"), 0)
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.EPERM) {
		t.Skipf("filesystem does not support user xattrs: %v", err)
	}
	if err != nil {
		t.Fatalf("Setxattr(%s): %v", path, err)
	}
}

func TestStripTreeRemovesUserAttributes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	bundle := filepath.Join(root, "Demo.app")
	binary := filepath.Join(bundle, "Contents", "MacOS", "Demo")
	if err := os.MkdirAll(filepath.Dir(binary), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(binary, []byte("binary"), 0o755); err != nil {
		t.Fatal(err)
	}

	setOrSkip(t, binary, testAttribute)
	setOrSkip(t, bundle, testAttribute)

	names, err := List(binary)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !slices.Contains(names, testAttribute) {
		t.Fatalf("List = %v, want %s present before strip", names, testAttribute)
	}

	stats, err := StripTree(bundle)
	if err != nil {
		t.Fatalf("StripTree: %v", err)
	}
	if stats.Removed != 2 {
		t.Errorf("Removed = %d, want 2", stats.Removed)
	}
	// Demo.app, Contents, MacOS, Demo.
	if stats.Visited != 4 {
		t.Errorf("Visited = %d, want 4", stats.Visited)
	}

	for _, path := range []string{bundle, binary} {
		names, err := List(path)
		if err != nil {
			t.Fatalf("List(%s): %v", path, err)
		}
		if slices.Contains(names, testAttribute) {
			t.Errorf("%s still has %s after strip", path, testAttribute)
		}
	}
}

func TestStripTreeSkipsSymlinks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	target := filepath.Join(root, "target")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("target", filepath.Join(root, "link")); err != nil {
		t.Fatal(err)
	}

	stats, err := StripTree(root)
	if err != nil {
		t.Fatalf("StripTree: %v", err)
	}
	// root and target; the link is not visited.
	if stats.Visited != 2 {
		t.Errorf("Visited = %d, want 2", stats.Visited)
	}
}

func TestStripTreeMissingRoot(t *testing.T) {
	t.Parallel()

	if _, err := StripTree(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing root")
	}
}
