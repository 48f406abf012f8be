// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for bundlepipe
// packages.
//
// [WriteTree] materializes a map of relative paths to contents as a
// directory tree (paths ending in "/" become empty directories, and a
// "!x" suffix on the key marks a file executable). [SnapshotTree]
// captures a tree's file set, modes, and contents so tests can assert
// that an operation left the tree unchanged except for permission bits.
//
// [UniqueID] generates monotonically increasing identifiers for slot
// names and bundle names that must not collide across parallel tests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no bundlepipe-internal dependencies.
package testutil
