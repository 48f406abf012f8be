// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifactstore is the local, content-addressed store that
// receives published archives.
//
// Archives are stored once per content digest and made reachable
// through named slots. A slot is a mutable name-to-digest mapping
// ("demo/macos/latest", "release/1.4.0"); the blob behind it is
// immutable. Overwriting a slot is refused unless the caller allows it,
// which lets release slots behave as write-once names while "latest"
// style slots are repointed on every run.
//
// On-disk layout under the store root:
//
//	blobs/<hh>/<hh>/<digest>[.age]    archive bytes
//	slots/<hh>/<hh>/<name-hash>.cbor  one SlotRecord per slot
//	tmp/                              staging for atomic writes
//
// The blob digest is the BLAKE3-256 hash of the plaintext archive, the
// same value [archive.Archive] reports. Slot file names are a keyed
// BLAKE3 hash of the slot name so that hierarchical names map to flat,
// filesystem-safe paths; each record carries the original name, so
// the index is rebuilt by scanning the slots directory.
//
// When the store is configured with age recipients, blobs are
// encrypted at rest (filippo.io/age) and carry an ".age" suffix.
// Reading them back requires a matching identity.
//
// Every file is written to tmp/ first and renamed into place, so a
// crashed publish never leaves a partial blob or record under its
// final name.
package artifactstore
