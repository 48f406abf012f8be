// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"fmt"
	"strings"
	"time"
)

// MaxSlotNameLength is the maximum byte length of a slot name.
const MaxSlotNameLength = 512

// SlotRecord is the on-disk and in-memory record of one slot.
type SlotRecord struct {
	Name string `cbor:"name" json:"name"`

	// Digest is the hex BLAKE3 digest of the plaintext archive.
	Digest string `cbor:"digest" json:"digest"`

	// Filename is the archive's original base name, used when the
	// artifact is retrieved without an explicit output path.
	Filename string `cbor:"filename" json:"filename"`

	Format      string `cbor:"format" json:"format"`
	ContentType string `cbor:"content_type" json:"content_type"`

	// Size is the plaintext archive size in bytes.
	Size int64 `cbor:"size" json:"size"`

	// StoredSize is the blob size on disk (larger than Size when
	// encrypted).
	StoredSize int64 `cbor:"stored_size" json:"stored_size"`

	Encrypted bool `cbor:"encrypted" json:"encrypted"`

	// Labels carry provenance such as the source commit and run ID.
	Labels map[string]string `cbor:"labels,omitempty" json:"labels,omitempty"`

	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
	UpdatedAt time.Time `cbor:"updated_at" json:"updated_at"`
}

// Ref returns the short reference of the record's digest, or the
// empty string if the digest is malformed.
func (r SlotRecord) Ref() string {
	digest, err := ParseDigest(r.Digest)
	if err != nil {
		return ""
	}
	return digest.Ref()
}

// ArtifactRef identifies a published artifact.
type ArtifactRef struct {
	Slot     string    `json:"slot"`
	Digest   string    `json:"digest"`
	Ref      string    `json:"ref"`
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"stored_at"`

	// Replaced is the digest the slot pointed to before this
	// publication, if it existed.
	Replaced string `json:"replaced,omitempty"`
}

// ValidateSlotName checks a slot name: 1 to MaxSlotNameLength bytes,
// no NUL, no leading or trailing slash, and no "." or ".." element.
func ValidateSlotName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: slot name is empty", ErrInvalidSlot)
	}
	if len(name) > MaxSlotNameLength {
		return fmt.Errorf("%w: slot name is %d bytes, maximum is %d", ErrInvalidSlot, len(name), MaxSlotNameLength)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: slot name contains NUL", ErrInvalidSlot)
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: slot name %q has a leading or trailing slash", ErrInvalidSlot, name)
	}
	for element := range strings.SplitSeq(name, "/") {
		switch element {
		case "":
			return fmt.Errorf("%w: slot name %q has an empty path element", ErrInvalidSlot, name)
		case ".", "..":
			return fmt.Errorf("%w: slot name %q contains a %q element", ErrInvalidSlot, name, element)
		}
	}
	return nil
}
