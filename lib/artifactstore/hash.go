// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Digest is a BLAKE3-256 content digest.
type Digest [32]byte

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// RefPrefix starts every short artifact reference.
const RefPrefix = "art-"

// Ref returns the short human-facing reference for the digest:
// "art-" followed by the first 12 hex characters.
func (d Digest) Ref() string {
	return RefPrefix + d.String()[:12]
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest parses a 64-character hex digest.
func ParseDigest(s string) (Digest, error) {
	var digest Digest
	if len(s) != 2*len(digest) {
		return digest, fmt.Errorf("digest %q: want %d hex characters, got %d", s, 2*len(digest), len(s))
	}
	if _, err := hex.Decode(digest[:], []byte(strings.ToLower(s))); err != nil {
		return digest, fmt.Errorf("digest %q: %w", s, err)
	}
	return digest, nil
}

// domainKey is a 32-byte BLAKE3 key separating hash uses.
type domainKey [32]byte

func newDomainKey(label string) domainKey {
	var key domainKey
	if len(label) > len(key) {
		panic("domain label longer than 32 bytes: " + label)
	}
	copy(key[:], label)
	return key
}

// slotNameDomainKey keys the hash that turns slot names into file
// names, so slot paths can never coincide with content digests.
var slotNameDomainKey = newDomainKey("bundlepipe.artifact.slot.name")

func keyedHash(key domainKey, data []byte) Digest {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic(err)
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

func digestOf(hasher *blake3.Hasher) Digest {
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
