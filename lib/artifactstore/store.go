// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"filippo.io/age"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/bundlepipe/lib/archive"
	"github.com/bureau-foundation/bundlepipe/lib/clock"
	"github.com/bureau-foundation/bundlepipe/lib/codec"
)

var (
	// ErrInvalidSlot reports a slot name that fails ValidateSlotName.
	ErrInvalidSlot = errors.New("invalid slot name")

	// ErrSlotExists reports a publish to an occupied slot without
	// permission to overwrite it.
	ErrSlotExists = errors.New("slot already exists")

	// ErrNotFound reports a slot or reference with no record.
	ErrNotFound = errors.New("artifact not found")

	// ErrIdentityRequired reports an attempt to read an encrypted blob
	// without an age identity.
	ErrIdentityRequired = errors.New("artifact is encrypted and no identity was supplied")

	// ErrDigestMismatch reports a blob whose content no longer matches
	// the digest recorded in its slot.
	ErrDigestMismatch = errors.New("artifact digest mismatch")
)

const encryptedSuffix = ".age"

// Options configures a Store.
type Options struct {
	// Recipients, when non-empty, encrypt every newly published blob.
	Recipients []age.Recipient

	// Clock stamps slot records. Nil means the real clock.
	Clock clock.Clock
}

// PublishOptions controls a single publication.
type PublishOptions struct {
	// AllowOverwrite permits repointing an existing slot.
	AllowOverwrite bool

	// Labels are recorded on the slot.
	Labels map[string]string
}

// Store is a local artifact store. Reads may run concurrently; writes
// are serialized by the store's mutex.
type Store struct {
	root       string
	recipients []age.Recipient
	clock      clock.Clock

	mu    sync.RWMutex
	slots map[string]SlotRecord
}

// New opens the store rooted at root, creating the directory layout if
// needed and loading every slot record into memory.
func New(root string, options Options) (*Store, error) {
	if root == "" {
		return nil, errors.New("artifact store root is empty")
	}
	absolute, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for _, directory := range []string{"blobs", "slots", "tmp"} {
		if err := os.MkdirAll(filepath.Join(absolute, directory), 0o755); err != nil {
			return nil, fmt.Errorf("artifact store %s unreachable: %w", absolute, err)
		}
	}

	storeClock := options.Clock
	if storeClock == nil {
		storeClock = clock.Real()
	}

	store := &Store{
		root:       absolute,
		recipients: options.Recipients,
		clock:      storeClock,
		slots:      make(map[string]SlotRecord),
	}
	if err := store.scanSlots(); err != nil {
		return nil, fmt.Errorf("scanning slots: %w", err)
	}
	return store, nil
}

// Root returns the absolute store root.
func (s *Store) Root() string {
	return s.root
}

// Encrypts reports whether newly published blobs are encrypted.
func (s *Store) Encrypts() bool {
	return len(s.recipients) > 0
}

// Publish stores a created archive under slot. The slot is checked
// before any bytes are copied: an occupied slot without AllowOverwrite
// fails with ErrSlotExists and leaves the store untouched. The copied
// bytes must hash to the archive's recorded digest.
func (s *Store) Publish(created *archive.Archive, slot string, options PublishOptions) (ArtifactRef, error) {
	if err := ValidateSlotName(slot); err != nil {
		return ArtifactRef{}, err
	}
	if created == nil {
		return ArtifactRef{}, errors.New("no archive to publish")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.slots[slot]
	if exists && !options.AllowOverwrite {
		return ArtifactRef{}, fmt.Errorf("%w: %q points to %s", ErrSlotExists, slot, existing.Ref())
	}

	source, err := os.Open(created.Path)
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("opening archive: %w", err)
	}
	defer source.Close()

	digest, size, storedSize, err := s.writeBlob(source, created.Digest)
	if err != nil {
		return ArtifactRef{}, err
	}

	now := s.clock.Now().UTC()
	record := SlotRecord{
		Name:        slot,
		Digest:      digest.String(),
		Filename:    filepath.Base(created.Path),
		Format:      string(created.Format),
		ContentType: created.Format.ContentType(),
		Size:        size,
		StoredSize:  storedSize,
		Encrypted:   s.Encrypts(),
		Labels:      maps.Clone(options.Labels),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if exists {
		record.CreatedAt = existing.CreatedAt
	}

	if err := s.writeSlot(record); err != nil {
		return ArtifactRef{}, err
	}
	s.slots[slot] = record

	ref := ArtifactRef{
		Slot:     slot,
		Digest:   record.Digest,
		Ref:      digest.Ref(),
		Size:     size,
		StoredAt: now,
	}
	if exists {
		ref.Replaced = existing.Digest
	}
	return ref, nil
}

// Get returns the record for slot.
func (s *Store) Get(slot string) (SlotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.slots[slot]
	if !exists {
		return SlotRecord{}, fmt.Errorf("%w: slot %q", ErrNotFound, slot)
	}
	return record, nil
}

// Resolve finds a slot by name, by short reference ("art-<12 hex>"),
// or by full digest. A reference or digest shared by several slots
// resolves to the most recently updated one.
func (s *Store) Resolve(nameOrRef string) (SlotRecord, error) {
	if record, err := s.Get(nameOrRef); err == nil {
		return record, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *SlotRecord
	for _, record := range s.slots {
		if record.Ref() != nameOrRef && record.Digest != strings.ToLower(nameOrRef) {
			continue
		}
		if match == nil || record.UpdatedAt.After(match.UpdatedAt) {
			matched := record
			match = &matched
		}
	}
	if match == nil {
		return SlotRecord{}, fmt.Errorf("%w: %q", ErrNotFound, nameOrRef)
	}
	return *match, nil
}

// List returns every slot whose name starts with prefix, sorted by
// name.
func (s *Store) List(prefix string) []SlotRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []SlotRecord
	for name, record := range s.slots {
		if strings.HasPrefix(name, prefix) {
			records = append(records, record)
		}
	}
	slices.SortFunc(records, func(a, b SlotRecord) int {
		return strings.Compare(a.Name, b.Name)
	})
	return records
}

// Open returns a reader over the plaintext archive stored under slot.
// Encrypted blobs are decrypted with identities. The reader verifies
// the content digest as it is consumed: a final Read returns
// ErrDigestMismatch instead of io.EOF if the blob was altered.
func (s *Store) Open(slot string, identities ...age.Identity) (io.ReadCloser, SlotRecord, error) {
	record, err := s.Get(slot)
	if err != nil {
		return nil, SlotRecord{}, err
	}
	digest, err := ParseDigest(record.Digest)
	if err != nil {
		return nil, SlotRecord{}, fmt.Errorf("slot %q: %w", slot, err)
	}
	if record.Encrypted && len(identities) == 0 {
		return nil, SlotRecord{}, fmt.Errorf("%w (slot %q)", ErrIdentityRequired, slot)
	}

	file, err := os.Open(s.blobPath(digest, record.Encrypted))
	if err != nil {
		return nil, SlotRecord{}, fmt.Errorf("opening blob for slot %q: %w", slot, err)
	}

	var plaintext io.Reader = file
	if record.Encrypted {
		plaintext, err = age.Decrypt(file, identities...)
		if err != nil {
			file.Close()
			return nil, SlotRecord{}, fmt.Errorf("decrypting slot %q: %w", slot, err)
		}
	}

	return &verifyingReader{
		reader: plaintext,
		closer: file,
		hasher: blake3.New(),
		want:   digest,
	}, record, nil
}

// Delete removes slot. The blob is removed too when no other slot
// references it.
func (s *Store) Delete(slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.slots[slot]
	if !exists {
		return fmt.Errorf("%w: slot %q", ErrNotFound, slot)
	}

	if err := os.Remove(s.slotPath(slot)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing slot %q: %w", slot, err)
	}
	delete(s.slots, slot)

	for _, other := range s.slots {
		if other.Digest == record.Digest && other.Encrypted == record.Encrypted {
			return nil
		}
	}
	digest, err := ParseDigest(record.Digest)
	if err != nil {
		return nil
	}
	if err := os.Remove(s.blobPath(digest, record.Encrypted)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing blob %s: %w", digest.Ref(), err)
	}
	return nil
}

// writeBlob copies source into the blob area, encrypting when
// configured, and returns the plaintext digest, plaintext size, and
// stored size. A non-empty expected digest must match the copied
// content.
func (s *Store) writeBlob(source io.Reader, expected string) (Digest, int64, int64, error) {
	temporary, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "blob-*")
	if err != nil {
		return Digest{}, 0, 0, fmt.Errorf("artifact store unreachable: %w", err)
	}
	temporaryPath := temporary.Name()

	success := false
	defer func() {
		if !success {
			temporary.Close()
			os.Remove(temporaryPath)
		}
	}()

	var sink io.WriteCloser = nopCloser{temporary}
	if s.Encrypts() {
		sink, err = age.Encrypt(temporary, s.recipients...)
		if err != nil {
			return Digest{}, 0, 0, fmt.Errorf("starting encryption: %w", err)
		}
	}

	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(sink, hasher), source)
	if err != nil {
		return Digest{}, 0, 0, fmt.Errorf("copying archive into store: %w", err)
	}
	if err := sink.Close(); err != nil {
		return Digest{}, 0, 0, fmt.Errorf("finishing encryption: %w", err)
	}
	if err := temporary.Sync(); err != nil {
		return Digest{}, 0, 0, fmt.Errorf("syncing blob: %w", err)
	}
	storedSize, err := temporary.Seek(0, io.SeekCurrent)
	if err != nil {
		return Digest{}, 0, 0, err
	}
	if err := temporary.Close(); err != nil {
		return Digest{}, 0, 0, fmt.Errorf("closing blob: %w", err)
	}

	digest := digestOf(hasher)
	if expected != "" && !strings.EqualFold(expected, digest.String()) {
		return Digest{}, 0, 0, fmt.Errorf("%w: archive records %s, copied content hashes to %s", ErrDigestMismatch, expected, digest)
	}
	finalPath := s.blobPath(digest, s.Encrypts())

	// Plaintext blobs with the same digest are byte-identical, so an
	// existing one is kept. Encrypted blobs are replaced so the newest
	// recipient set always applies.
	if info, err := os.Stat(finalPath); err == nil && !s.Encrypts() {
		os.Remove(temporaryPath)
		success = true
		return digest, size, info.Size(), nil
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return Digest{}, 0, 0, fmt.Errorf("creating blob shard directory: %w", err)
	}
	if err := os.Chmod(temporaryPath, 0o444); err != nil {
		return Digest{}, 0, 0, err
	}
	if err := os.Rename(temporaryPath, finalPath); err != nil {
		return Digest{}, 0, 0, fmt.Errorf("renaming blob into place: %w", err)
	}
	success = true
	return digest, size, storedSize, nil
}

func (s *Store) writeSlot(record SlotRecord) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding slot %q: %w", record.Name, err)
	}

	finalPath := s.slotPath(record.Name)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating slot shard directory: %w", err)
	}

	temporary, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "slot-*.cbor")
	if err != nil {
		return fmt.Errorf("creating temporary slot file: %w", err)
	}
	temporaryPath := temporary.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(temporaryPath)
		}
	}()

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing slot record: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing temporary slot file: %w", err)
	}
	if err := os.Rename(temporaryPath, finalPath); err != nil {
		return fmt.Errorf("renaming slot record to %s: %w", finalPath, err)
	}
	success = true
	return nil
}

func (s *Store) scanSlots() error {
	return filepath.WalkDir(filepath.Join(s.root, "slots"), func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cbor") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading slot file %s: %w", path, err)
		}
		var record SlotRecord
		if err := codec.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("decoding slot file %s: %w", path, err)
		}
		if record.Name == "" {
			// Incomplete record from an older layout; ignore it.
			return nil
		}
		s.slots[record.Name] = record
		return nil
	})
}

func (s *Store) blobPath(digest Digest, encrypted bool) string {
	hexString := digest.String()
	name := hexString
	if encrypted {
		name += encryptedSuffix
	}
	return filepath.Join(s.root, "blobs", hexString[:2], hexString[2:4], name)
}

func (s *Store) slotPath(name string) string {
	hexString := keyedHash(slotNameDomainKey, []byte(name)).String()
	return filepath.Join(s.root, "slots", hexString[:2], hexString[2:4], hexString+".cbor")
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// verifyingReader hashes everything read through it and checks the
// digest at end of stream.
type verifyingReader struct {
	reader io.Reader
	closer io.Closer
	hasher *blake3.Hasher
	want   Digest
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.reader.Read(p)
	v.hasher.Write(p[:n])
	if errors.Is(err, io.EOF) {
		if got := digestOf(v.hasher); got != v.want {
			return n, fmt.Errorf("%w: stored %s, read %s", ErrDigestMismatch, v.want.Ref(), got.Ref())
		}
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	return v.closer.Close()
}
