// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/bureau-foundation/bundlepipe/lib/archive"
	"github.com/bureau-foundation/bundlepipe/lib/clock"
	"github.com/bureau-foundation/bundlepipe/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// makeArchive archives a small bundle whose executable holds content.
func makeArchive(t *testing.T, content string) *archive.Archive {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"Demo.app/Contents/MacOS/Demo!x": content,
	})
	created, err := archive.Create(filepath.Join(root, "Demo.app"), filepath.Join(root, "Demo.tar.gz"), archive.Options{})
	if err != nil {
		t.Fatalf("archive.Create: %v", err)
	}
	return created
}

func newStore(t *testing.T, options Options) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	options.Clock = fake
	store, err := New(t.TempDir(), options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, fake
}

func readAll(t *testing.T, store *Store, slot string, identities ...age.Identity) []byte {
	t.Helper()
	reader, _, err := store.Open(slot, identities...)
	if err != nil {
		t.Fatalf("Open(%q): %v", slot, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("reading %q: %v", slot, err)
	}
	return data
}

func TestPublishAndOpen(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, Options{})
	created := makeArchive(t, "v1")

	ref, err := store.Publish(created, "demo/macos/latest", PublishOptions{
		Labels: map[string]string{"commit": "abc123"},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ref.Digest != created.Digest {
		t.Errorf("ref digest = %s, archive digest = %s", ref.Digest, created.Digest)
	}
	if ref.Ref != RefPrefix+created.Digest[:12] {
		t.Errorf("ref = %q", ref.Ref)
	}
	if ref.Size != created.Size || !ref.StoredAt.Equal(epoch) {
		t.Errorf("ref = %+v", ref)
	}

	record, err := store.Get("demo/macos/latest")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Filename != "Demo.tar.gz" || record.Format != "tar.gz" || record.Labels["commit"] != "abc123" {
		t.Errorf("record = %+v", record)
	}
	if record.Encrypted {
		t.Error("record should not be encrypted")
	}

	want, err := os.ReadFile(created.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, store, "demo/macos/latest"); !bytes.Equal(got, want) {
		t.Error("stored content differs from the archive")
	}
}

func TestPublishExistingSlotWithoutOverwrite(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, Options{})
	first := makeArchive(t, "v1")
	second := makeArchive(t, "v2")

	if _, err := store.Publish(first, "release/1.0", PublishOptions{}); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	_, err := store.Publish(second, "release/1.0", PublishOptions{})
	if !errors.Is(err, ErrSlotExists) {
		t.Fatalf("second Publish = %v, want ErrSlotExists", err)
	}

	record, err := store.Get("release/1.0")
	if err != nil {
		t.Fatal(err)
	}
	if record.Digest != first.Digest {
		t.Errorf("slot repointed to %s despite refusal", record.Digest)
	}

	// The refused archive's content never reached the blob area.
	secondDigest, err := ParseDigest(second.Digest)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(store.blobPath(secondDigest, false)); !os.IsNotExist(err) {
		t.Errorf("refused blob exists (stat err %v)", err)
	}
}

func TestPublishOverwrite(t *testing.T) {
	t.Parallel()

	store, fake := newStore(t, Options{})
	first := makeArchive(t, "v1")
	second := makeArchive(t, "v2")

	if _, err := store.Publish(first, "demo/latest", PublishOptions{}); err != nil {
		t.Fatal(err)
	}
	fake.Advance(time.Hour)
	ref, err := store.Publish(second, "demo/latest", PublishOptions{AllowOverwrite: true})
	if err != nil {
		t.Fatalf("overwrite Publish: %v", err)
	}
	if ref.Replaced != first.Digest {
		t.Errorf("Replaced = %q, want %q", ref.Replaced, first.Digest)
	}

	record, err := store.Get("demo/latest")
	if err != nil {
		t.Fatal(err)
	}
	if record.Digest != second.Digest {
		t.Errorf("slot digest = %s, want %s", record.Digest, second.Digest)
	}
	if !record.CreatedAt.Equal(epoch) || !record.UpdatedAt.Equal(epoch.Add(time.Hour)) {
		t.Errorf("timestamps = created %v updated %v", record.CreatedAt, record.UpdatedAt)
	}
}

func TestPublishRejectsTamperedArchive(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, Options{})
	created := makeArchive(t, "v1")
	if err := os.WriteFile(created.Path, []byte("not the archive"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Publish(created, "demo", PublishOptions{}); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("Publish = %v, want ErrDigestMismatch", err)
	}
	if _, err := store.Get("demo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("slot exists after failed publish: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(store.Root(), "tmp"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("tmp has %d leftover entries", len(entries))
	}
}

func TestValidateSlotName(t *testing.T) {
	t.Parallel()

	invalid := []string{
		"",
		strings.Repeat("a", MaxSlotNameLength+1),
		"nul\x00byte",
		"/leading",
		"trailing/",
		"a//b",
		"../escape",
		"a/../b",
		"a/./b",
	}
	for _, name := range invalid {
		if err := ValidateSlotName(name); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("ValidateSlotName(%q) = %v, want ErrInvalidSlot", name, err)
		}
	}
	valid := []string{"latest", "demo/macos/latest", "release/1.4.0", "a..b", strings.Repeat("a", MaxSlotNameLength)}
	for _, name := range valid {
		if err := ValidateSlotName(name); err != nil {
			t.Errorf("ValidateSlotName(%q): %v", name, err)
		}
	}

	store, _ := newStore(t, Options{})
	if _, err := store.Publish(makeArchive(t, "x"), "../x", PublishOptions{}); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("Publish with invalid slot = %v, want ErrInvalidSlot", err)
	}
}

func TestStoreReloadsSlots(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(root, Options{Clock: clock.Fake(epoch)})
	if err != nil {
		t.Fatal(err)
	}
	created := makeArchive(t, "v1")
	if _, err := store.Publish(created, "demo/macos/latest", PublishOptions{}); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(root, Options{})
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	record, err := reopened.Get("demo/macos/latest")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if record.Digest != created.Digest || !record.CreatedAt.Equal(epoch) {
		t.Errorf("reloaded record = %+v", record)
	}
}

func TestListAndResolve(t *testing.T) {
	t.Parallel()

	store, fake := newStore(t, Options{})
	shared := makeArchive(t, "shared")
	other := makeArchive(t, "other")

	for _, slot := range []string{"demo/b", "demo/a", "tool/latest"} {
		archived := shared
		if slot == "tool/latest" {
			archived = other
		}
		if _, err := store.Publish(archived, slot, PublishOptions{}); err != nil {
			t.Fatal(err)
		}
		fake.Advance(time.Minute)
	}

	records := store.List("demo/")
	if len(records) != 2 || records[0].Name != "demo/a" || records[1].Name != "demo/b" {
		t.Errorf("List(demo/) = %+v", records)
	}
	if all := store.List(""); len(all) != 3 {
		t.Errorf("List(\"\") returned %d records", len(all))
	}

	byName, err := store.Resolve("tool/latest")
	if err != nil || byName.Digest != other.Digest {
		t.Errorf("Resolve(name) = %+v, %v", byName, err)
	}

	// demo/a was published after demo/b, so it wins for the shared ref.
	byRef, err := store.Resolve(RefPrefix + shared.Digest[:12])
	if err != nil || byRef.Name != "demo/a" {
		t.Errorf("Resolve(ref) = %+v, %v", byRef, err)
	}
	byDigest, err := store.Resolve(strings.ToUpper(other.Digest))
	if err != nil || byDigest.Name != "tool/latest" {
		t.Errorf("Resolve(digest) = %+v, %v", byDigest, err)
	}
	if _, err := store.Resolve("art-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(unknown) = %v, want ErrNotFound", err)
	}
}

func TestDeleteKeepsSharedBlobs(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, Options{})
	created := makeArchive(t, "v1")
	for _, slot := range []string{"a", "b"} {
		if _, err := store.Publish(created, slot, PublishOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	digest, err := ParseDigest(created.Digest)
	if err != nil {
		t.Fatal(err)
	}
	blob := store.blobPath(digest, false)

	if err := store.Delete("a"); err != nil {
		t.Fatalf("Delete(a): %v", err)
	}
	if _, err := os.Stat(blob); err != nil {
		t.Errorf("blob removed while slot b still references it: %v", err)
	}
	if err := store.Delete("b"); err != nil {
		t.Fatalf("Delete(b): %v", err)
	}
	if _, err := os.Stat(blob); !os.IsNotExist(err) {
		t.Errorf("blob still present after last reference deleted (stat err %v)", err)
	}
	if err := store.Delete("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestEncryptedStore(t *testing.T) {
	t.Parallel()

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	recipients, err := ParseRecipients([]string{identity.Recipient().String()})
	if err != nil {
		t.Fatalf("ParseRecipients: %v", err)
	}

	store, _ := newStore(t, Options{Recipients: recipients})
	created := makeArchive(t, "secret build")
	if _, err := store.Publish(created, "demo", PublishOptions{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	record, err := store.Get("demo")
	if err != nil {
		t.Fatal(err)
	}
	if !record.Encrypted || record.StoredSize <= record.Size {
		t.Errorf("record = %+v, want encrypted with larger stored size", record)
	}

	digest, _ := ParseDigest(record.Digest)
	stored, err := os.ReadFile(store.blobPath(digest, true))
	if err != nil {
		t.Fatalf("reading encrypted blob: %v", err)
	}
	plaintext, err := os.ReadFile(created.Path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(stored, plaintext) {
		t.Error("encrypted blob contains the plaintext archive")
	}

	if _, _, err := store.Open("demo"); !errors.Is(err, ErrIdentityRequired) {
		t.Errorf("Open without identity = %v, want ErrIdentityRequired", err)
	}
	if got := readAll(t, store, "demo", identity); !bytes.Equal(got, plaintext) {
		t.Error("decrypted content differs from the archive")
	}

	keyFile := filepath.Join(t.TempDir(), "key.txt")
	if err := os.WriteFile(keyFile, []byte("# test key\n"+identity.String()+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	identities, err := LoadIdentities(keyFile)
	if err != nil {
		t.Fatalf("LoadIdentities: %v", err)
	}
	if got := readAll(t, store, "demo", identities...); !bytes.Equal(got, plaintext) {
		t.Error("content decrypted with loaded identity differs")
	}
}

func TestOpenDetectsCorruption(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, Options{})
	created := makeArchive(t, "v1")
	if _, err := store.Publish(created, "demo", PublishOptions{}); err != nil {
		t.Fatal(err)
	}
	digest, _ := ParseDigest(created.Digest)
	blob := store.blobPath(digest, false)
	if err := os.Chmod(blob, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(blob, []byte("bit rot"), 0o644); err != nil {
		t.Fatal(err)
	}

	reader, _, err := store.Open("demo")
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	if _, err := io.ReadAll(reader); !errors.Is(err, ErrDigestMismatch) {
		t.Errorf("ReadAll = %v, want ErrDigestMismatch", err)
	}
}

func TestNewUnreachableRoot(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-directory")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(file, Options{}); err == nil {
		t.Error("New on a regular file should fail")
	}
	if _, err := New("", Options{}); err == nil {
		t.Error("New with empty root should fail")
	}
}

func TestDigest(t *testing.T) {
	t.Parallel()

	hexString := strings.Repeat("ab", 32)
	digest, err := ParseDigest(hexString)
	if err != nil {
		t.Fatalf("ParseDigest: %v", err)
	}
	if digest.String() != hexString || digest.Ref() != "art-abababababab" {
		t.Errorf("digest = %s ref %s", digest, digest.Ref())
	}
	for _, bad := range []string{"", "abc", strings.Repeat("zz", 32)} {
		if _, err := ParseDigest(bad); err == nil {
			t.Errorf("ParseDigest(%q) should succeed only for 64 hex chars", bad)
		}
	}
	if keyedHash(slotNameDomainKey, []byte("a")) == keyedHash(slotNameDomainKey, []byte("b")) {
		t.Error("slot name hashes collide")
	}
}
