// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/bundlepipe/lib/testutil"
)

func writeBundle(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"Demo.app/Contents/MacOS/Demo!x":           "#!/bin/sh\necho demo\n",
		"Demo.app/Contents/Info.plist":             "<plist/>\n",
		"Demo.app/Contents/Resources/icon.icns":    "icon",
		"Demo.app/Contents/Frameworks/":            "",
		"Demo.app/Contents/Resources/base_library": "zip bytes",
	})
	if err := os.Symlink("../MacOS/Demo", filepath.Join(root, "Demo.app/Contents/Resources/launcher")); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}
	return filepath.Join(root, "Demo.app")
}

func TestCreateIsByteIdentical(t *testing.T) {
	t.Parallel()

	for _, format := range Formats {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()
			bundle := writeBundle(t)
			output := t.TempDir()

			first, err := Create(bundle, filepath.Join(output, "first"+format.Extension()), Options{Format: format})
			if err != nil {
				t.Fatalf("first Create: %v", err)
			}

			// Touch every file so that only the pinned epoch can make
			// the second archive identical.
			later := time.Now().Add(time.Hour)
			err = filepath.Walk(bundle, func(path string, _ os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				return os.Chtimes(path, later, later)
			})
			if err != nil {
				t.Fatalf("touching bundle: %v", err)
			}

			second, err := Create(bundle, filepath.Join(output, "second"+format.Extension()), Options{Format: format})
			if err != nil {
				t.Fatalf("second Create: %v", err)
			}

			firstBytes, err := os.ReadFile(first.Path)
			if err != nil {
				t.Fatal(err)
			}
			secondBytes, err := os.ReadFile(second.Path)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(firstBytes, secondBytes) {
				t.Fatalf("archives differ: %d bytes vs %d bytes", len(firstBytes), len(secondBytes))
			}
			if first.Digest != second.Digest {
				t.Errorf("digests differ: %s vs %s", first.Digest, second.Digest)
			}
			if first.Size != int64(len(firstBytes)) {
				t.Errorf("Size = %d, file has %d bytes", first.Size, len(firstBytes))
			}
			if first.Format != format {
				t.Errorf("Format = %q, want %q", first.Format, format)
			}
		})
	}
}

func TestCreateMembers(t *testing.T) {
	t.Parallel()

	bundle := writeBundle(t)
	destination := filepath.Join(t.TempDir(), "Demo.tar.gz")

	created, err := Create(bundle, destination, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Format != FormatTarGzip {
		t.Errorf("default format = %q, want tar.gz", created.Format)
	}

	members, err := Members(destination)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != created.Members {
		t.Errorf("read %d members, Create reported %d", len(members), created.Members)
	}

	wantOrder := []string{
		"Demo.app/",
		"Demo.app/Contents/",
		"Demo.app/Contents/Frameworks/",
		"Demo.app/Contents/Info.plist",
		"Demo.app/Contents/MacOS/",
		"Demo.app/Contents/MacOS/Demo",
		"Demo.app/Contents/Resources/",
		"Demo.app/Contents/Resources/base_library",
		"Demo.app/Contents/Resources/icon.icns",
		"Demo.app/Contents/Resources/launcher",
	}
	if len(members) != len(wantOrder) {
		t.Fatalf("got %d members, want %d", len(members), len(wantOrder))
	}

	byName := make(map[string]Member)
	for i, member := range members {
		if member.Name != wantOrder[i] {
			t.Errorf("member %d = %q, want %q", i, member.Name, wantOrder[i])
		}
		if !member.ModTime.Equal(DefaultEpoch) {
			t.Errorf("%s: ModTime = %v, want %v", member.Name, member.ModTime, DefaultEpoch)
		}
		byName[member.Name] = member
	}

	executable := byName["Demo.app/Contents/MacOS/Demo"]
	if executable.Mode&0o111 == 0 {
		t.Errorf("executable mode = %v, want executable bits", executable.Mode)
	}
	if executable.Type != MemberFile || executable.Digest == "" {
		t.Errorf("executable member = %+v, want a file with a digest", executable)
	}

	link := byName["Demo.app/Contents/Resources/launcher"]
	if link.Type != MemberSymlink || link.Linkname != "../MacOS/Demo" {
		t.Errorf("launcher = %+v, want symlink to ../MacOS/Demo", link)
	}

	plist := byName["Demo.app/Contents/Info.plist"]
	if plist.Mode&0o111 != 0 {
		t.Errorf("Info.plist mode = %v, want no executable bits", plist.Mode)
	}
}

func TestCreatePreserveModTime(t *testing.T) {
	t.Parallel()

	bundle := writeBundle(t)
	stamp := time.Date(2024, 3, 9, 12, 30, 15, 0, time.UTC)
	executable := filepath.Join(bundle, "Contents/MacOS/Demo")
	if err := os.Chtimes(executable, stamp, stamp); err != nil {
		t.Fatal(err)
	}

	destination := filepath.Join(t.TempDir(), "Demo.tar")
	if _, err := Create(bundle, destination, Options{Format: FormatTar, PreserveModTime: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	members, err := Members(destination)
	if err != nil {
		t.Fatal(err)
	}
	for _, member := range members {
		if member.Name == "Demo.app/Contents/MacOS/Demo" && !member.ModTime.Equal(stamp) {
			t.Errorf("ModTime = %v, want %v", member.ModTime, stamp)
		}
	}
}

func TestCreatePinnedModTime(t *testing.T) {
	t.Parallel()

	bundle := writeBundle(t)
	pinned := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	destination := filepath.Join(t.TempDir(), "Demo.tar.zst")
	if _, err := Create(bundle, destination, Options{Format: FormatTarZstd, ModTime: pinned}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	members, err := Members(destination)
	if err != nil {
		t.Fatal(err)
	}
	for _, member := range members {
		if !member.ModTime.Equal(pinned) {
			t.Errorf("%s: ModTime = %v, want %v", member.Name, member.ModTime, pinned)
		}
	}
}

func TestCreateFailureLeavesNothing(t *testing.T) {
	t.Parallel()

	t.Run("unsupported format", func(t *testing.T) {
		t.Parallel()
		bundle := writeBundle(t)
		output := t.TempDir()
		destination := filepath.Join(output, "Demo.rar")

		if _, err := Create(bundle, destination, Options{Format: Format("rar")}); err == nil {
			t.Fatal("Create with unsupported format should fail")
		}
		entries, err := os.ReadDir(output)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("output directory has %d entries after failure, want 0", len(entries))
		}
	})

	t.Run("missing source", func(t *testing.T) {
		t.Parallel()
		output := t.TempDir()
		destination := filepath.Join(output, "Demo.tar.gz")
		if _, err := Create(filepath.Join(output, "absent"), destination, Options{}); err == nil {
			t.Fatal("Create with missing source should fail")
		}
		if _, err := os.Stat(destination); !os.IsNotExist(err) {
			t.Errorf("destination exists after failure (stat err %v)", err)
		}
	})

	t.Run("source is a file", func(t *testing.T) {
		t.Parallel()
		output := t.TempDir()
		source := filepath.Join(output, "file")
		if err := os.WriteFile(source, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Create(source, filepath.Join(output, "out.tar"), Options{Format: FormatTar}); err == nil {
			t.Fatal("Create with file source should fail")
		}
	})
}

func TestExtractRoundTrip(t *testing.T) {
	t.Parallel()

	for _, format := range Formats {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()
			bundle := writeBundle(t)
			destination := filepath.Join(t.TempDir(), "Demo"+format.Extension())
			created, err := Create(bundle, destination, Options{Format: format, Level: LevelBest})
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			file, err := os.Open(destination)
			if err != nil {
				t.Fatal(err)
			}
			defer file.Close()

			extracted := t.TempDir()
			count, err := Extract(file, format, extracted)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if count != created.Members {
				t.Errorf("extracted %d members, want %d", count, created.Members)
			}

			want := testutil.SnapshotTree(t, bundle)
			got := testutil.SnapshotTree(t, filepath.Join(extracted, "Demo.app"))
			for _, path := range testutil.Paths(want) {
				gotEntry, ok := got[path]
				if !ok {
					t.Errorf("%s missing after extraction", path)
					continue
				}
				if gotEntry.Content != want[path].Content {
					t.Errorf("%s content = %q, want %q", path, gotEntry.Content, want[path].Content)
				}
				if gotEntry.Mode.Type() != want[path].Mode.Type() {
					t.Errorf("%s type = %v, want %v", path, gotEntry.Mode.Type(), want[path].Mode.Type())
				}
			}
			if len(got) != len(want) {
				t.Errorf("extracted %d paths, want %d", len(got), len(want))
			}
		})
	}
}

func TestMemberPathRejectsEscapes(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"../evil", "/etc/passwd", "a/../../b"} {
		if _, err := memberPath("/tmp/x", name); err == nil {
			t.Errorf("memberPath(%q) should fail", name)
		}
	}
	if got, err := memberPath("/tmp/x", "Demo.app/Contents/"); err != nil || got != "/tmp/x/Demo.app/Contents" {
		t.Errorf("memberPath(Demo.app/Contents/) = %q, %v", got, err)
	}
}

func TestExtractRejectsSymlinkChains(t *testing.T) {
	t.Parallel()

	// Each link is harmless on its own; followed in sequence they
	// lead out of the destination.
	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	headers := []*tar.Header{
		{Name: "d", Typeflag: tar.TypeSymlink, Linkname: ".", Mode: 0o777},
		{Name: "d/e", Typeflag: tar.TypeSymlink, Linkname: "..", Mode: 0o777},
		{Name: "e/evil", Typeflag: tar.TypeReg, Mode: 0o644, Size: 4},
	}
	for _, header := range headers {
		if err := writer.WriteHeader(header); err != nil {
			t.Fatal(err)
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := writer.Write([]byte("evil")); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	parent := t.TempDir()
	destination := filepath.Join(parent, "extracted")
	if _, err := Extract(&buffer, FormatTar, destination); err == nil {
		t.Fatal("Extract followed a chain of symlinks")
	}
	if _, err := os.Lstat(filepath.Join(parent, "evil")); !os.IsNotExist(err) {
		t.Errorf("file written outside the destination (%v)", err)
	}
	if _, err := os.Lstat(filepath.Join(destination, "d", "e")); !os.IsNotExist(err) {
		t.Errorf("symlink created through an earlier symlink (%v)", err)
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  Format
	}{
		{"tar.gz", FormatTarGzip},
		{"tgz", FormatTarGzip},
		{".tar.zst", FormatTarZstd},
		{"zstd", FormatTarZstd},
		{"lz4", FormatTarLZ4},
		{"TAR", FormatTar},
	}
	for _, test := range tests {
		got, err := ParseFormat(test.input)
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", test.input, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", test.input, got, test.want)
		}
	}
	if _, err := ParseFormat("zip"); err == nil {
		t.Error("ParseFormat(zip) should fail")
	}

	if got, err := FormatFromFilename("Demo-1.2.tar.lz4"); err != nil || got != FormatTarLZ4 {
		t.Errorf("FormatFromFilename = %q, %v", got, err)
	}
	if got, err := FormatFromFilename("Demo.tgz"); err != nil || got != FormatTarGzip {
		t.Errorf("FormatFromFilename(tgz) = %q, %v", got, err)
	}
}

func TestEveryLevelRoundTrips(t *testing.T) {
	t.Parallel()

	bundle := writeBundle(t)
	for _, format := range Formats {
		for _, level := range []Level{LevelFastest, LevelDefault, LevelBest} {
			t.Run(string(format)+"/"+string(level), func(t *testing.T) {
				t.Parallel()
				destination := filepath.Join(t.TempDir(), "Demo"+format.Extension())
				created, err := Create(bundle, destination, Options{Format: format, Level: level})
				if err != nil {
					t.Fatalf("Create: %v", err)
				}
				members, err := Members(destination)
				if err != nil {
					t.Fatalf("Members: %v", err)
				}
				if len(members) != created.Members {
					t.Errorf("read %d members, want %d", len(members), created.Members)
				}
			})
		}
	}
}
