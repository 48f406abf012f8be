// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

// DefaultEpoch is the modification time recorded for every member when
// no other time is pinned. It matches the earliest timestamp the zip
// format can represent, which keeps archives converted between formats
// stable as well.
var DefaultEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Options controls Create.
type Options struct {
	// Format selects container and compression. Empty means tar.gz.
	Format Format

	// Level selects compression effort. Empty means LevelDefault.
	Level Level

	// ModTime is the modification time recorded for every member.
	// Zero means DefaultEpoch. Ignored when PreserveModTime is set.
	ModTime time.Time

	// PreserveModTime records each file's own modification time
	// (truncated to whole seconds). Archives are then only
	// content-identical across runs, not byte-identical.
	PreserveModTime bool
}

// Archive describes a created archive file.
type Archive struct {
	// Path is the absolute path of the archive file.
	Path string `json:"path"`

	// Format is the container/compression format.
	Format Format `json:"format"`

	// Size is the archive size in bytes.
	Size int64 `json:"size"`

	// Digest is the hex BLAKE3-256 digest of the archive bytes.
	Digest string `json:"digest"`

	// Members is the number of tar members (directories, files, and
	// symlinks).
	Members int `json:"members"`
}

// Create archives the directory source into destination. Member names
// are rooted at the base name of source: archiving "dist/Demo.app"
// yields members "Demo.app/", "Demo.app/Contents/", and so on.
//
// destination is created through a temporary file in the same
// directory and renamed into place on success. On failure no file
// exists at destination.
func Create(source, destination string, options Options) (*Archive, error) {
	format := options.Format
	if format == "" {
		format = FormatTarGzip
	}
	level, err := ParseLevel(string(options.Level))
	if err != nil {
		return nil, err
	}
	modTime := options.ModTime
	if modTime.IsZero() {
		modTime = DefaultEpoch
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("archive source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive source %s is not a directory", source)
	}

	destinationDirectory := filepath.Dir(destination)
	if err := os.MkdirAll(destinationDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	temporary, err := os.CreateTemp(destinationDirectory, "."+filepath.Base(destination)+"-*.partial")
	if err != nil {
		return nil, fmt.Errorf("creating temporary archive: %w", err)
	}
	temporaryPath := temporary.Name()

	success := false
	defer func() {
		if !success {
			temporary.Close()
			os.Remove(temporaryPath)
		}
	}()

	hasher := blake3.New()
	counter := &countingWriter{}
	output := io.MultiWriter(temporary, hasher, counter)

	compressor, err := newCompressor(output, format, level)
	if err != nil {
		return nil, err
	}
	tarWriter := tar.NewWriter(compressor)

	members, err := writeTree(tarWriter, source, memberTime{pinned: modTime, preserve: options.PreserveModTime})
	if err != nil {
		return nil, err
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("finishing tar stream: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("finishing %s stream: %w", format, err)
	}
	if err := temporary.Sync(); err != nil {
		return nil, fmt.Errorf("syncing archive: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Chmod(temporaryPath, 0o644); err != nil {
		return nil, fmt.Errorf("setting archive mode: %w", err)
	}
	if err := os.Rename(temporaryPath, destination); err != nil {
		return nil, fmt.Errorf("renaming archive into place: %w", err)
	}
	success = true

	absolute, err := filepath.Abs(destination)
	if err != nil {
		absolute = destination
	}

	return &Archive{
		Path:    absolute,
		Format:  format,
		Size:    counter.written,
		Digest:  hex.EncodeToString(hasher.Sum(nil)),
		Members: members,
	}, nil
}

type memberTime struct {
	pinned   time.Time
	preserve bool
}

func (m memberTime) of(info fs.FileInfo) time.Time {
	if m.preserve {
		return info.ModTime().UTC().Truncate(time.Second)
	}
	return m.pinned
}

// writeTree writes source and everything below it to tarWriter and
// returns the member count.
func writeTree(tarWriter *tar.Writer, source string, times memberTime) (int, error) {
	parent := filepath.Dir(source)
	members := 0

	err := filepath.WalkDir(source, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		relative, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(relative)

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		header := &tar.Header{
			Name:    name,
			Mode:    int64(info.Mode().Perm()),
			ModTime: times.of(info),
			Format:  tar.FormatPAX,
		}

		switch {
		case info.IsDir():
			header.Typeflag = tar.TypeDir
			header.Name += "/"
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("reading symlink %s: %w", path, err)
			}
			header.Typeflag = tar.TypeSymlink
			header.Linkname = target
		case info.Mode().IsRegular():
			header.Typeflag = tar.TypeReg
			header.Size = info.Size()
		default:
			return fmt.Errorf("%s: unsupported file type %s", name, info.Mode().Type())
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("writing header for %s: %w", name, err)
		}
		members++

		if header.Typeflag != tar.TypeReg {
			return nil
		}
		return copyFile(tarWriter, path, info.Size())
	})
	if err != nil {
		return 0, err
	}
	return members, nil
}

func copyFile(w io.Writer, path string, size int64) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	written, err := io.Copy(w, file)
	if err != nil {
		return fmt.Errorf("archiving %s: %w", path, err)
	}
	if written != size {
		return fmt.Errorf("archiving %s: file changed size during archiving (%d != %d)", path, written, size)
	}
	return nil
}

type countingWriter struct {
	written int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.written += int64(len(p))
	return len(p), nil
}
