// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// MemberType classifies a tar member.
type MemberType string

const (
	MemberDirectory MemberType = "dir"
	MemberFile      MemberType = "file"
	MemberSymlink   MemberType = "symlink"
)

// Member describes one entry read back from an archive.
type Member struct {
	Name     string      `json:"name"`
	Type     MemberType  `json:"type"`
	Mode     fs.FileMode `json:"mode"`
	Size     int64       `json:"size"`
	ModTime  time.Time   `json:"mod_time"`
	Linkname string      `json:"linkname,omitempty"`

	// Digest is the hex BLAKE3-256 digest of a regular file's content.
	// Empty for directories and symlinks.
	Digest string `json:"digest,omitempty"`
}

// Walk decompresses r as format and calls fn for every member in
// archive order. For regular files, content reads the member body; fn
// may leave it unread. Returning an error from fn stops the walk and
// returns that error.
func Walk(r io.Reader, format Format, fn func(member Member, content io.Reader) error) error {
	decompressor, err := newDecompressor(r, format)
	if err != nil {
		return err
	}
	defer decompressor.Close()

	tarReader := tar.NewReader(decompressor)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s archive: %w", format, err)
		}

		// git archive writes the commit ID as a pax global header.
		if header.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		member := Member{
			Name:     header.Name,
			Mode:     fs.FileMode(header.Mode).Perm(),
			Size:     header.Size,
			ModTime:  header.ModTime.UTC(),
			Linkname: header.Linkname,
		}
		switch header.Typeflag {
		case tar.TypeDir:
			member.Type = MemberDirectory
		case tar.TypeSymlink:
			member.Type = MemberSymlink
		case tar.TypeReg:
			member.Type = MemberFile
		default:
			return fmt.Errorf("member %s: unsupported tar type %q", header.Name, header.Typeflag)
		}

		if err := fn(member, tarReader); err != nil {
			return err
		}
	}
}

// Members lists every member of the archive at path, computing a
// content digest for each regular file. The format is inferred from
// the file name.
func Members(archivePath string) ([]Member, error) {
	format, err := FormatFromFilename(archivePath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadMembers(file, format)
}

// ReadMembers is [Members] for an already-open stream.
func ReadMembers(r io.Reader, format Format) ([]Member, error) {
	var members []Member
	err := Walk(r, format, func(member Member, content io.Reader) error {
		if member.Type == MemberFile {
			hasher := blake3.New()
			if _, err := io.Copy(hasher, content); err != nil {
				return fmt.Errorf("reading member %s: %w", member.Name, err)
			}
			member.Digest = hex.EncodeToString(hasher.Sum(nil))
		}
		members = append(members, member)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Extract unpacks r into destination, which is created if missing.
// Member names that are absolute or escape destination are rejected,
// as are symlinks pointing outside it and members whose path passes
// through a symlink extracted earlier.
func Extract(r io.Reader, format Format, destination string) (int, error) {
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", destination, err)
	}

	count := 0
	err := Walk(r, format, func(member Member, content io.Reader) error {
		target, err := memberPath(destination, member.Name)
		if err != nil {
			return err
		}
		if err := checkNoSymlinks(destination, target); err != nil {
			return fmt.Errorf("member %s: %w", member.Name, err)
		}

		switch member.Type {
		case MemberDirectory:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			if err := os.Chmod(target, member.Mode|0o700); err != nil {
				return err
			}

		case MemberSymlink:
			linkTarget := member.Linkname
			if filepath.IsAbs(linkTarget) {
				return fmt.Errorf("member %s: absolute symlink target %q", member.Name, linkTarget)
			}
			resolved := path.Join(path.Dir(strings.TrimSuffix(member.Name, "/")), linkTarget)
			if _, err := memberPath(destination, resolved); err != nil {
				return fmt.Errorf("member %s: symlink escapes destination", member.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(linkTarget, target); err != nil {
				return err
			}

		case MemberFile:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, member.Mode|0o200)
			if err != nil {
				return err
			}
			if _, err := io.Copy(file, content); err != nil {
				file.Close()
				return fmt.Errorf("extracting %s: %w", member.Name, err)
			}
			if err := file.Close(); err != nil {
				return err
			}
			if err := os.Chmod(target, member.Mode); err != nil {
				return err
			}
		}
		count++
		return nil
	})
	return count, err
}

func memberPath(destination, name string) (string, error) {
	cleaned := path.Clean(strings.TrimSuffix(name, "/"))
	if path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("member %q escapes the extraction directory", name)
	}
	return filepath.Join(destination, filepath.FromSlash(cleaned)), nil
}

// checkNoSymlinks fails if any existing path from destination down to
// target, target included, is a symlink. Members are only ever written
// through real directories, so a chain of links cannot lead outside
// destination.
func checkNoSymlinks(destination, target string) error {
	relative, err := filepath.Rel(destination, target)
	if err != nil {
		return err
	}
	current := destination
	for element := range strings.SplitSeq(relative, string(filepath.Separator)) {
		if element == "." {
			continue
		}
		current = filepath.Join(current, element)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("path %s passes through symlink %s", target, current)
		}
	}
	return nil
}
