// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Format identifies the container and compression of an archive.
type Format string

const (
	FormatTar     Format = "tar"
	FormatTarGzip Format = "tar.gz"
	FormatTarZstd Format = "tar.zst"
	FormatTarLZ4  Format = "tar.lz4"
)

// Formats lists every supported format in preference order.
var Formats = []Format{FormatTarGzip, FormatTarZstd, FormatTarLZ4, FormatTar}

// ParseFormat parses a format name. "tgz", "zstd", and "lz4" are
// accepted as aliases.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "tar.gz", "tgz", "gzip", "gz":
		return FormatTarGzip, nil
	case "tar.zst", "tar.zstd", "zstd", "zst":
		return FormatTarZstd, nil
	case "tar.lz4", "lz4":
		return FormatTarLZ4, nil
	case "tar":
		return FormatTar, nil
	default:
		return "", fmt.Errorf("unknown archive format %q (supported: tar.gz, tar.zst, tar.lz4, tar)", name)
	}
}

// FormatFromFilename infers the format from a file name's extension.
func FormatFromFilename(name string) (Format, error) {
	lower := strings.ToLower(name)
	for _, format := range Formats {
		if strings.HasSuffix(lower, format.Extension()) {
			return format, nil
		}
	}
	if strings.HasSuffix(lower, ".tgz") {
		return FormatTarGzip, nil
	}
	return "", fmt.Errorf("cannot infer archive format from %q", name)
}

// Extension returns the file name suffix for the format, including the
// leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the media type recorded for the format in the
// artifact store.
func (f Format) ContentType() string {
	switch f {
	case FormatTarGzip:
		return "application/gzip"
	case FormatTarZstd:
		return "application/zstd"
	case FormatTarLZ4:
		return "application/x-lz4"
	default:
		return "application/x-tar"
	}
}

// Level selects the compression effort.
type Level string

const (
	LevelFastest Level = "fastest"
	LevelDefault Level = "default"
	LevelBest    Level = "best"
)

// ParseLevel parses a level name. The empty string is LevelDefault.
func ParseLevel(name string) (Level, error) {
	switch Level(name) {
	case "", LevelDefault:
		return LevelDefault, nil
	case LevelFastest, LevelBest:
		return Level(name), nil
	default:
		return "", fmt.Errorf("unknown compression level %q (supported: fastest, default, best)", name)
	}
}

// nopWriteCloser adapts the plain-tar case to the compressor interface.
type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// newCompressor wraps w with the format's compressor. Closing the
// result flushes the compressed stream but does not close w.
func newCompressor(w io.Writer, format Format, level Level) (io.WriteCloser, error) {
	switch format {
	case FormatTar:
		return nopWriteCloser{w}, nil

	case FormatTarGzip:
		gzipLevel := gzip.DefaultCompression
		switch level {
		case LevelFastest:
			gzipLevel = gzip.BestSpeed
		case LevelBest:
			gzipLevel = gzip.BestCompression
		}
		writer, err := gzip.NewWriterLevel(w, gzipLevel)
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		// No name, no mtime, fixed OS byte: the header is identical on
		// every platform.
		writer.Header.Name = ""
		writer.Header.OS = 255
		return writer, nil

	case FormatTarZstd:
		zstdLevel := zstd.SpeedDefault
		switch level {
		case LevelFastest:
			zstdLevel = zstd.SpeedFastest
		case LevelBest:
			zstdLevel = zstd.SpeedBestCompression
		}
		writer, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstdLevel),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return writer, nil

	case FormatTarLZ4:
		lz4Level := lz4.Level4
		switch level {
		case LevelFastest:
			lz4Level = lz4.Fast
		case LevelBest:
			lz4Level = lz4.Level9
		}
		writer := lz4.NewWriter(w)
		if err := writer.Apply(
			lz4.CompressionLevelOption(lz4Level),
			lz4.ConcurrencyOption(1),
			lz4.ChecksumOption(true),
		); err != nil {
			return nil, fmt.Errorf("lz4 writer: %w", err)
		}
		return writer, nil

	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}

// newDecompressor wraps r with the format's decompressor.
func newDecompressor(r io.Reader, format Format) (io.ReadCloser, error) {
	switch format {
	case FormatTar:
		return io.NopCloser(r), nil
	case FormatTarGzip:
		reader, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return reader, nil
	case FormatTarZstd:
		decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case FormatTarLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}
