// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive creates and reads the compressed tar archives that
// carry application bundles from the build workspace to the artifact
// store.
//
// [Create] is deterministic: archiving the same tree twice produces
// byte-identical output. It achieves that by fixing every input that
// would otherwise vary between runs:
//
//   - Members are written in lexical path order (filepath.WalkDir order).
//   - Member names are slash-separated paths relative to the bundle's
//     parent directory, so every member starts with the bundle directory
//     name ("Demo.app/Contents/MacOS/Demo").
//   - Ownership is zeroed (uid/gid 0, empty user and group names).
//   - Modification times are pinned to [Options.ModTime] (default
//     [DefaultEpoch]) unless [Options.PreserveModTime] is set. Access
//     and change times are never recorded.
//   - Modes keep only permission bits; the executable bit survives.
//   - Compression headers carry no file name and no timestamp, and the
//     encoders run single-threaded.
//
// Three compressed formats are supported, plus plain tar:
//
//   - tar.gz   -- github.com/klauspost/compress/gzip
//   - tar.zst  -- github.com/klauspost/compress/zstd
//   - tar.lz4  -- github.com/pierrec/lz4/v4 frame format
//
// The output is written to a temporary file beside the destination and
// renamed into place only after the compressor and file are closed
// successfully, so a failed archive never leaves a partial file under
// the final name.
package archive
