// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle models the application bundle produced by the freezing
// tool and implements the two operations that touch it after synthesis:
// normalization and structural listing.
//
// A bundle has one of two layouts:
//
//   - [LayoutApp]: a macOS application bundle,
//     <dist>/<name>.app/Contents/MacOS/<name>
//   - [LayoutOnedir]: a one-directory build,
//     <dist>/<name>/<name>
//
// [Check] confirms that the executable exists at the layout's
// sub-path. [Normalize] sets its executable bits and strips extended
// attributes from the whole tree without adding or removing files.
// [Entries] lists the tree lazily for diagnostic output.
package bundle
