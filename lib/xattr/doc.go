// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xattr lists and strips filesystem extended attributes.
//
// Bundles produced by a freezing tool, or unpacked from a download,
// carry attributes such as com.apple.quarantine that make the operating
// system refuse or warn before launching the application. [StripTree]
// removes them recursively from every directory and regular file under
// a root, the equivalent of "xattr -cr". Symlinks are not followed and
// their own attributes are left alone.
//
// On Linux only the "user." namespace is stripped: "security." and
// "trusted." attributes belong to the kernel's security modules and
// cannot be removed by an unprivileged process. On macOS every
// attribute is stripped. Filesystems without extended attribute support
// are treated as having nothing to strip.
package xattr
