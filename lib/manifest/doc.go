// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses pip requirements files and detects the
// conflicts that can be found without contacting a package index.
//
// The parser understands the subset of the requirements-file format
// that application manifests use in practice: comments, blank lines,
// backslash continuations, -r/-c includes (resolved relative to the
// including file), index and binary-selection options, editable and
// direct (path or URL) requirements, extras, version specifiers, and
// environment markers. Unknown options are rejected, as pip would.
//
// [Manifest.Conflicts] reports requirements that can never be
// satisfied together: two different exact pins for one project, or an
// exact pin excluded by another specifier on the same project. Only
// requirements under the same environment marker are compared, since
// differently marked requirements may never apply on the same host.
//
// Project names are compared in their normalized form (PEP 503):
// lowercase with runs of "-", "_", and "." collapsed to "-".
package manifest
