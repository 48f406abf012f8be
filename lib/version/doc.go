// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which bundlepipe build is running.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are injected with
// -ldflags -X; development builds and tests see "unknown" and
// "0.1.0-dev". [Label] is recorded on every published artifact so an
// archive can be traced back to the tool build that produced it, and
// [Full] backs "bundlepipe version".
package version
