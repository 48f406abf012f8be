// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags -X at release build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/bundlepipe/lib/version.GitCommit=$(git rev-parse --short HEAD) \
//	    -X github.com/bureau-foundation/bundlepipe/lib/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/bundlepipe
var (
	GitCommit = "unknown"

	// GitDirty is "true" when the tree had uncommitted changes.
	GitDirty = "false"

	BuildTime = "unknown"

	// Version is bumped by hand for releases.
	Version = "0.1.0-dev"
)

// Label identifies the build as a semantic version with the commit as
// build metadata ("0.1.0+3f2a9c1", "0.1.0+3f2a9c1.dirty"). Published
// artifacts carry it in their "bundlepipe" label.
func Label() string {
	label := Version + "+" + GitCommit
	if GitDirty == "true" {
		label += ".dirty"
	}
	return label
}

// Info is Label plus the build time, for one-line output.
func Info() string {
	return fmt.Sprintf("%s (built %s)", Label(), BuildTime)
}

// Full adds the Go toolchain and target platform to Info. Bundles are
// only produced for macOS, so the platform line makes a mismatched
// binary obvious in bug reports.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
