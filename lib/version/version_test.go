// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestLabel(t *testing.T) {
	want := Version + "+" + GitCommit
	if GitDirty == "true" {
		want += ".dirty"
	}
	if got := Label(); got != want {
		t.Errorf("Label() = %q, want %q", got, want)
	}
}

func TestInfoAndFull(t *testing.T) {
	info := Info()
	if !strings.HasPrefix(info, Label()) || !strings.Contains(info, BuildTime) {
		t.Errorf("Info() = %q", info)
	}
	full := Full()
	if !strings.HasPrefix(full, info) || !strings.Contains(full, "Platform:") {
		t.Errorf("Full() = %q", full)
	}
}
