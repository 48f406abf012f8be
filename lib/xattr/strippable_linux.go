// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xattr

import (
	"strings"

	"golang.org/x/sys/unix"
)

// errNoAttribute is returned when an attribute vanished between List
// and Removexattr.
var errNoAttribute error = unix.ENODATA

func strippable(name string) bool {
	return strings.HasPrefix(name, "user.")
}
