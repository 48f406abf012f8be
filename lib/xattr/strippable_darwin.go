// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xattr

import "golang.org/x/sys/unix"

var errNoAttribute error = unix.ENOATTR

func strippable(string) bool {
	return true
}
