// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pyruntime provisions the Python environment a bundle is
// built in.
//
// [Provision] locates an installed interpreter whose version matches
// the request component-wise ("3.12" accepts 3.12.4 but not 3.1.2)
// and creates a virtual environment from it inside the build
// workspace. Interpreters are not downloaded: the build host is
// expected to carry the versions it builds for, and the configuration
// can name an explicit path per version.
//
// [InstallDependencies] validates the manifest locally, installs it
// together with the freezing tool into the virtual environment, and
// records what pip actually installed. It returns a new [Runtime]; the
// input value is never modified.
//
// Every external command runs through a [process.Runner].
package pyruntime
