// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package packaging runs the build-and-package pipeline: it turns a
// source tree holding one entry-point script and a requirements file
// into a single published archive of a runnable application bundle.
//
// The stages run strictly in order and the first failure ends the run:
//
//	acquire_source        copy or git-export the source into a fresh workspace
//	provision_runtime     find the requested interpreter, create a venv
//	install_dependencies  check the manifest, pip install it with PyInstaller
//	synthesize_bundle     run PyInstaller, check the bundle layout
//	normalize_bundle      set the executable bits, strip extended attributes
//	verify_structure      list the bundle contents (never fails the run)
//	archive               write a deterministic compressed tar of the bundle
//	publish               store the archive under a named artifact slot
//
// A failed run returns a *[StageError] naming the failing stage and the
// last stage that completed. Each stage's errors also match one
// sentinel with errors.Is: [ErrSourceUnavailable], [ErrRuntimeProvision],
// [ErrDependencyResolution], [ErrBuild] (synthesis and normalization),
// [ErrArchive], or [ErrPublish]. Nothing is retried.
//
// Every run gets its own workspace under the configured workspaces
// directory, named by run ID, and removes it when the run ends unless
// the caller keeps it. Publication happens only after the archive was
// written in full, so a failed run never leaves an artifact behind.
package packaging
