// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process runs the external tools the packaging pipeline
// depends on (git, the Python interpreter, pip, PyInstaller).
//
// Every external invocation goes through the [Runner] interface so
// that stage logic can be tested without a Python toolchain. The
// production implementation, [ExecRunner], starts each command in its
// own process group and terminates the whole group when the run's
// context is cancelled: either with an immediate SIGKILL or, when a
// grace period is set, SIGTERM first and SIGKILL after the grace
// period.
//
// A non-zero exit status is an outcome, not an error: it is reported in
// [Result.ExitCode] and the caller decides which stage error it maps
// to. Run returns an error only when the command could not be started
// or was terminated by context cancellation.

package process
