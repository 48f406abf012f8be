// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Bundlepipe packages a Python application with one entry-point script
// into a macOS application bundle, archives it reproducibly, and
// publishes the archive to a local artifact store. Subcommands run the
// pipeline (run, plan), work on existing bundles (archive, verify),
// and manage the store (artifact) and configuration (config).
package main
