// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-line framework for bundlepipe.
//
// The central type is [Command]: a named command with optional nested
// [Command.Subcommands], a [pflag.FlagSet] factory, and a Run function.
// The tree is assembled in cmd/bundlepipe/commands and dispatched with
// [Command.Execute], which parses flags, routes subcommands, and prints
// structured help with examples.
//
// Flags are usually declared as tagged struct fields and bound with
// [FlagsFromParams]; embedding [JSONOutput] adds --json. Unknown
// commands and flags get a "did you mean" suggestion computed by edit
// distance.
//
// Commands that have already reported their outcome return an
// [ExitError] so main exits with its code without printing again.
package cli
