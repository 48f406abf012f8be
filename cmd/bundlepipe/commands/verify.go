// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bundlepipe/cmd/bundlepipe/cli"
	"github.com/bureau-foundation/bundlepipe/lib/bundle"
)

type verifyParams struct {
	cli.JSONOutput
}

// verifyResult is the --json output of verify.
type verifyResult struct {
	Bundle   bundle.Bundle  `json:"bundle"`
	Entries  []bundle.Entry `json:"entries"`
	Problems []string       `json:"problems,omitempty"`
}

func verifyCommand(env Env) *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check a bundle's structure and list its contents",
		Description: `Check that the bundle directory holds its executable at the path its
layout requires, then list every path with mode and size. A directory
ending in .app is treated as an app bundle, anything else as onedir.
Unreadable paths are reported in the listing and do not fail the check.`,
		Usage: "bundlepipe verify <bundle-dir> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("verify", &params) },
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, 1, "bundlepipe verify <bundle-dir> [flags]"); err != nil {
				return err
			}
			target, err := bundle.Open(args[0])
			if err != nil {
				return err
			}

			if params.OutputJSON {
				result := verifyResult{Bundle: target, Entries: []bundle.Entry{}}
				for entry := range bundle.Entries(target) {
					if entry.Err != nil {
						result.Problems = append(result.Problems, fmt.Sprintf("%s: %v", entry.Path, entry.Err))
						continue
					}
					result.Entries = append(result.Entries, entry)
				}
				return cli.WriteJSON(env.Stdout, result)
			}

			for entry := range bundle.Entries(target) {
				if _, err := fmt.Fprintln(env.Stdout, entry.String()); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
