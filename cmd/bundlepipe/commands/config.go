// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/bundlepipe/cmd/bundlepipe/cli"
)

func configCommand(env Env) *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "Show or validate the configuration",
		Subcommands: []*cli.Command{
			configShowCommand(env),
			configValidateCommand(env),
		},
	}
}

type configShowParams struct {
	configParams
	cli.JSONOutput
}

func configShowCommand(env Env) *cli.Command {
	var params configShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Print the effective configuration",
		Description: `Print the configuration after defaults, the environment's overrides,
and variable expansion have been applied, as YAML (or JSON with --json).`,
		Usage: "bundlepipe config show [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, _, err := params.load()
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, cfg); done {
				return err
			}
			encoder := yaml.NewEncoder(env.Stdout)
			encoder.SetIndent(2)
			if err := encoder.Encode(cfg); err != nil {
				return err
			}
			return encoder.Close()
		},
	}
}

func configValidateCommand(env Env) *cli.Command {
	var params configParams
	return &cli.Command{
		Name:    "validate",
		Summary: "Check the configuration for errors",
		Usage:   "bundlepipe config validate [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("validate", &params) },
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, path, err := params.load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if path == "" {
				path = "built-in defaults"
			}
			_, err = fmt.Fprintf(env.Stdout, "%s: ok (environment %s)\n", path, cfg.Environment)
			return err
		},
	}
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
