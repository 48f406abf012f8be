// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bundlepipe/cmd/bundlepipe/cli"
	"github.com/bureau-foundation/bundlepipe/lib/packaging"
)

type planParams struct {
	buildParams
	cli.JSONOutput
}

func planCommand(env Env) *cli.Command {
	var params planParams
	var command *cli.Command
	command = &cli.Command{
		Name:    "plan",
		Summary: "Show what a run would do without doing it",
		Description: `Resolve the configuration exactly as "run" would and describe each
stage: the source it would acquire, the interpreters it would try, the
commands it would run, and the slot it would publish to. Nothing is
created or executed.`,
		Usage: "bundlepipe plan [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("plan", &params) },
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			cfg, err := params.resolve(command.Changed("allow-overwrite"))
			if err != nil {
				return err
			}
			pipeline, err := packaging.New(cfg, packaging.Options{Runner: env.runner()})
			if err != nil {
				return err
			}
			plan := pipeline.Plan()
			if done, err := params.EmitJSON(env.Stdout, plan); done {
				return err
			}

			writer := tabwriter.NewWriter(env.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(writer, "STAGE\tACTION")
			for _, planned := range plan {
				fmt.Fprintf(writer, "%s\t%s\n", planned.Stage, planned.Action)
			}
			return writer.Flush()
		},
	}
	return command
}
