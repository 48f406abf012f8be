// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesNestedSubcommands(t *testing.T) {
	t.Parallel()

	var called string
	var received []string
	root := &Command{
		Name: "bundlepipe",
		Subcommands: []*Command{
			{Name: "version", Run: func(context.Context, []string) error { called = "version"; return nil }},
			{
				Name: "artifact",
				Subcommands: []*Command{
					{Name: "show", Run: func(_ context.Context, args []string) error {
						called = "artifact show"
						received = args
						return nil
					}},
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"artifact", "show", "Demo/latest"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "artifact show" {
		t.Errorf("dispatched to %q", called)
	}
	if len(received) != 1 || received[0] != "Demo/latest" {
		t.Errorf("args = %v", received)
	}
}

func TestExecutePassesContext(t *testing.T) {
	t.Parallel()

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")
	var got any
	root := &Command{
		Name: "bundlepipe",
		Subcommands: []*Command{{Name: "run", Run: func(ctx context.Context, _ []string) error {
			got = ctx.Value(key{})
			return nil
		}}},
	}
	if err := root.Execute(ctx, []string{"run"}); err != nil {
		t.Fatal(err)
	}
	if got != "value" {
		t.Errorf("context value = %v", got)
	}
}

func TestExecuteParsesFlags(t *testing.T) {
	t.Parallel()

	var slot string
	var target string
	command := &Command{
		Name: "get",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
			flagSet.StringVar(&slot, "output", "", "output path")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			target = args[0]
			return nil
		},
	}
	if err := command.Execute(context.Background(), []string{"--output", "/tmp/out.tar.gz", "Demo/latest"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if slot != "/tmp/out.tar.gz" || target != "Demo/latest" {
		t.Errorf("output = %q, target = %q", slot, target)
	}
	if !command.Changed("output") {
		t.Error("Changed(output) = false")
	}
}

func TestChangedIsFalseForDefaults(t *testing.T) {
	t.Parallel()

	var params struct {
		Allow bool `flag:"allow-overwrite"`
	}
	command := &Command{
		Name:  "run",
		Flags: func() *pflag.FlagSet { return FlagsFromParams("run", &params) },
		Run:   func(context.Context, []string) error { return nil },
	}
	if err := command.Execute(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if command.Changed("allow-overwrite") || command.Changed("missing") {
		t.Error("Changed reported an unset flag")
	}
}

func TestExecuteUnknownCommandSuggestion(t *testing.T) {
	t.Parallel()

	root := &Command{
		Name: "bundlepipe",
		Subcommands: []*Command{
			{Name: "run", Run: func(context.Context, []string) error { return nil }},
			{Name: "verify", Run: func(context.Context, []string) error { return nil }},
		},
	}
	err := root.Execute(context.Background(), []string{"verfy"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `did you mean "verify"`) {
		t.Errorf("error = %v", err)
	}

	err = root.Execute(context.Background(), []string{"deploy-everything"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestExecuteUnknownFlagSuggestion(t *testing.T) {
	t.Parallel()

	var params struct {
		KeepWorkspace bool   `flag:"keep-workspace"`
		Slot          string `flag:"slot"`
	}
	command := &Command{
		Name:  "run",
		Flags: func() *pflag.FlagSet { return FlagsFromParams("run", &params) },
		Run:   func(context.Context, []string) error { return nil },
	}
	err := command.Execute(context.Background(), []string{"--keep-workspce"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "did you mean --keep-workspace") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(err.Error(), "Run 'run --help' for usage.") {
		t.Errorf("error should point at help: %v", err)
	}
}

func TestExecuteSubcommandRequired(t *testing.T) {
	t.Parallel()

	var help bytes.Buffer
	root := &Command{
		Name:   "bundlepipe",
		Stderr: &help,
		Subcommands: []*Command{
			{Name: "artifact", Summary: "inspect artifacts", Subcommands: []*Command{
				{Name: "list", Summary: "list slots", Run: func(context.Context, []string) error { return nil }},
			}},
		},
	}
	err := root.Execute(context.Background(), []string{"artifact"})
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Fatalf("error = %v", err)
	}
	if !strings.Contains(help.String(), "list") || !strings.Contains(help.String(), "bundlepipe artifact <command> [flags]") {
		t.Errorf("help output:\n%s", help.String())
	}
}

func TestPrintHelp(t *testing.T) {
	t.Parallel()

	var params struct {
		JSONOutput
		Slot string `flag:"slot" desc:"artifact slot name" default:"{name}/latest"`
	}
	command := &Command{
		Name:        "run",
		Description: "Run the packaging pipeline.",
		Flags:       func() *pflag.FlagSet { return FlagsFromParams("run", &params) },
		Examples: []Example{
			{Description: "Build the working tree", Command: "bundlepipe run --source ."},
		},
	}
	var output bytes.Buffer
	command.PrintHelp(&output)
	help := output.String()
	for _, want := range []string{
		"Run the packaging pipeline.",
		"Usage:\n  run [flags]",
		"--slot",
		"{name}/latest",
		"--json",
		"# Build the working tree",
		"bundlepipe run --source .",
	} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q:\n%s", want, help)
		}
	}
}

func TestHelpFlag(t *testing.T) {
	t.Parallel()

	var help bytes.Buffer
	ran := false
	root := &Command{
		Name:   "bundlepipe",
		Stderr: &help,
		Subcommands: []*Command{{
			Name:    "plan",
			Summary: "print the stage plan",
			Run:     func(context.Context, []string) error { ran = true; return nil },
		}},
	}
	if err := root.Execute(context.Background(), []string{"plan", "--help"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if ran {
		t.Error("Run called for --help")
	}
	if !strings.Contains(help.String(), "print the stage plan") {
		t.Errorf("help = %q", help.String())
	}
}
