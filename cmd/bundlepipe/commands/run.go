// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bundlepipe/cmd/bundlepipe/cli"
	"github.com/bureau-foundation/bundlepipe/lib/config"
	"github.com/bureau-foundation/bundlepipe/lib/packaging"
	"github.com/bureau-foundation/bundlepipe/lib/runlog"
)

// buildParams override the configuration for one invocation. Empty
// values leave the configured value alone.
type buildParams struct {
	configParams

	Source     string `flag:"source" desc:"source working tree or git repository (overrides source.directory)"`
	Ref        string `flag:"ref" desc:"git ref to export instead of copying the working tree"`
	Python     string `flag:"python" desc:"requested interpreter version, e.g. 3.12"`
	Manifest   string `flag:"manifest" desc:"requirements file relative to the source root"`
	Entry      string `flag:"entry" desc:"entry-point script relative to the source root"`
	Name       string `flag:"name" desc:"application name (default: entry script base name)"`
	Layout     string `flag:"layout" desc:"bundle layout: app or onedir"`
	Format     string `flag:"format" desc:"archive format: tar.gz, tar.zst, tar.lz4, or tar"`
	Level      string `flag:"level" desc:"compression level: fastest, default, or best"`
	Timestamp  string `flag:"timestamp" desc:"member timestamps: epoch, preserve, or an RFC 3339 time"`
	Slot       string `flag:"slot" desc:"artifact slot; may use {name}, {commit}, and {run}"`
	Store      string `flag:"store" desc:"artifact store root (overrides paths.store)"`
	Workspaces string `flag:"workspaces" desc:"directory holding per-run workspaces (overrides paths.workspaces)"`

	AllowOverwrite bool `flag:"allow-overwrite" desc:"allow repointing an existing slot (refused in production unless configured)"`
}

// resolve loads the configuration and applies the flag overrides.
// allowOverwriteSet reports whether --allow-overwrite was given.
func (p *buildParams) resolve(allowOverwriteSet bool) (*config.Config, error) {
	cfg, _, err := p.load()
	if err != nil {
		return nil, err
	}

	overrides := []struct {
		target *string
		value  string
	}{
		{&cfg.Source.Directory, p.Source},
		{&cfg.Source.Ref, p.Ref},
		{&cfg.Python.Version, p.Python},
		{&cfg.Python.Manifest, p.Manifest},
		{&cfg.Build.Entry, p.Entry},
		{&cfg.Build.Name, p.Name},
		{&cfg.Build.Layout, p.Layout},
		{&cfg.Archive.Format, p.Format},
		{&cfg.Archive.Level, p.Level},
		{&cfg.Archive.Timestamp, p.Timestamp},
		{&cfg.Publish.Slot, p.Slot},
		{&cfg.Paths.Store, p.Store},
		{&cfg.Paths.Workspaces, p.Workspaces},
	}
	for _, override := range overrides {
		if override.value != "" {
			*override.target = override.value
		}
	}

	if allowOverwriteSet {
		if p.AllowOverwrite && cfg.Environment == config.Production && !cfg.AllowsOverwrite() {
			return nil, errors.New("--allow-overwrite is refused in production; set production.publish.allow_overwrite in the configuration")
		}
		cfg.SetAllowOverwrite(p.AllowOverwrite)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

type runParams struct {
	buildParams
	cli.JSONOutput

	KeepWorkspace bool   `flag:"keep-workspace" desc:"leave the run's workspace on disk afterwards"`
	ResultLog     string `flag:"result-log" desc:"append a JSONL record of the run to this file (overrides paths.result_log)"`
	Listing       string `flag:"listing" desc:"write the bundle listing to this file, or - for stderr"`
	RunID         string `flag:"run-id" desc:"run identifier (default: a new UUID)"`
}

func runCommand(env Env) *cli.Command {
	var params runParams
	var command *cli.Command
	command = &cli.Command{
		Name:    "run",
		Summary: "Package the application and publish the archive",
		Description: `Run every packaging stage in order, stopping at the first failure:

  acquire_source        copy the working tree or export a commit
  provision_runtime     find the interpreter and create a virtualenv
  install_dependencies  install the manifest and the freezer
  synthesize_bundle     freeze the entry script with PyInstaller
  normalize_bundle      mark the launcher executable, drop quarantine
  verify_structure      list the bundle (never fails the run)
  archive               write a deterministic archive
  publish               store the archive under its slot

Nothing is published unless every earlier stage succeeded. A failed run
names the failing stage and the last one that completed, and exits 1.
The run's workspace is removed afterwards unless --keep-workspace is set.`,
		Usage: "bundlepipe run [flags]",
		Examples: []cli.Example{
			{
				Description: "Package the working tree with defaults",
				Command:     "bundlepipe run --entry DollTowerGame.py",
			},
			{
				Description: "Release a tagged commit as a zstd archive",
				Command:     "bundlepipe run -c release.yaml --ref v2.0.0 --format tar.zst --slot 'DollTower/{commit}'",
			},
			{
				Description: "Machine-readable report",
				Command:     "bundlepipe run --json > report.json",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("run", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			logger, err := params.logger(env, "run")
			if err != nil {
				return err
			}
			cfg, err := params.resolve(command.Changed("allow-overwrite"))
			if err != nil {
				return err
			}
			if params.ResultLog != "" {
				cfg.Paths.ResultLog = params.ResultLog
			}
			return runPipeline(ctx, env, cfg, &params, logger)
		},
	}
	return command
}

func runPipeline(ctx context.Context, env Env, cfg *config.Config, params *runParams, logger *slog.Logger) error {
	var results *runlog.Log
	if cfg.Paths.ResultLog != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Paths.ResultLog), 0o755); err != nil {
			return fmt.Errorf("creating result log directory: %w", err)
		}
		opened, err := runlog.Open(cfg.Paths.ResultLog, logger)
		if err != nil {
			return err
		}
		defer opened.Close()
		results = opened
	}

	var listing io.Writer
	switch params.Listing {
	case "":
	case "-":
		listing = env.Stderr
	default:
		file, err := os.Create(params.Listing)
		if err != nil {
			return fmt.Errorf("creating listing file: %w", err)
		}
		defer file.Close()
		listing = file
	}

	var toolOutput io.Writer
	if params.Verbose {
		toolOutput = env.Stderr
	}

	pipeline, err := packaging.New(cfg, packaging.Options{
		Runner:        env.runner(),
		Logger:        logger,
		Results:       results,
		Listing:       listing,
		ToolOutput:    toolOutput,
		KeepWorkspace: params.KeepWorkspace,
		RunID:         params.RunID,
	})
	if err != nil {
		return err
	}

	report, runErr := pipeline.Run(ctx)
	if report != nil {
		if params.OutputJSON {
			if err := cli.WriteJSON(env.Stdout, report); err != nil {
				return err
			}
		} else {
			writeSummary(env.Stderr, report)
		}
	}
	if runErr != nil {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
