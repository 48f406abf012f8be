// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bundlepipe/cmd/bundlepipe/cli"
	"github.com/bureau-foundation/bundlepipe/lib/archive"
	"github.com/bureau-foundation/bundlepipe/lib/bundle"
)

type archiveParams struct {
	cli.JSONOutput
	Output    string `flag:"output,o" desc:"archive path (default: <bundle name><extension> in the current directory)"`
	Format    string `flag:"format" desc:"archive format: tar.gz, tar.zst, tar.lz4, or tar" default:"tar.gz"`
	Level     string `flag:"level" desc:"compression level: fastest, default, or best" default:"default"`
	Timestamp string `flag:"timestamp" desc:"member timestamps: epoch, preserve, or an RFC 3339 time" default:"epoch"`
	Normalize bool   `flag:"normalize" desc:"normalize the bundle in place before archiving"`
}

func archiveCommand(env Env) *cli.Command {
	var params archiveParams
	return &cli.Command{
		Name:    "archive",
		Summary: "Archive an existing bundle deterministically",
		Description: `Write a deterministic archive of a bundle directory built outside a
run. Members are sorted, owners are cleared, and every timestamp is
pinned, so archiving the same tree twice produces identical bytes.`,
		Usage: "bundlepipe archive <bundle-dir> [flags]",
		Examples: []cli.Example{
			{
				Description: "Archive a PyInstaller app bundle",
				Command:     "bundlepipe archive dist/DollTower.app -o DollTower.tar.gz",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("archive", &params) },
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, 1, "bundlepipe archive <bundle-dir> [flags]"); err != nil {
				return err
			}
			target, err := bundle.Open(args[0])
			if err != nil {
				return err
			}
			format, err := archive.ParseFormat(params.Format)
			if err != nil {
				return err
			}
			level, err := archive.ParseLevel(params.Level)
			if err != nil {
				return err
			}
			options := archive.Options{Format: format, Level: level}
			switch params.Timestamp {
			case "", "epoch":
			case "preserve":
				options.PreserveModTime = true
			default:
				pinned, err := time.Parse(time.RFC3339, params.Timestamp)
				if err != nil {
					return fmt.Errorf("--timestamp must be epoch, preserve, or an RFC 3339 time: %w", err)
				}
				options.ModTime = pinned.UTC()
			}

			if params.Normalize {
				if _, err := bundle.Normalize(target); err != nil {
					return err
				}
			}

			output := params.Output
			if output == "" {
				output = filepath.Base(target.Root) + format.Extension()
			}
			created, err := archive.Create(target.Root, output, options)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(env.Stdout, created); done {
				return err
			}
			_, err = fmt.Fprintf(env.Stdout, "%s  %s  %d members  %s\n",
				created.Path, formatSize(created.Size), created.Members, created.Digest)
			return err
		},
	}
}
