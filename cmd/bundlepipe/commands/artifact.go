// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/bundlepipe/cmd/bundlepipe/cli"
	"github.com/bureau-foundation/bundlepipe/lib/archive"
	"github.com/bureau-foundation/bundlepipe/lib/artifactstore"
	"github.com/bureau-foundation/bundlepipe/lib/config"
)

func artifactCommand(env Env) *cli.Command {
	return &cli.Command{
		Name:    "artifact",
		Summary: "Inspect and retrieve published archives",
		Description: `Manage the local artifact store that "run" publishes to.

Artifacts are addressed by slot name ("DollTower/latest") or by
reference ("art-" followed by 12 hex digits of the content digest).`,
		Subcommands: []*cli.Command{
			artifactListCommand(env),
			artifactShowCommand(env),
			artifactGetCommand(env),
			artifactDeleteCommand(env),
		},
		Examples: []cli.Example{
			{
				Description: "List every published slot",
				Command:     "bundlepipe artifact list",
			},
			{
				Description: "Show the members of an archive",
				Command:     "bundlepipe artifact show DollTower/latest --members",
			},
		},
	}
}

type artifactListParams struct {
	storeParams
	cli.JSONOutput
	Prefix string `flag:"prefix" desc:"only slots whose name starts with this prefix"`
}

func artifactListCommand(env Env) *cli.Command {
	var params artifactListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List published slots",
		Usage:   "bundlepipe artifact list [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			store, _, err := params.open()
			if err != nil {
				return err
			}
			records := store.List(params.Prefix)
			if done, err := params.EmitJSON(env.Stdout, records); done {
				return err
			}
			if len(records) == 0 {
				_, err := fmt.Fprintln(env.Stderr, "no artifacts")
				return err
			}
			writer := tabwriter.NewWriter(env.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(writer, "SLOT\tREF\tFORMAT\tSIZE\tUPDATED")
			for _, record := range records {
				name := record.Name
				if record.Encrypted {
					name += " (encrypted)"
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					name, record.Ref(), record.Format, formatSize(record.Size),
					record.UpdatedAt.UTC().Format(time.RFC3339))
			}
			return writer.Flush()
		},
	}
}

type artifactShowParams struct {
	storeParams
	cli.JSONOutput
	Members bool `flag:"members" desc:"list the archive's members (reads the blob)"`
}

// artifactDetail is the --json output of artifact show.
type artifactDetail struct {
	artifactstore.SlotRecord
	Ref     string           `json:"ref"`
	Members []archive.Member `json:"members,omitempty"`
}

func artifactShowCommand(env Env) *cli.Command {
	var params artifactShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show one artifact's record",
		Usage:   "bundlepipe artifact show <slot|ref> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("show", &params) },
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, 1, "bundlepipe artifact show <slot|ref> [flags]"); err != nil {
				return err
			}
			store, cfg, err := params.open()
			if err != nil {
				return err
			}
			record, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			detail := artifactDetail{SlotRecord: record, Ref: record.Ref()}
			if params.Members {
				detail.Members, err = readMembers(store, cfg, record)
				if err != nil {
					return err
				}
			}
			if done, err := params.EmitJSON(env.Stdout, detail); done {
				return err
			}

			writer := tabwriter.NewWriter(env.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(writer, "slot:\t%s\n", record.Name)
			fmt.Fprintf(writer, "ref:\t%s\n", detail.Ref)
			fmt.Fprintf(writer, "digest:\t%s\n", record.Digest)
			fmt.Fprintf(writer, "file:\t%s\n", record.Filename)
			fmt.Fprintf(writer, "format:\t%s (%s)\n", record.Format, record.ContentType)
			fmt.Fprintf(writer, "size:\t%s\n", formatSize(record.Size))
			if record.Encrypted {
				fmt.Fprintf(writer, "stored:\t%s, encrypted\n", formatSize(record.StoredSize))
			}
			fmt.Fprintf(writer, "created:\t%s\n", record.CreatedAt.UTC().Format(time.RFC3339))
			fmt.Fprintf(writer, "updated:\t%s\n", record.UpdatedAt.UTC().Format(time.RFC3339))
			for _, key := range sortedKeys(record.Labels) {
				fmt.Fprintf(writer, "label %s:\t%s\n", key, record.Labels[key])
			}
			if err := writer.Flush(); err != nil {
				return err
			}
			for _, member := range detail.Members {
				fmt.Fprintf(env.Stdout, "%-10s %10d  %s\n", member.Mode, member.Size, member.Name)
			}
			return nil
		},
	}
}

// identities loads the configured age identity file, if any.
func identities(cfg *config.Config) ([]age.Identity, error) {
	if cfg.Publish.IdentityFile == "" {
		return nil, nil
	}
	return artifactstore.LoadIdentities(cfg.Publish.IdentityFile)
}

func openArtifact(store *artifactstore.Store, cfg *config.Config, record artifactstore.SlotRecord) (io.ReadCloser, error) {
	var keys []age.Identity
	if record.Encrypted {
		loaded, err := identities(cfg)
		if err != nil {
			return nil, err
		}
		keys = loaded
	}
	reader, _, err := store.Open(record.Name, keys...)
	if errors.Is(err, artifactstore.ErrIdentityRequired) {
		return nil, fmt.Errorf("%w: set publish.identity_file in the configuration", err)
	}
	return reader, err
}

func readMembers(store *artifactstore.Store, cfg *config.Config, record artifactstore.SlotRecord) ([]archive.Member, error) {
	reader, err := openArtifact(store, cfg, record)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return archive.ReadMembers(reader, archive.Format(record.Format))
}

type artifactGetParams struct {
	storeParams
	Output  string `flag:"output,o" desc:"output file, or - for stdout (default: the archive's original file name)"`
	Extract string `flag:"extract,x" desc:"extract the archive into this directory instead of writing it"`
}

func artifactGetCommand(env Env) *cli.Command {
	var params artifactGetParams
	return &cli.Command{
		Name:    "get",
		Summary: "Retrieve an artifact's archive",
		Description: `Write the archive stored under a slot or reference. Encrypted
artifacts are decrypted with publish.identity_file. The content digest
is verified as the archive is read; a corrupted blob fails the command
and the partial output is removed.`,
		Usage: "bundlepipe artifact get <slot|ref> [flags]",
		Examples: []cli.Example{
			{
				Description: "Fetch and unpack the latest build",
				Command:     "bundlepipe artifact get DollTower/latest -x ~/Applications",
			},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("get", &params) },
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, 1, "bundlepipe artifact get <slot|ref> [flags]"); err != nil {
				return err
			}
			store, cfg, err := params.open()
			if err != nil {
				return err
			}
			record, err := store.Resolve(args[0])
			if err != nil {
				return err
			}
			reader, err := openArtifact(store, cfg, record)
			if err != nil {
				return err
			}
			defer reader.Close()

			if params.Extract != "" {
				count, err := archive.Extract(reader, archive.Format(record.Format), params.Extract)
				if err != nil {
					return fmt.Errorf("extracting %s: %w", record.Name, err)
				}
				fmt.Fprintf(env.Stderr, "extracted %d members into %s\n", count, params.Extract)
				return nil
			}

			if params.Output == "-" {
				_, err := io.Copy(env.Stdout, reader)
				return err
			}
			output := params.Output
			if output == "" {
				output = filepath.Base(record.Filename)
			}
			return writeFile(output, reader)
		},
	}
}

// writeFile copies r to path, removing the file if the copy fails.
func writeFile(path string, r io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

type artifactDeleteParams struct {
	storeParams
}

func artifactDeleteCommand(env Env) *cli.Command {
	var params artifactDeleteParams
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a slot",
		Description: `Remove a slot. Its blob is removed too once no other slot refers to
it. Deletion ignores publish.allow_overwrite.`,
		Usage: "bundlepipe artifact delete <slot> [flags]",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("delete", &params) },
		Run: func(_ context.Context, args []string) error {
			if err := requireArgs(args, 1, "bundlepipe artifact delete <slot> [flags]"); err != nil {
				return err
			}
			store, _, err := params.open()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(env.Stderr, "deleted %s\n", args[0])
			return err
		},
	}
}
