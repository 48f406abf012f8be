// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the bundlepipe command tree.
//
// Every command writes through an [Env] instead of the process's
// standard streams, and tools run through Env.Runner, so the whole
// tree can be exercised in tests without a Python toolchain.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/bundlepipe/cmd/bundlepipe/cli"
	"github.com/bureau-foundation/bundlepipe/lib/process"
	"github.com/bureau-foundation/bundlepipe/lib/version"
)

// Env is what commands read from and write to.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Runner executes external tools. Nil means process.ExecRunner.
	Runner process.Runner
}

// OSEnv returns the Env of the running process.
func OSEnv() Env {
	return Env{Stdout: os.Stdout, Stderr: os.Stderr}
}

func (e Env) runner() process.Runner {
	if e.Runner == nil {
		return process.ExecRunner{}
	}
	return e.Runner
}

// Root returns the complete command tree.
func Root(env Env) *cli.Command {
	return &cli.Command{
		Name: "bundlepipe",
		Description: `bundlepipe: build and package Python applications as macOS bundles.

Runs a fail-fast pipeline over a source tree with one entry-point
script and a requirements file: acquire the source into a fresh
workspace, provision the interpreter, install dependencies, freeze the
script into an application bundle with PyInstaller, normalize it,
archive it deterministically, and publish the archive to the local
artifact store.`,
		Stderr: env.Stderr,
		Subcommands: []*cli.Command{
			runCommand(env),
			planCommand(env),
			archiveCommand(env),
			verifyCommand(env),
			artifactCommand(env),
			configCommand(env),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string) error {
					_, err := fmt.Fprintf(env.Stdout, "bundlepipe %s\n", version.Full())
					return err
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Package the working tree in the current directory",
				Command:     "bundlepipe run --entry game.py --name DollTower",
			},
			{
				Description: "Package a tagged commit and publish it under a release slot",
				Command:     "bundlepipe run --source ~/src/game --ref v1.4.0 --slot 'DollTower/{commit}'",
			},
			{
				Description: "Fetch the latest published archive",
				Command:     "bundlepipe artifact get DollTower/latest -o DollTower.tar.gz",
			},
		},
	}
}
