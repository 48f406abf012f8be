// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/bundlepipe/cmd/bundlepipe/cli"
	"github.com/bureau-foundation/bundlepipe/lib/artifactstore"
	"github.com/bureau-foundation/bundlepipe/lib/config"
)

// configParams are the flags shared by every command that reads the
// configuration.
type configParams struct {
	ConfigPath string `flag:"config,c" desc:"configuration file (default $BUNDLEPIPE_CONFIG, then built-in defaults)"`
	LogFormat  string `flag:"log-format" desc:"log format: auto, text, or json" default:"auto"`
	Verbose    bool   `flag:"verbose,v" desc:"log debug detail and stream tool output"`
}

// load resolves the configuration.
func (p *configParams) load() (*config.Config, string, error) {
	cfg, path, err := config.Resolve(p.ConfigPath)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func (p *configParams) logger(env Env, command string) (*slog.Logger, error) {
	format, err := cli.ParseLogFormat(p.LogFormat)
	if err != nil {
		return nil, err
	}
	return cli.NewCommandLogger(env.Stderr, format, p.Verbose).With("command", command), nil
}

// storeParams select the artifact store for commands that only read
// or manage it.
type storeParams struct {
	configParams
	Store string `flag:"store" desc:"artifact store root (overrides paths.store)"`
}

func (p *storeParams) open() (*artifactstore.Store, *config.Config, error) {
	cfg, _, err := p.load()
	if err != nil {
		return nil, nil, err
	}
	if p.Store != "" {
		cfg.Paths.Store = p.Store
	}
	recipients, err := artifactstore.ParseRecipients(cfg.Publish.Recipients)
	if err != nil {
		return nil, nil, err
	}
	store, err := artifactstore.New(cfg.Paths.Store, artifactstore.Options{Recipients: recipients})
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

// formatSize returns a human-readable byte count.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, count int, usage string) error {
	if len(args) != count {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}
