// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// LogFormat selects the command logger's handler.
type LogFormat string

const (
	// LogAuto uses text on a terminal and JSON otherwise.
	LogAuto LogFormat = "auto"
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// ParseLogFormat parses a --log-format value. Empty means LogAuto.
func ParseLogFormat(value string) (LogFormat, error) {
	switch LogFormat(value) {
	case "", LogAuto:
		return LogAuto, nil
	case LogText, LogJSON:
		return LogFormat(value), nil
	}
	return "", fmt.Errorf("unknown log format %q (supported: auto, text, json)", value)
}

// NewCommandLogger returns the structured logger for a command writing
// to w. In LogAuto mode a terminal gets slog.TextHandler for humans and
// anything else (CI, pipes, files) gets slog.JSONHandler.
//
// Callers scope it with command context:
//
//	logger := cli.NewCommandLogger(os.Stderr, cli.LogAuto, false).With("command", "run")
func NewCommandLogger(w io.Writer, format LogFormat, verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}
	if format == LogText || (format != LogJSON && IsTerminal(w)) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
