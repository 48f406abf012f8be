// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runlog writes the JSONL result log of packaging runs.
//
// Each line is an independent JSON object, so a run killed mid-stage
// keeps every line written before it, and a tailing reader sees stage
// outcomes as they happen. The file is opened for append: several runs
// may share one log, each line carrying its run ID.
//
// A nil *Log is valid and discards everything, which lets callers
// thread an optional log through without nil checks.
package runlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Log is an open result log.
type Log struct {
	logger  *slog.Logger
	file    *os.File
	encoder *json.Encoder
}

// Open opens (creating if needed) the JSONL log at path for append.
func Open(path string, logger *slog.Logger) (*Log, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening result log %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Log{
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Close closes the log file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// Start records the beginning of a run.
func (l *Log) Start(run, source string, stageCount int, at time.Time) {
	if l == nil {
		return
	}
	l.write(StartEntry{
		Type:       "start",
		Run:        run,
		Source:     source,
		StageCount: stageCount,
		Timestamp:  at.UTC().Format(time.RFC3339),
	})
}

// Stage records the outcome of one stage.
func (l *Log) Stage(run string, index int, name, status string, duration time.Duration, stageError string, details map[string]string) {
	if l == nil {
		return
	}
	l.write(StageEntry{
		Type:       "stage",
		Run:        run,
		Index:      index,
		Name:       name,
		Status:     status,
		DurationMS: duration.Milliseconds(),
		Error:      stageError,
		Details:    details,
	})
}

// Complete records a successful run.
func (l *Log) Complete(run string, duration time.Duration, slot, digest, ref string) {
	if l == nil {
		return
	}
	l.write(CompleteEntry{
		Type:       "complete",
		Run:        run,
		Status:     "ok",
		DurationMS: duration.Milliseconds(),
		Slot:       slot,
		Digest:     digest,
		Ref:        ref,
	})
}

// Failed records a run that stopped at failedStage.
func (l *Log) Failed(run, failedStage, lastCompleted, errorMessage string, duration time.Duration) {
	if l == nil {
		return
	}
	l.write(FailedEntry{
		Type:          "failed",
		Run:           run,
		Status:        "failed",
		Error:         errorMessage,
		FailedStage:   failedStage,
		LastCompleted: lastCompleted,
		DurationMS:    duration.Milliseconds(),
	})
}

func (l *Log) write(entry any) {
	if err := l.encoder.Encode(entry); err != nil {
		l.logger.Warn("failed to write result log entry", "error", err)
		return
	}
	// Sync per line so a tailing reader and a crash both see
	// complete lines.
	if err := l.file.Sync(); err != nil {
		l.logger.Warn("failed to sync result log", "error", err)
	}
}

// StartEntry is the first line of a run.
type StartEntry struct {
	Type       string `json:"type"`
	Run        string `json:"run"`
	Source     string `json:"source"`
	StageCount int    `json:"stage_count"`
	Timestamp  string `json:"timestamp"`
}

// StageEntry is written after each stage finishes or is skipped.
type StageEntry struct {
	Type       string            `json:"type"`
	Run        string            `json:"run"`
	Index      int               `json:"index"`
	Name       string            `json:"name"`
	Status     string            `json:"status"`
	DurationMS int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// CompleteEntry is the last line of a successful run.
type CompleteEntry struct {
	Type       string `json:"type"`
	Run        string `json:"run"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Slot       string `json:"slot"`
	Digest     string `json:"digest"`
	Ref        string `json:"ref"`
}

// FailedEntry is the last line of a failed run.
type FailedEntry struct {
	Type          string `json:"type"`
	Run           string `json:"run"`
	Status        string `json:"status"`
	Error         string `json:"error"`
	FailedStage   string `json:"failed_stage"`
	LastCompleted string `json:"last_completed"`
	DurationMS    int64  `json:"duration_ms"`
}
