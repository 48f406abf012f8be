// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package packaging

import (
	"time"

	"github.com/bureau-foundation/bundlepipe/lib/archive"
	"github.com/bureau-foundation/bundlepipe/lib/artifactstore"
	"github.com/bureau-foundation/bundlepipe/lib/bundle"
	"github.com/bureau-foundation/bundlepipe/lib/pyruntime"
)

// Status is the outcome of one stage.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// StageOutcome records how one stage went.
type StageOutcome struct {
	Stage    Stage         `json:"stage"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`

	// Details holds stage-specific facts for logs and the summary
	// ("commit", "python", "entries", ...).
	Details map[string]string `json:"details,omitempty"`
}

// Report describes a finished run, successful or not.
type Report struct {
	RunID     string        `json:"run_id"`
	Source    string        `json:"source"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`

	Stages []StageOutcome `json:"stages"`

	// Workspace is the run's workspace directory. WorkspaceKept
	// reports whether it still exists.
	Workspace     string `json:"workspace,omitempty"`
	WorkspaceKept bool   `json:"workspace_kept"`

	Commit   string                     `json:"commit,omitempty"`
	Runtime  *pyruntime.Runtime         `json:"runtime,omitempty"`
	Bundle   *bundle.Bundle             `json:"bundle,omitempty"`
	Archive  *archive.Archive           `json:"archive,omitempty"`
	Artifact *artifactstore.ArtifactRef `json:"artifact,omitempty"`

	// FailedStage and LastCompleted are set on failure.
	FailedStage   Stage  `json:"failed_stage,omitempty"`
	LastCompleted Stage  `json:"last_completed,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Succeeded reports whether every stage, publication included,
// completed.
func (r *Report) Succeeded() bool {
	return r != nil && r.FailedStage == "" && r.Artifact != nil
}

// Outcome returns the recorded outcome of stage.
func (r *Report) Outcome(stage Stage) (StageOutcome, bool) {
	for _, outcome := range r.Stages {
		if outcome.Stage == stage {
			return outcome, true
		}
	}
	return StageOutcome{}, false
}
