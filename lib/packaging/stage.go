// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package packaging

import (
	"errors"
	"fmt"
)

// Stage identifies one pipeline stage.
type Stage string

const (
	StageAcquireSource       Stage = "acquire_source"
	StageProvisionRuntime    Stage = "provision_runtime"
	StageInstallDependencies Stage = "install_dependencies"
	StageSynthesizeBundle    Stage = "synthesize_bundle"
	StageNormalizeBundle     Stage = "normalize_bundle"
	StageVerifyStructure     Stage = "verify_structure"
	StageArchive             Stage = "archive"
	StagePublish             Stage = "publish"
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageAcquireSource,
	StageProvisionRuntime,
	StageInstallDependencies,
	StageSynthesizeBundle,
	StageNormalizeBundle,
	StageVerifyStructure,
	StageArchive,
	StagePublish,
}

var (
	ErrSourceUnavailable    = errors.New("source unavailable")
	ErrRuntimeProvision     = errors.New("runtime provisioning failed")
	ErrDependencyResolution = errors.New("dependency resolution failed")
	ErrBuild                = errors.New("build failed")
	ErrArchive              = errors.New("archive creation failed")
	ErrPublish              = errors.New("publication failed")
)

// Sentinel returns the error category of failures in s. It is nil for
// StageVerifyStructure, which cannot fail a run.
func (s Stage) Sentinel() error {
	switch s {
	case StageAcquireSource:
		return ErrSourceUnavailable
	case StageProvisionRuntime:
		return ErrRuntimeProvision
	case StageInstallDependencies:
		return ErrDependencyResolution
	case StageSynthesizeBundle, StageNormalizeBundle:
		return ErrBuild
	case StageArchive:
		return ErrArchive
	case StagePublish:
		return ErrPublish
	}
	return nil
}

// ParseStage returns the stage named name.
func ParseStage(name string) (Stage, error) {
	for _, stage := range Stages {
		if string(stage) == name {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", name)
}

// StageError is the error returned by a failed run.
type StageError struct {
	// Stage is the stage that failed.
	Stage Stage

	// LastCompleted is the last stage that succeeded, or "" when the
	// first stage failed.
	LastCompleted Stage

	// Err is the underlying error from the stage.
	Err error
}

func (e *StageError) Error() string {
	last := string(e.LastCompleted)
	if last == "" {
		last = "none"
	}
	return fmt.Sprintf("stage %s failed (last completed: %s): %v", e.Stage, last, e.Err)
}

// Unwrap exposes both the stage's sentinel and the underlying error,
// so errors.Is matches either.
func (e *StageError) Unwrap() []error {
	if sentinel := e.Stage.Sentinel(); sentinel != nil {
		return []error{sentinel, e.Err}
	}
	return []error{e.Err}
}

// FailedStage extracts the failing stage from an error returned by
// Run. ok is false when err did not come from a stage.
func FailedStage(err error) (stage Stage, lastCompleted Stage, ok bool) {
	var stageError *StageError
	if errors.As(err, &stageError) {
		return stageError.Stage, stageError.LastCompleted, true
	}
	return "", "", false
}
