// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package packaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/bundlepipe/lib/archive"
	"github.com/bureau-foundation/bundlepipe/lib/artifactstore"
	"github.com/bureau-foundation/bundlepipe/lib/bundle"
	"github.com/bureau-foundation/bundlepipe/lib/clock"
	"github.com/bureau-foundation/bundlepipe/lib/config"
	"github.com/bureau-foundation/bundlepipe/lib/freeze"
	"github.com/bureau-foundation/bundlepipe/lib/process"
	"github.com/bureau-foundation/bundlepipe/lib/pyruntime"
	"github.com/bureau-foundation/bundlepipe/lib/runlog"
	"github.com/bureau-foundation/bundlepipe/lib/version"
	"github.com/bureau-foundation/bundlepipe/lib/workspace"
)

// Options supplies a Pipeline's collaborators. Every field is
// optional.
type Options struct {
	// Runner executes external tools. Nil means process.ExecRunner.
	Runner process.Runner

	// Logger receives structured progress logs. Nil discards them.
	Logger *slog.Logger

	// Clock times stages. Nil means the real clock.
	Clock clock.Clock

	// Results is the JSONL result log. Nil disables it.
	Results *runlog.Log

	// Listing receives the bundle listing from verify_structure, one
	// entry per line. Nil discards it.
	Listing io.Writer

	// ToolOutput receives the output of git, python, pip, and
	// PyInstaller as they run. Nil discards it.
	ToolOutput io.Writer

	// Store is the artifact store to publish to. Nil means the store
	// at the configured path, opened during the publish stage.
	Store *artifactstore.Store

	// KeepWorkspace leaves the run's workspace on disk afterwards.
	KeepWorkspace bool

	// RunID names the run and its workspace. Empty means a new UUID.
	RunID string
}

// Pipeline runs packaging for one configuration. A Pipeline may run
// more than once; each Run gets its own workspace and run ID unless
// Options.RunID pins one.
type Pipeline struct {
	config  *config.Config
	options Options
	layout  bundle.Layout
	format  archive.Format
	level   archive.Level
}

// New validates cfg and returns a Pipeline for it.
func New(cfg *config.Config, options Options) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("no configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	layout, err := bundle.ParseLayout(cfg.Build.Layout)
	if err != nil {
		return nil, err
	}
	format, err := archive.ParseFormat(cfg.Archive.Format)
	if err != nil {
		return nil, err
	}
	level, err := archive.ParseLevel(cfg.Archive.Level)
	if err != nil {
		return nil, err
	}
	if err := bundle.ValidateName(AppName(cfg)); err != nil {
		return nil, err
	}
	if options.RunID != "" {
		if err := ValidateRunID(options.RunID); err != nil {
			return nil, err
		}
	}

	if options.Runner == nil {
		options.Runner = process.ExecRunner{}
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Listing == nil {
		options.Listing = io.Discard
	}
	if options.ToolOutput == nil {
		options.ToolOutput = io.Discard
	}

	return &Pipeline{
		config:  cfg,
		options: options,
		layout:  layout,
		format:  format,
		level:   level,
	}, nil
}

// ValidateRunID checks that id can name a workspace directory directly
// inside the workspaces directory.
func ValidateRunID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("run ID is empty")
	case id == "." || id == "..":
		return fmt.Errorf("run ID %q is not a valid directory name", id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("run ID %q contains a path separator or NUL", id)
	}
	return nil
}

// AppName returns the application name: build.name, or the entry
// script's base name without extension.
func AppName(cfg *config.Config) string {
	if cfg.Build.Name != "" {
		return cfg.Build.Name
	}
	base := filepath.Base(cfg.Build.Entry)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// run is the state of one Run call.
type run struct {
	pipeline *Pipeline
	id       string
	logger   *slog.Logger
	report   *Report
	last     Stage

	workspace *workspace.Workspace
	runtime   pyruntime.Runtime
	bundle    bundle.Bundle
	archive   *archive.Archive
}

// stageFunc runs one stage and returns details for the report.
type stageFunc func(ctx context.Context) (map[string]string, error)

// Run executes every stage in order. It always returns a report; the
// error is a *StageError when a stage failed.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	id := p.options.RunID
	if id == "" {
		id = uuid.NewString()
	}
	source := p.source()
	started := p.options.Clock.Now()

	r := &run{
		pipeline: p,
		id:       id,
		logger:   p.options.Logger.With("run", id),
		report: &Report{
			RunID:     id,
			Source:    source.String(),
			StartedAt: started,
		},
	}
	defer r.cleanup()

	p.options.Results.Start(id, source.String(), len(Stages), started)
	r.logger.Info("packaging run starting", "source", source.String(), "stages", len(Stages))

	steps := []struct {
		stage Stage
		run   stageFunc
	}{
		{StageAcquireSource, r.acquireSource},
		{StageProvisionRuntime, r.provisionRuntime},
		{StageInstallDependencies, r.installDependencies},
		{StageSynthesizeBundle, r.synthesizeBundle},
		{StageNormalizeBundle, r.normalizeBundle},
		{StageVerifyStructure, r.verifyStructure},
		{StageArchive, r.createArchive},
		{StagePublish, r.publish},
	}

	for index, step := range steps {
		logger := r.logger.With("stage", string(step.stage))
		logger.Info("stage starting", "step", fmt.Sprintf("%d/%d", index+1, len(steps)))

		begin := p.options.Clock.Now()
		details, err := r.runStage(ctx, step.run)
		duration := clock.Since(p.options.Clock, begin)

		if err != nil {
			stageError := &StageError{Stage: step.stage, LastCompleted: r.last, Err: err}
			r.report.Stages = append(r.report.Stages, StageOutcome{
				Stage:    step.stage,
				Status:   StatusFailed,
				Duration: duration,
				Error:    err.Error(),
				Details:  details,
			})
			for _, skipped := range steps[index+1:] {
				r.report.Stages = append(r.report.Stages, StageOutcome{Stage: skipped.stage, Status: StatusSkipped})
			}
			p.options.Results.Stage(id, index, string(step.stage), string(StatusFailed), duration, err.Error(), details)

			total := clock.Since(p.options.Clock, started)
			r.report.Duration = total
			r.report.FailedStage = step.stage
			r.report.LastCompleted = r.last
			r.report.Error = err.Error()
			p.options.Results.Failed(id, string(step.stage), string(r.last), err.Error(), total)
			logger.Error("stage failed",
				"last_completed", string(r.last),
				"duration", duration,
				"error", err,
			)
			return r.report, stageError
		}

		r.report.Stages = append(r.report.Stages, StageOutcome{
			Stage:    step.stage,
			Status:   StatusOK,
			Duration: duration,
			Details:  details,
		})
		p.options.Results.Stage(id, index, string(step.stage), string(StatusOK), duration, "", details)
		logger.Info("stage complete", "duration", duration)
		r.last = step.stage
	}

	total := clock.Since(p.options.Clock, started)
	r.report.Duration = total
	artifact := r.report.Artifact
	p.options.Results.Complete(id, total, artifact.Slot, artifact.Digest, artifact.Ref)
	r.logger.Info("packaging run complete",
		"slot", artifact.Slot,
		"ref", artifact.Ref,
		"duration", total,
	)
	return r.report, nil
}

// runStage applies the stage timeout and converts cancellation into a
// stage error.
func (r *run) runStage(ctx context.Context, fn stageFunc) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}
	timeout := r.pipeline.config.StageTimeout()
	stageContext, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		stageContext, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	details, err := fn(stageContext)
	if err != nil && ctx.Err() == nil && errors.Is(stageContext.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("stage timed out after %s: %w", timeout, err)
	}
	return details, err
}

func (r *run) cleanup() {
	if r.workspace == nil {
		return
	}
	r.report.Workspace = r.workspace.Root
	if r.pipeline.options.KeepWorkspace {
		r.report.WorkspaceKept = true
		r.logger.Info("workspace kept", "path", r.workspace.Root)
		return
	}
	if err := r.workspace.Remove(); err != nil {
		r.report.WorkspaceKept = true
		r.logger.Warn("removing workspace failed", "path", r.workspace.Root, "error", err)
	}
}

func (p *Pipeline) source() workspace.Source {
	return workspace.Source{
		Directory: p.config.Source.Directory,
		Ref:       p.config.Source.Ref,
		Exclude:   p.config.Source.Exclude,
	}
}

func (r *run) acquireSource(ctx context.Context) (map[string]string, error) {
	p := r.pipeline
	root := filepath.Join(p.config.Paths.Workspaces, r.id)
	acquired, err := workspace.Acquire(ctx, p.source(), root, p.options.Runner)
	if err != nil {
		return nil, err
	}
	r.workspace = acquired
	r.report.Commit = acquired.Commit

	details := map[string]string{
		"workspace": acquired.Root,
		"files":     strconv.Itoa(acquired.Files),
	}
	if acquired.Commit != "" {
		details["commit"] = acquired.Commit
	}
	return details, nil
}

func (r *run) provisionRuntime(ctx context.Context) (map[string]string, error) {
	p := r.pipeline
	provisioned, err := pyruntime.Provision(ctx, p.options.Runner, pyruntime.ProvisionOptions{
		Version:      p.config.Python.Version,
		Interpreters: p.config.Python.Interpreters,
		VenvDir:      r.workspace.VenvDir(),
		Output:       p.options.ToolOutput,
		GracePeriod:  p.config.GracePeriod(),
	})
	if err != nil {
		return nil, err
	}
	r.runtime = provisioned
	r.report.Runtime = &provisioned
	return map[string]string{
		"python":      provisioned.Version,
		"interpreter": provisioned.Interpreter,
	}, nil
}

func (r *run) installDependencies(ctx context.Context) (map[string]string, error) {
	p := r.pipeline
	installed, parsed, err := pyruntime.InstallDependencies(ctx, p.options.Runner, r.runtime, pyruntime.InstallOptions{
		Manifest:    filepath.Join(r.workspace.SourceDir(), p.config.Python.Manifest),
		Extra:       []string{p.config.Python.Freezer},
		PipArgs:     p.config.Python.PipArgs,
		Dir:         r.workspace.SourceDir(),
		Output:      p.options.ToolOutput,
		GracePeriod: p.config.GracePeriod(),
	})
	if err != nil {
		return nil, err
	}
	r.runtime = installed
	r.report.Runtime = &installed
	return map[string]string{
		"requirements": strconv.Itoa(len(parsed.Keys())),
		"installed":    strconv.Itoa(len(installed.Installed)),
	}, nil
}

func (r *run) synthesizeBundle(ctx context.Context) (map[string]string, error) {
	p := r.pipeline
	synthesized, err := freeze.Synthesize(ctx, p.options.Runner, r.runtime, r.freezeOptions())
	if err != nil {
		return nil, err
	}
	r.bundle = synthesized
	r.report.Bundle = &synthesized
	return map[string]string{
		"bundle": synthesized.Root,
		"layout": string(synthesized.Layout),
	}, nil
}

func (r *run) freezeOptions() freeze.Options {
	p := r.pipeline
	return freeze.Options{
		SourceDir:   r.workspace.SourceDir(),
		Entry:       p.config.Build.Entry,
		Name:        AppName(p.config),
		Layout:      p.layout,
		DistDir:     r.workspace.DistDir(),
		WorkDir:     r.workspace.BuildDir(),
		Args:        p.config.Build.FreezerArgs,
		Output:      p.options.ToolOutput,
		GracePeriod: p.config.GracePeriod(),
	}
}

func (r *run) normalizeBundle(context.Context) (map[string]string, error) {
	result, err := bundle.Normalize(r.bundle)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"executable_mode":    result.ExecutableMode.String(),
		"visited":            strconv.Itoa(result.Visited),
		"attributes_removed": strconv.Itoa(result.AttributesRemoved),
	}, nil
}

// verifyStructure writes the bundle listing. Listing problems are
// logged and never fail the run.
func (r *run) verifyStructure(context.Context) (map[string]string, error) {
	logger := r.logger.With("stage", string(StageVerifyStructure))
	listing := r.pipeline.options.Listing
	count, problems := 0, 0
	for entry := range bundle.Entries(r.bundle) {
		if entry.Err != nil {
			problems++
			logger.Warn("bundle listing problem", "path", entry.Path, "error", entry.Err)
			continue
		}
		count++
		if _, err := fmt.Fprintln(listing, entry.String()); err != nil {
			problems++
			logger.Warn("writing bundle listing failed", "error", err)
			break
		}
	}
	return map[string]string{
		"entries":  strconv.Itoa(count),
		"problems": strconv.Itoa(problems),
	}, nil
}

func (r *run) createArchive(context.Context) (map[string]string, error) {
	p := r.pipeline
	pinned, preserve, err := p.config.ArchiveModTime()
	if err != nil {
		return nil, err
	}
	destination := filepath.Join(r.workspace.OutDir(), ArchiveFilename(AppName(p.config), r.workspace.Commit, r.id, p.format))
	created, err := archive.Create(r.bundle.Root, destination, archive.Options{
		Format:          p.format,
		Level:           p.level,
		ModTime:         pinned,
		PreserveModTime: preserve,
	})
	if err != nil {
		return nil, err
	}
	r.archive = created
	r.report.Archive = created
	return map[string]string{
		"path":    created.Path,
		"digest":  created.Digest,
		"size":    strconv.FormatInt(created.Size, 10),
		"members": strconv.Itoa(created.Members),
	}, nil
}

// ArchiveFilename names the archive of a run: the application name,
// the first twelve characters of the commit (or of the run ID for a
// working-tree build), and the format's extension.
func ArchiveFilename(name, commit, runID string, format archive.Format) string {
	suffix := commit
	if suffix == "" {
		suffix = strings.ReplaceAll(runID, "-", "")
	}
	if len(suffix) > 12 {
		suffix = suffix[:12]
	}
	return name + "-" + suffix + format.Extension()
}

func (r *run) publish(context.Context) (map[string]string, error) {
	p := r.pipeline
	store := p.options.Store
	if store == nil {
		recipients, err := artifactstore.ParseRecipients(p.config.Publish.Recipients)
		if err != nil {
			return nil, err
		}
		store, err = artifactstore.New(p.config.Paths.Store, artifactstore.Options{
			Recipients: recipients,
			Clock:      p.options.Clock,
		})
		if err != nil {
			return nil, err
		}
	}

	name := AppName(p.config)
	slot := p.config.SlotName(name, r.workspace.Commit, r.id)
	labels := map[string]string{
		"run":    r.id,
		"name":   name,
		"layout": string(r.bundle.Layout),
		"python": r.runtime.Version,
		"source": r.report.Source,

		"bundlepipe": version.Label(),
	}
	if r.workspace.Commit != "" {
		labels["commit"] = r.workspace.Commit
	}

	artifact, err := store.Publish(r.archive, slot, artifactstore.PublishOptions{
		AllowOverwrite: p.config.AllowsOverwrite(),
		Labels:         labels,
	})
	if err != nil {
		return map[string]string{"slot": slot}, err
	}
	r.report.Artifact = &artifact
	details := map[string]string{
		"slot":  artifact.Slot,
		"ref":   artifact.Ref,
		"store": store.Root(),
	}
	if artifact.Replaced != "" {
		details["replaced"] = artifact.Replaced
	}
	return details, nil
}
