// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package packaging

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/bundlepipe/lib/freeze"
	"github.com/bureau-foundation/bundlepipe/lib/pyruntime"
	"github.com/bureau-foundation/bundlepipe/lib/workspace"
)

// PlaceholderWorkspace stands for the run's workspace in a plan.
const PlaceholderWorkspace = "<workspace>"

// PlannedStage describes what a stage would do.
type PlannedStage struct {
	Stage  Stage  `json:"stage"`
	Action string `json:"action"`
}

// Plan describes every stage without touching the filesystem or
// running anything.
func (p *Pipeline) Plan() []PlannedStage {
	cfg := p.config
	ws := &workspace.Workspace{Root: PlaceholderWorkspace}
	name := AppName(cfg)

	var acquire string
	if cfg.Source.Ref != "" {
		acquire = fmt.Sprintf("export commit %s of %s into %s", cfg.Source.Ref, cfg.Source.Directory, ws.SourceDir())
	} else {
		exclude := append(append([]string(nil), workspace.DefaultExclude...), cfg.Source.Exclude...)
		acquire = fmt.Sprintf("copy %s into %s (excluding %s)", cfg.Source.Directory, ws.SourceDir(), strings.Join(exclude, ", "))
	}

	candidates := pyruntime.Candidates(cfg.Python.Version, cfg.Python.Interpreters)
	provision := fmt.Sprintf("find python %s (trying %s), create venv %s",
		cfg.Python.Version, strings.Join(candidates, ", "), ws.VenvDir())

	rt := pyruntime.Runtime{VenvDir: ws.VenvDir()}
	install := fmt.Sprintf("check %s for conflicts, pip install -r %s %s",
		cfg.Python.Manifest, cfg.Python.Manifest, cfg.Python.Freezer)
	if len(cfg.Python.PipArgs) > 0 {
		install += " " + strings.Join(cfg.Python.PipArgs, " ")
	}

	synthesize := "invalid freezer configuration"
	options := freeze.Options{
		SourceDir: ws.SourceDir(),
		Entry:     cfg.Build.Entry,
		Name:      name,
		Layout:    p.layout,
		DistDir:   ws.DistDir(),
		WorkDir:   ws.BuildDir(),
		Args:      cfg.Build.FreezerArgs,
	}
	if invocation, err := freeze.Command(rt, options); err == nil {
		synthesize = invocation.String()
	}

	bundleRoot := filepath.Join(ws.DistDir(), p.layout.DirectoryName(name))
	normalize := fmt.Sprintf("chmod a+rx %s, strip extended attributes under %s",
		filepath.Join(bundleRoot, filepath.FromSlash(p.layout.ExecutableSubpath(name))), bundleRoot)

	timestamp := cfg.Archive.Timestamp
	if timestamp == "" {
		timestamp = "epoch"
	}
	archiveAction := fmt.Sprintf("write %s (%s, level %s, timestamps %s)",
		filepath.Join(ws.OutDir(), ArchiveFilename(name, "", "<run>", p.format)), p.format, p.level, timestamp)

	overwrite := "refuse to overwrite"
	if cfg.AllowsOverwrite() {
		overwrite = "overwrite allowed"
	}
	encryption := ""
	if len(cfg.Publish.Recipients) > 0 {
		encryption = fmt.Sprintf(", encrypted to %d recipient(s)", len(cfg.Publish.Recipients))
	}
	publish := fmt.Sprintf("store in %s as slot %q (%s%s)",
		cfg.Paths.Store, cfg.SlotName(name, cfg.Source.Ref, "<run>"), overwrite, encryption)

	return []PlannedStage{
		{StageAcquireSource, acquire},
		{StageProvisionRuntime, provision},
		{StageInstallDependencies, install},
		{StageSynthesizeBundle, synthesize},
		{StageNormalizeBundle, normalize},
		{StageVerifyStructure, "list " + bundleRoot},
		{StageArchive, archiveAction},
		{StagePublish, publish},
	}
}
