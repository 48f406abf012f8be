// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "BUNDLEPIPE_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the complete bundlepipe configuration.
type Config struct {
	Environment Environment `yaml:"environment" json:"environment"`

	Paths   PathsConfig   `yaml:"paths" json:"paths"`
	Source  SourceConfig  `yaml:"source" json:"source"`
	Python  PythonConfig  `yaml:"python" json:"python"`
	Build   BuildConfig   `yaml:"build" json:"build"`
	Archive ArchiveConfig `yaml:"archive" json:"archive"`
	Publish PublishConfig `yaml:"publish" json:"publish"`
	Limits  LimitsConfig  `yaml:"limits" json:"limits"`

	Development *Overrides `yaml:"development,omitempty" json:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty" json:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty" json:"production,omitempty"`
}

// Overrides contains the fields that can be overridden per
// environment. Empty strings leave the base value alone.
type Overrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty" json:"paths,omitempty"`
	Archive *ArchiveConfig `yaml:"archive,omitempty" json:"archive,omitempty"`
	Publish *PublishConfig `yaml:"publish,omitempty" json:"publish,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for bundlepipe data.
	Root string `yaml:"root" json:"root"`

	// Workspaces holds one build workspace per run, named by run ID.
	Workspaces string `yaml:"workspaces" json:"workspaces"`

	// Store is the artifact store root.
	Store string `yaml:"store" json:"store"`

	// ResultLog, when set, receives a JSONL record of every run.
	ResultLog string `yaml:"result_log" json:"result_log"`
}

// SourceConfig describes where the application source comes from.
type SourceConfig struct {
	// Directory is the working tree or git repository to build.
	Directory string `yaml:"directory" json:"directory"`

	// Ref, when set, is resolved to a commit in Directory and exported
	// with git archive instead of copying the working tree.
	Ref string `yaml:"ref" json:"ref"`

	// Exclude lists additional directory names skipped when copying a
	// working tree.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// PythonConfig configures the interpreter and dependency installation.
type PythonConfig struct {
	// Version is the requested interpreter version ("3.12").
	Version string `yaml:"version" json:"version"`

	// Interpreters maps versions to explicit interpreter paths, tried
	// before searching PATH.
	Interpreters map[string]string `yaml:"interpreters" json:"interpreters"`

	// Manifest is the requirements file, relative to the source root.
	Manifest string `yaml:"manifest" json:"manifest"`

	// Freezer is the requirement installed alongside the manifest to
	// provide the freezing tool ("pyinstaller", "pyinstaller==6.11.1").
	Freezer string `yaml:"freezer" json:"freezer"`

	// PipArgs are extra arguments passed to pip install.
	PipArgs []string `yaml:"pip_args" json:"pip_args"`
}

// BuildConfig configures bundle synthesis.
type BuildConfig struct {
	// Entry is the entry-point script, relative to the source root.
	Entry string `yaml:"entry" json:"entry"`

	// Name is the application name. Empty means the entry script's
	// base name without extension.
	Name string `yaml:"name" json:"name"`

	// Layout is "app" or "onedir".
	Layout string `yaml:"layout" json:"layout"`

	// FreezerArgs are extra arguments passed to PyInstaller.
	FreezerArgs []string `yaml:"freezer_args" json:"freezer_args"`
}

// ArchiveConfig configures archive creation.
type ArchiveConfig struct {
	// Format is "tar.gz", "tar.zst", "tar.lz4", or "tar".
	Format string `yaml:"format" json:"format"`

	// Level is "fastest", "default", or "best".
	Level string `yaml:"level" json:"level"`

	// Timestamp is "epoch" (1980-01-01T00:00:00Z), "preserve", or an
	// RFC 3339 time pinned on every member.
	Timestamp string `yaml:"timestamp" json:"timestamp"`
}

// PublishConfig configures artifact publication.
type PublishConfig struct {
	// Slot is the artifact slot name. It may contain {name}, {commit},
	// and {run} placeholders.
	Slot string `yaml:"slot" json:"slot"`

	// AllowOverwrite permits repointing an existing slot. Nil means
	// false; production forces false unless its override sets it.
	AllowOverwrite *bool `yaml:"allow_overwrite,omitempty" json:"allow_overwrite,omitempty"`

	// Recipients are age public keys; when set, blobs are encrypted.
	Recipients []string `yaml:"recipients" json:"recipients"`

	// IdentityFile is an age key file used to read encrypted blobs.
	IdentityFile string `yaml:"identity_file" json:"identity_file"`
}

// LimitsConfig bounds how long external tools may run.
type LimitsConfig struct {
	// StageTimeout bounds each stage ("30m"). Empty means no limit.
	StageTimeout string `yaml:"stage_timeout" json:"stage_timeout"`

	// GracePeriod is the time between SIGTERM and SIGKILL when a
	// stage's process group is stopped ("10s").
	GracePeriod string `yaml:"grace_period" json:"grace_period"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()
	root := filepath.Join(homeDirectory, ".cache", "bundlepipe")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:       root,
			Workspaces: filepath.Join(root, "workspaces"),
			Store:      filepath.Join(root, "store"),
		},
		Source: SourceConfig{
			Directory: ".",
		},
		Python: PythonConfig{
			Version:  "3",
			Manifest: "requirements.txt",
			Freezer:  "pyinstaller",
		},
		Build: BuildConfig{
			Entry:  "main.py",
			Layout: "app",
		},
		Archive: ArchiveConfig{
			Format:    "tar.gz",
			Level:     "default",
			Timestamp: "epoch",
		},
		Publish: PublishConfig{
			Slot: "{name}/latest",
		},
		Limits: LimitsConfig{
			StageTimeout: "30m",
			GracePeriod:  "10s",
		},
	}
}

// Resolve loads the configuration named by path, falling back to the
// BUNDLEPIPE_CONFIG environment variable, and finally to Default. It
// returns the file actually loaded ("" for defaults).
func Resolve(path string) (*Config, string, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		cfg.finish()
		return cfg, "", nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// LoadFile loads configuration from path on top of Default, applies
// environment overrides, and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.decode(path, data); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.finish()
	return cfg, nil
}

func (c *Config) decode(path string, data []byte) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		return decoder.Decode(c)
	default:
		return yaml.Unmarshal(data, c)
	}
}

func (c *Config) finish() {
	c.applyEnvironmentOverrides()
	c.expandVariables()
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Release slots are write-once in production unless the
		// production section says otherwise.
		if overrides == nil || overrides.Publish == nil || overrides.Publish.AllowOverwrite == nil {
			forbid := false
			c.Publish.AllowOverwrite = &forbid
		}
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		setIfNonEmpty(&c.Paths.Root, overrides.Paths.Root)
		setIfNonEmpty(&c.Paths.Workspaces, overrides.Paths.Workspaces)
		setIfNonEmpty(&c.Paths.Store, overrides.Paths.Store)
		setIfNonEmpty(&c.Paths.ResultLog, overrides.Paths.ResultLog)
	}
	if overrides.Archive != nil {
		setIfNonEmpty(&c.Archive.Format, overrides.Archive.Format)
		setIfNonEmpty(&c.Archive.Level, overrides.Archive.Level)
		setIfNonEmpty(&c.Archive.Timestamp, overrides.Archive.Timestamp)
	}
	if overrides.Publish != nil {
		setIfNonEmpty(&c.Publish.Slot, overrides.Publish.Slot)
		setIfNonEmpty(&c.Publish.IdentityFile, overrides.Publish.IdentityFile)
		if overrides.Publish.AllowOverwrite != nil {
			allow := *overrides.Publish.AllowOverwrite
			c.Publish.AllowOverwrite = &allow
		}
		if len(overrides.Publish.Recipients) > 0 {
			c.Publish.Recipients = slices.Clone(overrides.Publish.Recipients)
		}
	}
}

func setIfNonEmpty(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"BUNDLEPIPE_ROOT": c.Paths.Root,
		"HOME":            os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["BUNDLEPIPE_ROOT"] = c.Paths.Root

	c.Paths.Workspaces = expandVars(c.Paths.Workspaces, vars)
	c.Paths.Store = expandVars(c.Paths.Store, vars)
	c.Paths.ResultLog = expandVars(c.Paths.ResultLog, vars)
	c.Source.Directory = expandVars(c.Source.Directory, vars)
	c.Publish.IdentityFile = expandVars(c.Publish.IdentityFile, vars)
	for version, path := range c.Python.Interpreters {
		c.Python.Interpreters[version] = expandVars(path, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// AllowsOverwrite reports the effective slot overwrite policy.
func (c *Config) AllowsOverwrite() bool {
	return c.Publish.AllowOverwrite != nil && *c.Publish.AllowOverwrite
}

// SetAllowOverwrite sets the slot overwrite policy (from a flag).
func (c *Config) SetAllowOverwrite(allow bool) {
	c.Publish.AllowOverwrite = &allow
}

// StageTimeout returns the parsed per-stage timeout; zero means none.
func (c *Config) StageTimeout() time.Duration {
	duration, _ := parseOptionalDuration(c.Limits.StageTimeout)
	return duration
}

// GracePeriod returns the parsed SIGTERM-to-SIGKILL grace period.
func (c *Config) GracePeriod() time.Duration {
	duration, _ := parseOptionalDuration(c.Limits.GracePeriod)
	return duration
}

func parseOptionalDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration < 0 {
		return 0, fmt.Errorf("duration %q is negative", value)
	}
	return duration, nil
}

// ArchiveModTime interprets Archive.Timestamp: it returns the pinned
// time, or preserve=true for "preserve".
func (c *Config) ArchiveModTime() (pinned time.Time, preserve bool, err error) {
	switch c.Archive.Timestamp {
	case "", "epoch":
		return time.Time{}, false, nil
	case "preserve":
		return time.Time{}, true, nil
	default:
		pinned, err := time.Parse(time.RFC3339, c.Archive.Timestamp)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("archive.timestamp must be epoch, preserve, or an RFC 3339 time: %w", err)
		}
		return pinned.UTC(), false, nil
	}
}

var (
	archiveFormats = []string{"tar.gz", "tar.zst", "tar.lz4", "tar"}
	archiveLevels  = []string{"fastest", "default", "best"}
	bundleLayouts  = []string{"app", "onedir"}
)

// Validate checks the configuration and returns every problem found,
// joined.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.Paths.Workspaces == "" {
		errs = append(errs, errors.New("paths.workspaces is required"))
	}
	if c.Paths.Store == "" {
		errs = append(errs, errors.New("paths.store is required"))
	}
	if c.Source.Directory == "" {
		errs = append(errs, errors.New("source.directory is required"))
	}
	if c.Python.Version == "" {
		errs = append(errs, errors.New("python.version is required"))
	}
	if c.Python.Manifest == "" {
		errs = append(errs, errors.New("python.manifest is required"))
	}
	if c.Python.Freezer == "" {
		errs = append(errs, errors.New("python.freezer is required"))
	}
	if c.Build.Entry == "" {
		errs = append(errs, errors.New("build.entry is required"))
	}
	if !slices.Contains(bundleLayouts, c.Build.Layout) {
		errs = append(errs, fmt.Errorf("build.layout must be one of %v, got %q", bundleLayouts, c.Build.Layout))
	}
	if !slices.Contains(archiveFormats, c.Archive.Format) {
		errs = append(errs, fmt.Errorf("archive.format must be one of %v, got %q", archiveFormats, c.Archive.Format))
	}
	if !slices.Contains(archiveLevels, c.Archive.Level) {
		errs = append(errs, fmt.Errorf("archive.level must be one of %v, got %q", archiveLevels, c.Archive.Level))
	}
	if _, preserve, err := c.ArchiveModTime(); err != nil {
		errs = append(errs, err)
	} else if preserve && c.Environment == Production {
		errs = append(errs, errors.New("archive.timestamp \"preserve\" is not reproducible and is not allowed in production"))
	}
	if c.Publish.Slot == "" {
		errs = append(errs, errors.New("publish.slot is required"))
	}
	if _, err := parseOptionalDuration(c.Limits.StageTimeout); err != nil {
		errs = append(errs, fmt.Errorf("limits.stage_timeout: %w", err))
	}
	if _, err := parseOptionalDuration(c.Limits.GracePeriod); err != nil {
		errs = append(errs, fmt.Errorf("limits.grace_period: %w", err))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the configured data directories.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.Workspaces, c.Paths.Store} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	if c.Paths.ResultLog != "" {
		if err := os.MkdirAll(filepath.Dir(c.Paths.ResultLog), 0o755); err != nil {
			return fmt.Errorf("creating result log directory: %w", err)
		}
	}
	return nil
}

// SlotName expands the placeholders in Publish.Slot.
func (c *Config) SlotName(name, commit, run string) string {
	if commit == "" {
		commit = "worktree"
	} else if len(commit) > 12 {
		commit = commit[:12]
	}
	return strings.NewReplacer(
		"{name}", name,
		"{commit}", commit,
		"{run}", run,
	).Replace(c.Publish.Slot)
}
