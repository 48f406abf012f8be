// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// Requirement is one project requirement from a manifest.
type Requirement struct {
	// Name is the project name as written.
	Name string `json:"name"`

	// Key is the normalized project name.
	Key string `json:"key"`

	Extras     []string    `json:"extras,omitempty"`
	Specifiers []Specifier `json:"specifiers,omitempty"`

	// Marker is the environment marker after ";", as written.
	Marker string `json:"marker,omitempty"`

	// URL is set for "name @ url" direct references.
	URL string `json:"url,omitempty"`

	// Constraint is true for entries read from a -c file: they limit
	// versions but do not request installation.
	Constraint bool `json:"constraint,omitempty"`

	File string `json:"file"`
	Line int    `json:"line"`
}

// String renders the requirement in requirements-file syntax.
func (r Requirement) String() string {
	var builder strings.Builder
	builder.WriteString(r.Name)
	if len(r.Extras) > 0 {
		builder.WriteString("[" + strings.Join(r.Extras, ",") + "]")
	}
	if r.URL != "" {
		builder.WriteString(" @ " + r.URL)
	}
	for i, specifier := range r.Specifiers {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString(specifier.String())
	}
	if r.Marker != "" {
		builder.WriteString("; " + r.Marker)
	}
	return builder.String()
}

// Location returns "file:line" for messages.
func (r Requirement) Location() string {
	return fmt.Sprintf("%s:%d", r.File, r.Line)
}

// Manifest is a parsed requirements file with its includes expanded.
type Manifest struct {
	// Path is the top-level file.
	Path string `json:"path"`

	Requirements []Requirement `json:"requirements"`

	// Direct lists path or URL requirements without a project name
	// ("./vendor/lib", "https://host/pkg.whl").
	Direct []string `json:"direct,omitempty"`

	// Editable lists -e targets.
	Editable []string `json:"editable,omitempty"`

	// Options lists global pip options in file order
	// ("--index-url https://...").
	Options []string `json:"options,omitempty"`

	// Files lists every file read, top-level first.
	Files []string `json:"files"`
}

// ParseError locates a problem in a manifest.
type ParseError struct {
	File string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.File, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrIncludeCycle reports a -r or -c chain that includes itself.
var ErrIncludeCycle = errors.New("requirements include cycle")

// NormalizeName returns the PEP 503 normalized form of a project name.
func NormalizeName(name string) string {
	return separatorRun.ReplaceAllString(strings.ToLower(name), "-")
}

var separatorRun = regexp.MustCompile(`[-_.]+`)

// Parse reads the requirements file at path and every file it
// includes.
func Parse(path string) (*Manifest, error) {
	manifest := &Manifest{Path: path}
	parser := &parser{manifest: manifest}
	if err := parser.parseFile(path, false, nil); err != nil {
		return nil, err
	}
	return manifest, nil
}

// ParseReader parses a single requirements stream named name. Include
// options are rejected because there is no directory to resolve them
// against.
func ParseReader(r io.Reader, name string) (*Manifest, error) {
	manifest := &Manifest{Path: name}
	parser := &parser{manifest: manifest, noIncludes: true}
	if err := parser.parse(r, name, false, nil); err != nil {
		return nil, err
	}
	return manifest, nil
}

type parser struct {
	manifest   *Manifest
	noIncludes bool
}

func (p *parser) parseFile(path string, constraints bool, stack []string) error {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if slices.Contains(stack, absolute) {
		return fmt.Errorf("%w: %s", ErrIncludeCycle, strings.Join(append(stack, absolute), " -> "))
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	defer file.Close()

	p.manifest.Files = append(p.manifest.Files, path)
	return p.parse(file, path, constraints, append(stack, absolute))
}

// optionsWithValue are pip options that take the next token as their
// argument and are passed through to pip unchanged.
var optionsWithValue = map[string]string{
	"-i":                "--index-url",
	"--index-url":       "--index-url",
	"--extra-index-url": "--extra-index-url",
	"-f":                "--find-links",
	"--find-links":      "--find-links",
	"--trusted-host":    "--trusted-host",
	"--no-binary":       "--no-binary",
	"--only-binary":     "--only-binary",
	"--use-feature":     "--use-feature",
}

var flagOptions = map[string]bool{
	"--no-index":       true,
	"--pre":            true,
	"--prefer-binary":  true,
	"--require-hashes": true,
}

func (p *parser) parse(r io.Reader, name string, constraints bool, stack []string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNumber := 0
	var pending strings.Builder
	startLine := 0

	for scanner.Scan() {
		lineNumber++
		text := scanner.Text()

		if pending.Len() == 0 {
			startLine = lineNumber
		}
		// A trailing backslash joins the next line.
		if continued, ok := strings.CutSuffix(text, "\\"); ok {
			pending.WriteString(continued)
			pending.WriteString(" ")
			continue
		}
		pending.WriteString(text)
		logical := pending.String()
		pending.Reset()

		if err := p.parseLine(logical, name, startLine, constraints, stack); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if pending.Len() > 0 {
		return p.parseLine(pending.String(), name, startLine, constraints, stack)
	}
	return nil
}

func (p *parser) parseLine(line, file string, lineNumber int, constraints bool, stack []string) error {
	line = stripComment(line)
	if line == "" {
		return nil
	}
	fail := func(err error) error {
		return &ParseError{File: file, Line: lineNumber, Err: err}
	}

	if strings.HasPrefix(line, "-") {
		option, value := splitOption(line)
		switch option {
		case "-r", "--requirement", "-c", "--constraint":
			if value == "" {
				return fail(fmt.Errorf("%s needs a file argument", option))
			}
			if p.noIncludes {
				return fail(fmt.Errorf("%s is not supported when reading from a stream", option))
			}
			included := value
			if !filepath.IsAbs(included) {
				included = filepath.Join(filepath.Dir(file), included)
			}
			isConstraint := constraints || option == "-c" || option == "--constraint"
			if err := p.parseFile(included, isConstraint, stack); err != nil {
				if errors.Is(err, ErrIncludeCycle) {
					return err
				}
				return fail(err)
			}
			return nil

		case "-e", "--editable":
			if value == "" {
				return fail(fmt.Errorf("%s needs a path or URL", option))
			}
			p.manifest.Editable = append(p.manifest.Editable, value)
			return nil
		}

		if canonical, ok := optionsWithValue[option]; ok {
			if value == "" {
				return fail(fmt.Errorf("%s needs a value", option))
			}
			p.manifest.Options = append(p.manifest.Options, canonical+" "+value)
			return nil
		}
		if flagOptions[option] {
			if value != "" {
				return fail(fmt.Errorf("%s takes no value", option))
			}
			p.manifest.Options = append(p.manifest.Options, option)
			return nil
		}
		return fail(fmt.Errorf("unsupported option %s", option))
	}

	if isDirectReference(line) {
		p.manifest.Direct = append(p.manifest.Direct, line)
		return nil
	}

	requirement, err := ParseRequirement(line)
	if err != nil {
		return fail(err)
	}
	requirement.File = file
	requirement.Line = lineNumber
	requirement.Constraint = constraints
	p.manifest.Requirements = append(p.manifest.Requirements, requirement)
	return nil
}

// stripComment removes a "#" comment that starts the line or follows
// whitespace, then trims the result.
func stripComment(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return ""
	}
	if index := strings.Index(line, " #"); index >= 0 {
		line = line[:index]
	}
	if index := strings.Index(line, "\t#"); index >= 0 {
		line = line[:index]
	}
	return strings.TrimSpace(line)
}

// splitOption splits "-r other.txt", "--index-url=https://x", or
// "-rother.txt" into option and value.
func splitOption(line string) (string, string) {
	if strings.HasPrefix(line, "--") {
		if option, value, ok := strings.Cut(line, "="); ok && !strings.ContainsAny(option, " \t") {
			return option, strings.TrimSpace(value)
		}
		option, value, _ := strings.Cut(line, " ")
		return option, strings.TrimSpace(value)
	}
	if len(line) > 2 && line[2] != ' ' && line[2] != '\t' {
		return line[:2], strings.TrimSpace(line[2:])
	}
	option, value, _ := strings.Cut(line, " ")
	return option, strings.TrimSpace(value)
}

func isDirectReference(line string) bool {
	if namedReference.MatchString(line) {
		return false
	}
	if strings.HasPrefix(line, ".") || strings.HasPrefix(line, "/") {
		return true
	}
	if scheme, _, ok := strings.Cut(line, "://"); ok && urlScheme.MatchString(scheme) {
		return true
	}
	lower := strings.ToLower(line)
	return strings.HasSuffix(lower, ".whl") || strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".zip")
}

var namedReference = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*\s*(?:\[[^\]]*\])?\s*@`)

var urlScheme = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*$`)

var requirementPattern = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)

// ParseRequirement parses one requirement specifier such as
// "pygame[midi]>=2.5,<3; python_version >= '3.9'".
func ParseRequirement(text string) (Requirement, error) {
	// Per-requirement hash options belong to pip, not the specifier.
	if index := strings.Index(text, " --"); index >= 0 {
		text = strings.TrimSpace(text[:index])
	}

	body, marker, _ := strings.Cut(text, ";")
	body = strings.TrimSpace(body)
	marker = strings.TrimSpace(marker)

	match := requirementPattern.FindStringSubmatch(body)
	if match == nil {
		return Requirement{}, fmt.Errorf("invalid requirement %q", text)
	}

	requirement := Requirement{
		Name:   match[1],
		Key:    NormalizeName(match[1]),
		Marker: marker,
	}
	if match[2] != "" {
		for extra := range strings.SplitSeq(match[2], ",") {
			extra = strings.TrimSpace(extra)
			if extra == "" {
				continue
			}
			requirement.Extras = append(requirement.Extras, NormalizeName(extra))
		}
		slices.Sort(requirement.Extras)
		requirement.Extras = slices.Compact(requirement.Extras)
	}

	rest := strings.TrimSpace(match[3])
	if url, ok := strings.CutPrefix(rest, "@"); ok {
		requirement.URL = strings.TrimSpace(url)
		if requirement.URL == "" {
			return Requirement{}, fmt.Errorf("requirement %q: empty URL after @", text)
		}
		return requirement, nil
	}

	rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")"))
	if rest == "" {
		return requirement, nil
	}
	for clause := range strings.SplitSeq(rest, ",") {
		specifier, err := parseSpecifier(clause)
		if err != nil {
			return Requirement{}, fmt.Errorf("requirement %q: %w", text, err)
		}
		requirement.Specifiers = append(requirement.Specifiers, specifier)
	}
	return requirement, nil
}

// Keys returns the sorted normalized names of every installable
// (non-constraint) requirement.
func (m *Manifest) Keys() []string {
	var keys []string
	for _, requirement := range m.Requirements {
		if !requirement.Constraint {
			keys = append(keys, requirement.Key)
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}
