// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed release version. It covers the common PEP 440
// forms: an optional epoch, a dotted release, and optional pre-,
// post-, and dev-release segments. Local version labels are kept for
// display but ignored in comparisons.
type Version struct {
	Epoch   int
	Release []int

	// PreKind is "a", "b", or "rc"; empty for no pre-release.
	PreKind string
	Pre     int

	Post    int
	HasPost bool

	Dev    int
	HasDev bool

	Local string
	raw   string
}

var versionPattern = regexp.MustCompile(`^v?(?:(\d+)!)?(\d+(?:\.\d+)*)` +
	`(?:[-_.]?(a|alpha|b|beta|c|rc|pre|preview)[-_.]?(\d*))?` +
	`(?:(?:-(\d+))|(?:[-_.]?(post|rev|r)[-_.]?(\d*)))?` +
	`(?:[-_.]?(dev)[-_.]?(\d*))?` +
	`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`)

// ParseVersion parses a version string.
func ParseVersion(s string) (Version, error) {
	match := versionPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if match == nil {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	version := Version{raw: s}
	if match[1] != "" {
		version.Epoch, _ = strconv.Atoi(match[1])
	}
	for part := range strings.SplitSeq(match[2], ".") {
		number, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		version.Release = append(version.Release, number)
	}
	if match[3] != "" {
		switch match[3] {
		case "a", "alpha":
			version.PreKind = "a"
		case "b", "beta":
			version.PreKind = "b"
		default:
			version.PreKind = "rc"
		}
		version.Pre = atoiOrZero(match[4])
	}
	if match[5] != "" {
		version.HasPost = true
		version.Post = atoiOrZero(match[5])
	} else if match[6] != "" {
		version.HasPost = true
		version.Post = atoiOrZero(match[7])
	}
	if match[8] != "" {
		version.HasDev = true
		version.Dev = atoiOrZero(match[9])
	}
	version.Local = match[10]
	return version, nil
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// String returns the version as originally written.
func (v Version) String() string {
	return v.raw
}

// IsPrerelease reports whether v is a pre- or dev-release.
func (v Version) IsPrerelease() bool {
	return v.PreKind != "" || v.HasDev
}

// Compare orders two versions: -1 if v < other, 0 if equal, +1 if
// v > other. Release segments are compared numerically with missing
// trailing segments treated as zero, so "1.0" equals "1.0.0".
func (v Version) Compare(other Version) int {
	if c := compareInt(v.Epoch, other.Epoch); c != 0 {
		return c
	}
	if c := compareRelease(v.Release, other.Release); c != 0 {
		return c
	}
	if c := compareInt(v.phaseRank(), other.phaseRank()); c != 0 {
		return c
	}
	if v.PreKind != "" {
		if c := compareInt(v.Pre, other.Pre); c != 0 {
			return c
		}
	}
	if c := compareInt(v.postRank(), other.postRank()); c != 0 {
		return c
	}
	if c := compareInt(v.devRank(), other.devRank()); c != 0 {
		return c
	}
	return 0
}

// phaseRank orders dev-only < a < b < rc < final.
func (v Version) phaseRank() int {
	switch v.PreKind {
	case "a":
		return 1
	case "b":
		return 2
	case "rc":
		return 3
	}
	if v.HasDev && !v.HasPost {
		return 0
	}
	return 4
}

func (v Version) postRank() int {
	if !v.HasPost {
		return -1
	}
	return v.Post
}

// devRank sorts a dev release before the same version without one.
func (v Version) devRank() int {
	if !v.HasDev {
		return int(^uint(0) >> 1)
	}
	return v.Dev
}

func compareRelease(a, b []int) int {
	for i := 0; i < max(len(a), len(b)); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if c := compareInt(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Specifier is one version clause such as ">=2.1" or "==1.4.*".
type Specifier struct {
	Operator string `json:"operator"`
	Version  string `json:"version"`
}

// String renders the clause as written in a requirements file.
func (s Specifier) String() string {
	return s.Operator + s.Version
}

// IsExactPin reports whether the clause pins one version ("==1.2.3",
// not "==1.2.*").
func (s Specifier) IsExactPin() bool {
	return (s.Operator == "==" || s.Operator == "===") && !strings.HasSuffix(s.Version, ".*")
}

var operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

func parseSpecifier(clause string) (Specifier, error) {
	clause = strings.TrimSpace(clause)
	for _, operator := range operators {
		if rest, ok := strings.CutPrefix(clause, operator); ok {
			version := strings.TrimSpace(rest)
			if version == "" {
				return Specifier{}, fmt.Errorf("specifier %q has no version", clause)
			}
			specifier := Specifier{Operator: operator, Version: version}
			if operator == "===" {
				return specifier, nil
			}
			check := strings.TrimSuffix(version, ".*")
			if strings.HasSuffix(version, ".*") && operator != "==" && operator != "!=" {
				return Specifier{}, fmt.Errorf("wildcard not allowed with %s in %q", operator, clause)
			}
			if _, err := ParseVersion(check); err != nil {
				return Specifier{}, fmt.Errorf("specifier %q: %w", clause, err)
			}
			if operator == "~=" && !strings.Contains(check, ".") {
				return Specifier{}, fmt.Errorf("specifier %q: ~= needs at least two release segments", clause)
			}
			return specifier, nil
		}
	}
	return Specifier{}, fmt.Errorf("specifier %q has no comparison operator", clause)
}

// Allows reports whether version satisfies the clause. Clauses or
// versions that cannot be parsed are treated as satisfied, since only
// the installer can decide them.
func (s Specifier) Allows(version Version) bool {
	if s.Operator == "===" {
		return strings.EqualFold(s.Version, version.String())
	}

	if prefix, ok := strings.CutSuffix(s.Version, ".*"); ok {
		want, err := ParseVersion(prefix)
		if err != nil {
			return true
		}
		matches := version.Epoch == want.Epoch && releaseHasPrefix(version.Release, want.Release)
		if s.Operator == "!=" {
			return !matches
		}
		return matches
	}

	target, err := ParseVersion(s.Version)
	if err != nil {
		return true
	}
	c := version.Compare(target)
	switch s.Operator {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case "<=":
		return c <= 0
	case ">=":
		return c >= 0
	case "<":
		return c < 0
	case ">":
		return c > 0
	case "~=":
		// ~=X.Y.Z means >=X.Y.Z, ==X.Y.*
		if c < 0 {
			return false
		}
		prefix := target.Release[:len(target.Release)-1]
		return version.Epoch == target.Epoch && releaseHasPrefix(version.Release, prefix)
	}
	return true
}

func releaseHasPrefix(release, prefix []int) bool {
	for i, want := range prefix {
		got := 0
		if i < len(release) {
			got = release[i]
		}
		if got != want {
			return false
		}
	}
	return true
}
