// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Conflict is a pair of requirements on one project that no single
// version satisfies.
type Conflict struct {
	Key    string
	First  Requirement
	Second Requirement
	Reason string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: %s (%s) conflicts with %s (%s): %s",
		c.Key, c.First, c.First.Location(), c.Second, c.Second.Location(), c.Reason)
}

// ErrConflict is wrapped by the error Check returns.
var ErrConflict = errors.New("conflicting requirements")

// Conflicts returns every locally detectable conflict, in file order.
func (m *Manifest) Conflicts() []Conflict {
	type group struct {
		key, marker string
	}
	groups := make(map[group][]Requirement)
	var order []group
	for _, requirement := range m.Requirements {
		g := group{key: requirement.Key, marker: normalizeMarker(requirement.Marker)}
		if _, seen := groups[g]; !seen {
			order = append(order, g)
		}
		groups[g] = append(groups[g], requirement)
	}

	var conflicts []Conflict
	for _, g := range order {
		conflicts = append(conflicts, groupConflicts(g.key, groups[g])...)
	}
	return conflicts
}

func groupConflicts(key string, requirements []Requirement) []Conflict {
	var conflicts []Conflict
	for i, first := range requirements {
		for _, second := range requirements[i+1:] {
			if reason := conflictReason(first, second); reason != "" {
				conflicts = append(conflicts, Conflict{Key: key, First: first, Second: second, Reason: reason})
			}
		}
	}
	// A single requirement can contradict itself ("==1.0,!=1.0").
	for _, requirement := range requirements {
		if reason := conflictReason(requirement, requirement); reason != "" {
			conflicts = append(conflicts, Conflict{Key: key, First: requirement, Second: requirement, Reason: reason})
		}
	}
	return conflicts
}

// conflictReason explains why a and b cannot both hold, or returns "".
func conflictReason(a, b Requirement) string {
	if a.URL != "" && b.URL != "" && a.URL != b.URL {
		return "different direct URLs"
	}

	pinsA, pinsB := exactPins(a), exactPins(b)
	for _, pinA := range pinsA {
		for _, pinB := range pinsB {
			versionA, errA := ParseVersion(pinA.Version)
			versionB, errB := ParseVersion(pinB.Version)
			if errA != nil || errB != nil {
				if !strings.EqualFold(pinA.Version, pinB.Version) {
					return fmt.Sprintf("pinned to both %s and %s", pinA.Version, pinB.Version)
				}
				continue
			}
			if versionA.Compare(versionB) != 0 {
				return fmt.Sprintf("pinned to both %s and %s", pinA.Version, pinB.Version)
			}
		}
	}

	if reason := pinExcluded(pinsA, b); reason != "" {
		return reason
	}
	return pinExcluded(pinsB, a)
}

func exactPins(r Requirement) []Specifier {
	var pins []Specifier
	for _, specifier := range r.Specifiers {
		if specifier.IsExactPin() {
			pins = append(pins, specifier)
		}
	}
	return pins
}

// pinExcluded reports a pin that one of other's clauses rejects.
func pinExcluded(pins []Specifier, other Requirement) string {
	for _, pin := range pins {
		if pin.Operator == "===" {
			continue
		}
		version, err := ParseVersion(pin.Version)
		if err != nil {
			continue
		}
		for _, specifier := range other.Specifiers {
			if specifier.IsExactPin() {
				continue
			}
			if !specifier.Allows(version) {
				return fmt.Sprintf("pin %s is excluded by %s", pin, specifier)
			}
		}
	}
	return ""
}

// normalizeMarker makes trivially different spellings of one marker
// compare equal.
func normalizeMarker(marker string) string {
	marker = strings.ReplaceAll(marker, "\"", "'")
	return strings.Join(strings.Fields(marker), "")
}

// Check returns an error wrapping ErrConflict that lists every
// conflict, or nil.
func (m *Manifest) Check() error {
	conflicts := m.Conflicts()
	if len(conflicts) == 0 {
		return nil
	}
	lines := make([]string, 0, len(conflicts))
	for _, conflict := range conflicts {
		lines = append(lines, conflict.String())
	}
	slices.Sort(lines)
	lines = slices.Compact(lines)
	return fmt.Errorf("%w in %s:\n  %s", ErrConflict, m.Path, strings.Join(lines, "\n  "))
}
