// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bufio"
	"strings"
)

// ParseFreeze parses "pip freeze" output into normalized project name
// to version. Editable installs ("-e ..."), direct references
// ("name @ url"), and unrecognized lines are recorded with an empty
// version when a name can be found and skipped otherwise.
func ParseFreeze(output string) map[string]string {
	installed := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if name, version, ok := strings.Cut(line, "=="); ok {
			installed[NormalizeName(strings.TrimSpace(name))] = strings.TrimSpace(version)
			continue
		}
		if name, _, ok := strings.Cut(line, " @ "); ok {
			installed[NormalizeName(strings.TrimSpace(name))] = ""
		}
	}
	return installed
}

// Missing returns the installable requirements whose project is absent
// from installed. Requirements with environment markers are skipped:
// they may legitimately not apply on this host.
func (m *Manifest) Missing(installed map[string]string) []Requirement {
	var missing []Requirement
	seen := make(map[string]bool)
	for _, requirement := range m.Requirements {
		if requirement.Constraint || requirement.Marker != "" || seen[requirement.Key] {
			continue
		}
		seen[requirement.Key] = true
		if _, ok := installed[requirement.Key]; !ok {
			missing = append(missing, requirement)
		}
	}
	return missing
}
