// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/bundlepipe/cmd/bundlepipe/cli"
	"github.com/bureau-foundation/bundlepipe/lib/packaging"
)

// summaryStyles renders the human-readable run summary. Colors are
// dropped when the output is not a terminal.
type summaryStyles struct {
	ok      lipgloss.Style
	failed  lipgloss.Style
	skipped lipgloss.Style
	stage   lipgloss.Style
	faint   lipgloss.Style
	heading lipgloss.Style
}

func newSummaryStyles(w io.Writer) summaryStyles {
	if !cli.IsTerminal(w) {
		plain := lipgloss.NewStyle()
		return summaryStyles{ok: plain, failed: plain, skipped: plain, stage: plain, faint: plain, heading: plain}
	}
	return summaryStyles{
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		skipped: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		stage:   lipgloss.NewStyle().Bold(true),
		faint:   lipgloss.NewStyle().Faint(true),
		heading: lipgloss.NewStyle().Bold(true).Underline(true),
	}
}

func (s summaryStyles) status(status packaging.Status) string {
	label := fmt.Sprintf("%-7s", status)
	switch status {
	case packaging.StatusOK:
		return s.ok.Render(label)
	case packaging.StatusFailed:
		return s.failed.Render(label)
	default:
		return s.skipped.Render(label)
	}
}

// stageWidth is the width of the widest stage name.
func stageWidth() int {
	width := 0
	for _, stage := range packaging.Stages {
		width = max(width, lipgloss.Width(string(stage)))
	}
	return width
}

// writeSummary prints one line per stage followed by the outcome.
func writeSummary(w io.Writer, report *packaging.Report) {
	styles := newSummaryStyles(w)
	width := stageWidth()

	fmt.Fprintln(w, styles.heading.Render("run "+report.RunID))
	for _, outcome := range report.Stages {
		name := string(outcome.Stage)
		padding := strings.Repeat(" ", width-lipgloss.Width(name))
		line := fmt.Sprintf("  %s%s  %s", styles.stage.Render(name), padding, styles.status(outcome.Status))
		if outcome.Status != packaging.StatusSkipped {
			line += "  " + styles.faint.Render(formatDuration(outcome.Duration))
		}
		fmt.Fprintln(w, line)
	}

	if report.Succeeded() {
		artifact := report.Artifact
		fmt.Fprintf(w, "\npublished %s  %s  %s  %s\n",
			styles.stage.Render(artifact.Slot), artifact.Ref, formatSize(artifact.Size),
			styles.faint.Render(formatDuration(report.Duration)))
		if artifact.Replaced != "" {
			fmt.Fprintf(w, "%s\n", styles.faint.Render("replaced "+artifact.Replaced))
		}
		return
	}

	last := string(report.LastCompleted)
	if last == "" {
		last = "none"
	}
	fmt.Fprintf(w, "\n%s %s (last completed: %s)\n",
		styles.failed.Render("failed at"), report.FailedStage, last)
	fmt.Fprintf(w, "  %s\n", report.Error)
	if report.WorkspaceKept {
		fmt.Fprintf(w, "  %s\n", styles.faint.Render("workspace kept at "+report.Workspace))
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return d.Round(time.Second).String()
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Millisecond).String()
	}
}
