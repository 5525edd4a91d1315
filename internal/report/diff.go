// Package report renders scan results and scan diffs as markdown.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hakim/scanwatch/internal/models"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// RenderDiff renders the change report for two consecutive scans of target.
func RenderDiff(target string, d *models.ScanDiff) string {
	var b strings.Builder

	b.WriteString("# Scan Diff Report\n\n")
	b.WriteString(fmt.Sprintf("**Target:** %s\n", target))
	if d.NewerTimestamp != nil && d.OlderTimestamp != nil {
		b.WriteString(fmt.Sprintf("**Compared:** %s (%s) against %s (%s)\n",
			d.NewerTimestamp.UTC().Format(timeLayout), shortID(d.NewerScanID),
			d.OlderTimestamp.UTC().Format(timeLayout), shortID(d.OlderScanID)))
	}
	b.WriteString(fmt.Sprintf("**Date:** %s\n\n", time.Now().UTC().Format(timeLayout)))

	writeHostTable(&b, d)

	if !d.HasChanges() {
		b.WriteString("No changes detected.\n")
		return b.String()
	}

	writeSummaryTable(&b, d)
	writeList(&b, "Newly Opened Ports", "+", d.NewlyOpened)
	writeList(&b, "Newly Closed Ports", "-", d.NewlyClosed)
	writeList(&b, "Port State Changes", "", d.ChangedState)
	writeList(&b, "Service Changes", "", d.ChangedServices)
	writeScriptChanges(&b, d.ScriptChanges)

	return b.String()
}

// WriteDiffReport renders the change report and writes it to outputPath,
// creating the parent directory if needed.
func WriteDiffReport(target string, d *models.ScanDiff, outputPath string) error {
	return writeFile(outputPath, RenderDiff(target, d))
}

// writeHostTable always shows the host fields, changed or not.
func writeHostTable(b *strings.Builder, d *models.ScanDiff) {
	b.WriteString("## Host\n\n")
	b.WriteString("| Field | Previous | Current | Changed |\n")
	b.WriteString("|-------|----------|---------|---------|\n")
	b.WriteString(fmt.Sprintf("| IP | %s | %s | %s |\n", cell(d.OldIP), cell(d.NewIP), yesNo(d.IPChange)))
	b.WriteString(fmt.Sprintf("| Latency | %s | %s | %s |\n", cell(d.OldLatency), cell(d.NewLatency), yesNo(d.LatencyChange)))
	b.WriteString(fmt.Sprintf("| OS | %s | %s | %s |\n", cell(d.OldOS), cell(d.NewOS), yesNo(d.OSChange)))
	b.WriteString("\n")
}

func writeSummaryTable(b *strings.Builder, d *models.ScanDiff) {
	added, removed, changed := 0, 0, 0
	for _, c := range d.ScriptChanges {
		switch c {
		case models.ScriptNew:
			added++
		case models.ScriptRemoved:
			removed++
		case models.ScriptChanged:
			changed++
		}
	}

	b.WriteString("## Summary\n\n")
	b.WriteString("| Category | Change |\n")
	b.WriteString("|----------|--------|\n")
	b.WriteString(fmt.Sprintf("| Ports | %s |\n", formatChange(len(d.NewlyOpened), len(d.NewlyClosed), len(d.ChangedState)+len(d.ChangedServices))))
	b.WriteString(fmt.Sprintf("| Scripts | %s |\n", formatChange(added, removed, changed)))
	b.WriteString("\n")
}

// writeList renders one bulleted section. Skipped when empty.
func writeList(b *strings.Builder, title, sign string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("## %s (%s%d)\n\n", title, sign, len(items)))
	for _, item := range items {
		b.WriteString(fmt.Sprintf("- %s\n", item))
	}
	b.WriteString("\n")
}

// writeScriptChanges renders script changes sorted by name. Skipped when empty.
func writeScriptChanges(b *strings.Builder, changes map[string]models.ScriptChange) {
	if len(changes) == 0 {
		return
	}
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString(fmt.Sprintf("## Script Changes (%d)\n\n", len(names)))
	b.WriteString("| Script | Change |\n")
	b.WriteString("|--------|--------|\n")
	for _, name := range names {
		b.WriteString(fmt.Sprintf("| %s | %s |\n", name, changes[name]))
	}
	b.WriteString("\n")
}

// formatChange returns a string such as "+3 / -1 / ~2", or "none".
func formatChange(added, removed, changed int) string {
	if added == 0 && removed == 0 && changed == 0 {
		return "none"
	}
	parts := make([]string, 0, 3)
	if added > 0 {
		parts = append(parts, fmt.Sprintf("+%d", added))
	}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("-%d", removed))
	}
	if changed > 0 {
		parts = append(parts, fmt.Sprintf("~%d", changed))
	}
	return strings.Join(parts, " / ")
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// shortID returns the first 8 characters of a UUID for compact display.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// writeFile writes content to path, wrapping any OS error with context.
func writeFile(outputPath, content string) error {
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating report directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing report to %s: %w", outputPath, err)
	}
	return nil
}
