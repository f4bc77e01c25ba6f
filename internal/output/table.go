// Package output provides terminal output utilities for appregistry.
//
// This package includes:
//   - Table rendering for registry records and change records
//   - A spinner for reconciliation passes
//
// Tables use plain column padding and ANSI colour codes when stdout is a
// terminal. The spinner is safe to drive from multiple goroutines.
package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/appregistry/internal/registry"
	"github.com/blackwell-systems/appregistry/internal/store"
)

// ANSI color codes for change summaries.
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderRegistryTable renders registry views in the order given. Callers
// sort beforehand (by id, or with registry.SortByLaunches).
func RenderRegistryTable(views []registry.View) string {
	if len(views) == 0 {
		return "No applications registered.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-6s %-44s %-24s %-10s %s\n",
		"ID", "Identity", "Title", "Icon", "Launches"))
	sb.WriteString(strings.Repeat("─", 96))
	sb.WriteString("\n")

	for _, v := range views {
		sb.WriteString(fmt.Sprintf("%-6d %-44s %-24s %-10s %s\n",
			v.ID,
			truncate(v.Identity.String(), 44),
			truncate(v.Title, 24),
			formatIcon(v.Icon, v.IconFallback),
			humanize.Comma(v.LaunchCount)))
	}

	sb.WriteString(fmt.Sprintf("\n%s registered\n", pluralize(len(views), "application", "applications")))
	return sb.String()
}

// RenderChangeSummary renders a one-line summary of a change record, e.g.
// "2 added, 1 updated, 1 removed".
func RenderChangeSummary(change *store.ChangeRecord) string {
	if change.Empty() {
		return colorize(colorGray, "No changes.") + "\n"
	}

	var parts []string
	if n := len(change.AddedIDs); n > 0 {
		parts = append(parts, colorize(colorGreen, fmt.Sprintf("%d added", n)))
	}
	if n := len(change.UpdatedIDs); n > 0 {
		parts = append(parts, colorize(colorYellow, fmt.Sprintf("%d updated", n)))
	}
	if n := len(change.RemovedIdentities); n > 0 {
		parts = append(parts, colorize(colorRed, fmt.Sprintf("%d removed", n)))
	}
	if change.RemovedPackage != "" {
		parts = append(parts, colorize(colorRed, "package "+change.RemovedPackage+" removed"))
	}
	return strings.Join(parts, ", ") + "\n"
}

// RenderChangeDetail lists every identity a change record removed, one per
// line, after the summary.
func RenderChangeDetail(change *store.ChangeRecord) string {
	var sb strings.Builder
	sb.WriteString(RenderChangeSummary(change))
	for _, key := range change.RemovedIdentities {
		sb.WriteString("  - " + key.String() + "\n")
	}
	return sb.String()
}

// formatIcon shows the stored icon size, or marks the entry as using the
// fallback icon.
func formatIcon(icon []byte, fallback bool) string {
	if fallback || len(icon) == 0 {
		return "fallback"
	}
	return humanize.Bytes(uint64(len(icon)))
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
