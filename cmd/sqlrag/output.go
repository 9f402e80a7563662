package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/sqlrag/internal/pipeline"
	"github.com/kalambet/sqlrag/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// writeOutcome renders an answer for the terminal: the answer, then the
// query that produced it and how it was obtained.
func writeOutcome(w io.Writer, out pipeline.Outcome) {
	fmt.Fprintln(w, out.Answer)
	fmt.Fprintln(w)

	statusColor := colorGreen
	switch out.Status {
	case storage.RunFailed:
		statusColor = colorRed
	case storage.RunRejected:
		statusColor = colorYellow
	}

	source := "generated"
	if out.FromCache && out.CacheDistance != nil {
		source = fmt.Sprintf("from history, distance %.3f", *out.CacheDistance)
	} else if out.FromCache {
		source = "from history"
	} else if len(out.Attempts) > 1 {
		source = "corrected after one failed attempt"
	}

	fmt.Fprintf(w, "%s %s (%s)\n", colorize(colorBold, "Status:"), colorize(statusColor, out.Status), source)
	if out.Query != "" {
		fmt.Fprintf(w, "%s\n%s\n", colorize(colorBold, "Query:"), colorize(colorCyan, indent(out.Query, "  ")))
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
