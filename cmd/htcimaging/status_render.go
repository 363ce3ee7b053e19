package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"htcimaging/internal/history"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const ansiReset = "\x1b[0m"

// kindStyles maps each status kind to its tag and terminal color.
var kindStyles = map[statusKind]struct{ tag, color string }{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := kindStyles[kind]
	text := "[" + style.tag + "]"
	if message != "" {
		text += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text)
	if colorize && style.color != "" {
		return style.color + line + ansiReset
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	lines := []string{heading, strings.Repeat("-", len(heading))}
	if colorize {
		blue := kindStyles[statusInfo].color
		for i := range lines {
			lines[i] = blue + lines[i] + ansiReset
		}
	}
	return lines
}

// jobStateKind grades a scheduler JobStatus for the status report. Held and
// removed jobs need operator action, queued or running jobs are in flight.
func jobStateKind(code int) statusKind {
	switch code {
	case 4:
		return statusOK
	case 5:
		return statusError
	case 3, 7:
		return statusWarn
	default:
		return statusInfo
	}
}

// batchLines reports an imported cluster: how many jobs finished cleanly and
// one line per scheduler state among jobs that never completed.
func batchLines(clusterID int64, summary history.Summary, colorize bool) []string {
	label := fmt.Sprintf("Cluster %d", clusterID)
	if summary.Total == 0 {
		return []string{renderStatusLine(label, statusInfo, "no job records", colorize)}
	}

	kind := statusOK
	switch {
	case summary.Failed == summary.Total:
		kind = statusError
	case summary.Failed > 0:
		kind = statusWarn
	}
	msg := fmt.Sprintf("%d of %d job(s) succeeded (%.1f%%)", summary.Total-summary.Failed, summary.Total, summary.SuccessRate)
	lines := []string{renderStatusLine(label, kind, msg, colorize)}
	for _, state := range summary.Incomplete {
		lines = append(lines, renderStatusLine(state.Name, jobStateKind(state.Status), fmt.Sprintf("%d job(s) without completion", state.Count), colorize))
	}
	return lines
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
