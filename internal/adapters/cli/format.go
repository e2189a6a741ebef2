package cli

import (
	"github.com/fatih/color"
)

const rule = "────────────────────────────────────────────────────────────────"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func okMark() string { return green("✓") }

func serialOrPending(s string) string {
	if s == "" {
		return yellow("(pending)")
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// outcome colours a per-item status word.
func outcome(status string) string {
	switch status {
	case "assigned", "renumbered", "applied":
		return green(status)
	case "proposed", "noop":
		return cyan(status)
	case "skipped", "lock_held":
		return yellow(status)
	default:
		return red(status)
	}
}
