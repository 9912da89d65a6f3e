// Package strings holds text helpers for terminal output.
package strings

import (
	"strings"
)

// CellMaxLen bounds free-text columns, such as API key descriptions, in
// table output.
const CellMaxLen = 48

// minMaxLen leaves room for one rune plus the ellipsis.
const minMaxLen = 4

// Cell collapses s to a single line and shortens it to at most maxLen runes,
// ending with "..." when cut. Structured formats (JSON, YAML) keep the raw
// value; only rendered cells go through Cell.
func Cell(s string, maxLen int) string {
	if maxLen < minMaxLen {
		maxLen = minMaxLen
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
