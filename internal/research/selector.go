package research

import (
	"fmt"
	"strings"

	"github.com/metalagman/ttdr/internal/model"
)

// Window returns the last min(limit, len(history)) findings in insertion
// order. A non-positive limit yields nothing.
func Window(history []model.Finding, limit int) []model.Finding {
	if limit <= 0 || len(history) == 0 {
		return nil
	}
	if limit > len(history) {
		limit = len(history)
	}
	return history[len(history)-limit:]
}

// SelectContext renders the window as compact Qn:/An: blocks.
func SelectContext(history []model.Finding, limit int) string {
	window := Window(history, limit)
	if len(window) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range window {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s", i+1, strings.TrimSpace(f.Question), i+1, strings.TrimSpace(f.Answer))
	}
	return b.String()
}
