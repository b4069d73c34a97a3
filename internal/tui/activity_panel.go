package tui

import (
	"strings"

	"maxctl/internal/app"

	"github.com/muesli/reflow/truncate"
)

// renderActivityPanel draws the polled activity feed, newest line last. The
// feed is refreshed by the 2s poller while a session exists.
func renderActivityPanel(acts []app.Activity, width, maxLines int) string {
	if width < 24 {
		width = 24
	}
	var b strings.Builder
	b.WriteString(mutedStyle.Bold(true).Render("Activité"))
	b.WriteString("\n")

	if len(acts) == 0 {
		b.WriteString(mutedStyle.Render("(aucune activité)"))
	} else {
		start := 0
		if maxLines > 0 && len(acts) > maxLines {
			start = len(acts) - maxLines
		}
		for i, a := range acts[start:] {
			if i > 0 {
				b.WriteString("\n")
			}
			line := a.TS.Format("15:04:05") + " " + a.Icon + " " + a.Message
			b.WriteString(contentStyle.Render(truncate.StringWithTail(line, uint(width-2), "…")))
		}
	}
	return panelStyle.Width(width).Render(b.String())
}
