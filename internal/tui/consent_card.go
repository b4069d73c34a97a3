package tui

import (
	"fmt"
	"strings"

	"maxctl/internal/app"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
)

// renderConsentCard draws one consent entry. The approve hint is only shown
// while the consent is pending; while executing the control is absent, which
// is what keeps approve one-shot at the UI level.
func renderConsentCard(cr app.ConsentRequest, width int) string {
	if width < 30 {
		width = 30
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent2))
	desc := truncate.StringWithTail(cr.Operation.Description, uint(width-4), "…")

	var b strings.Builder
	b.WriteString(title.Render("Action sensible - accord requis"))
	b.WriteString("\n")
	b.WriteString(contentStyle.Render(desc))
	b.WriteString("\n")

	switch cr.Status {
	case app.ConsentPending:
		b.WriteString(warnStyle.Render(fmt.Sprintf("Expire dans %s", formatCountdown(cr.Remaining))))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("ctrl+y approuver"))
	case app.ConsentExecuting:
		b.WriteString(mutedStyle.Render("Exécution en cours…"))
	case app.ConsentSuccess:
		b.WriteString(successStyle.Render("✓ Opération exécutée"))
		if cr.AuditAvailable {
			b.WriteString("\n")
			b.WriteString(mutedStyle.Render("ctrl+o rapport d'audit"))
		}
	case app.ConsentError:
		msg := cr.Error
		if msg == "" {
			msg = "échec de l'exécution"
		}
		b.WriteString(errorStyle.Render("✗ " + truncate.StringWithTail(msg, uint(width-6), "…")))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Reformulez votre demande pour réessayer."))
	case app.ConsentExpired:
		b.WriteString(mutedStyle.Render("Délai dépassé - demandez à nouveau l'opération."))
	}

	return cardStyle.Width(width).Render(b.String())
}

func formatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
