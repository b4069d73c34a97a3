package tui

import (
	"fmt"
	"strings"
	"time"

	"maxctl/internal/app"

	"github.com/charmbracelet/lipgloss"
)

// renderAuditModal draws the audit report viewer. A fetch failure renders an
// inline error state in the same box rather than bubbling up.
func renderAuditModal(report *app.AuditReport, fetchErr string, width int) string {
	if width < 40 {
		width = 40
	}
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorAccent))

	var b strings.Builder
	b.WriteString(title.Render("Rapport d'audit"))
	b.WriteString("\n\n")

	switch {
	case fetchErr != "":
		b.WriteString(errorStyle.Render("Impossible de charger le rapport : " + fetchErr))
	case report == nil:
		b.WriteString(mutedStyle.Render("Chargement…"))
	default:
		c := report.Consent
		b.WriteString(contentStyle.Render("Opération : " + c.Operation.Description))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Consentement : " + c.ConsentID))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Accordé : " + c.CreatedAt.Format(time.RFC3339)))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render("Exécuté : " + c.UsedAt.Format(time.RFC3339)))
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("Durée : %d ms", c.DurationMS)))
		if len(report.Result) > 0 {
			b.WriteString("\n\n")
			b.WriteString(contentStyle.Render("Résultat : " + string(report.Result)))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("esc fermer"))
	return cardStyle.Width(width).Render(b.String())
}
