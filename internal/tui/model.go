package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"maxctl/internal/app"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
)

// Model is the interactive chat surface: message history with consent cards,
// input area, activity panel and audit modal. All conversation state lives in
// the controller; the model only holds view state.
type Model struct {
	ctrl   *app.Controller
	poller *app.ActivityPoller

	input     textarea.Model
	streaming bool

	width  int
	height int

	spin         int
	errText      string
	showActivity bool

	showAudit   bool
	auditReport *app.AuditReport
	auditErr    string

	keys keyMap
}

type keyMap struct {
	Quit     key.Binding
	Enter    key.Binding
	Approve  key.Binding
	Audit    key.Binding
	Activity key.Binding
	Reset    key.Binding
	Close    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("ctrl+c")),
		Enter:    key.NewBinding(key.WithKeys("enter")),
		Approve:  key.NewBinding(key.WithKeys("ctrl+y")),
		Audit:    key.NewBinding(key.WithKeys("ctrl+o")),
		Activity: key.NewBinding(key.WithKeys("ctrl+l")),
		Reset:    key.NewBinding(key.WithKeys("ctrl+n")),
		Close:    key.NewBinding(key.WithKeys("esc")),
	}
}

func New(ctrl *app.Controller, streaming bool) *Model {
	ta := textarea.New()
	ta.Placeholder = "Votre message… (/mode, /upload, /reset, /stream)"
	ta.Focus()
	ta.CharLimit = 8000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.Prompt = "▍ "

	return &Model{
		ctrl:      ctrl,
		poller:    app.NewActivityPoller(ctrl.Client(), ctrl.SessionID, ctrl.Logger()),
		input:     ta,
		streaming: streaming,
		width:     80,
		height:    24,
		keys:      defaultKeys(),
	}
}

func (m *Model) Init() tea.Cmd {
	m.poller.Start()
	return tea.Batch(textarea.Blink, tickCmd())
}

// Messages

type sendDoneMsg struct{ err error }
type uploadDoneMsg struct{ err error }
type approveDoneMsg struct {
	consentID string
	err       error
}
type auditMsg struct {
	report *app.AuditReport
	err    error
}
type tickMsg struct{}
type spinMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return tickMsg{} })
}

func spinCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return spinMsg{} })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 6)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.poller.Stop()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Close):
			if m.showAudit {
				m.showAudit = false
				m.auditReport = nil
				m.auditErr = ""
				return m, nil
			}
			m.errText = ""
			return m, nil

		case key.Matches(msg, m.keys.Activity):
			m.showActivity = !m.showActivity
			return m, nil

		case key.Matches(msg, m.keys.Reset):
			if m.ctrl.Busy() {
				return m, nil
			}
			m.ctrl.ResetConversation()
			m.errText = ""
			return m, nil

		case key.Matches(msg, m.keys.Approve):
			id, ok := m.pendingConsentID()
			if !ok {
				return m, nil
			}
			return m, tea.Batch(m.approveCmd(id), spinCmd())

		case key.Matches(msg, m.keys.Audit):
			id, ok := m.auditableConsentID()
			if !ok {
				return m, nil
			}
			m.showAudit = true
			m.auditReport = nil
			m.auditErr = ""
			return m, m.auditCmd(id)

		case key.Matches(msg, m.keys.Enter):
			return m.submit()
		}

	case sendDoneMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
		}
		return m, nil

	case uploadDoneMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
		}
		return m, nil

	case approveDoneMsg:
		// The consent entry already mirrors the outcome; errors show inline
		// on the card, so nothing extra to surface here.
		return m, nil

	case auditMsg:
		if msg.err != nil {
			m.auditErr = msg.err.Error()
		} else {
			m.auditReport = msg.report
		}
		return m, nil

	case tickMsg:
		return m, tickCmd()

	case spinMsg:
		if m.ctrl.Busy() {
			m.spin = (m.spin + 1) % 10
			return m, spinCmd()
		}
		return m, nil
	}

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit handles enter: slash commands run locally, anything else is sent.
// Sends are refused while a delivery is in flight (busy-flag guard).
func (m *Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}

	if strings.HasPrefix(text, "/") {
		m.input.Reset()
		return m.runCommand(text)
	}

	if m.ctrl.Busy() {
		return m, nil
	}
	m.input.Reset()
	m.errText = ""
	return m, tea.Batch(m.sendCmd(text), spinCmd())
}

func (m *Model) runCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/mode":
		if len(fields) < 2 {
			m.errText = fmt.Sprintf("mode actuel : %s", m.ctrl.Mode())
			return m, nil
		}
		if err := m.ctrl.ChangeMode(fields[1]); err != nil {
			m.errText = err.Error()
		}
		return m, nil
	case "/reset":
		if !m.ctrl.Busy() {
			m.ctrl.ResetConversation()
		}
		return m, nil
	case "/stream":
		if len(fields) == 2 && fields[1] == "off" {
			m.streaming = false
		} else {
			m.streaming = true
		}
		return m, nil
	case "/upload":
		if len(fields) < 2 {
			m.errText = "usage : /upload <fichier>"
			return m, nil
		}
		if m.ctrl.Busy() {
			return m, nil
		}
		return m, tea.Batch(m.uploadCmd(fields[1]), spinCmd())
	default:
		m.errText = "commande inconnue : " + fields[0]
		return m, nil
	}
}

// Commands. No user-initiated cancellation exists (no "stop generating"
// control), so these run on a background context.

func (m *Model) sendCmd(text string) tea.Cmd {
	streaming := m.streaming
	return func() tea.Msg {
		return sendDoneMsg{err: m.ctrl.SendMessage(context.Background(), text, streaming)}
	}
}

func (m *Model) uploadCmd(path string) tea.Cmd {
	return func() tea.Msg {
		return uploadDoneMsg{err: m.ctrl.UploadFile(context.Background(), path)}
	}
}

func (m *Model) approveCmd(id string) tea.Cmd {
	return func() tea.Msg {
		return approveDoneMsg{consentID: id, err: m.ctrl.Gate().Approve(context.Background(), id)}
	}
}

func (m *Model) auditCmd(id string) tea.Cmd {
	return func() tea.Msg {
		report, err := m.ctrl.Gate().AuditReport(context.Background(), id)
		return auditMsg{report: report, err: err}
	}
}

// pendingConsentID returns the newest consent still awaiting approval.
func (m *Model) pendingConsentID() (string, bool) {
	msgs := m.ctrl.Log().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == app.KindConsent && msgs[i].Consent != nil &&
			msgs[i].Consent.Status == app.ConsentPending {
			return msgs[i].Consent.ConsentID, true
		}
	}
	return "", false
}

func (m *Model) auditableConsentID() (string, bool) {
	msgs := m.ctrl.Log().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == app.KindConsent && msgs[i].Consent != nil &&
			msgs[i].Consent.Status == app.ConsentSuccess && msgs[i].Consent.AuditAvailable {
			return msgs[i].Consent.ConsentID, true
		}
	}
	return "", false
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderMessages())
	b.WriteString("\n")

	if m.showAudit {
		b.WriteString(renderAuditModal(m.auditReport, m.auditErr, m.width-8))
		b.WriteString("\n")
	}

	if m.errText != "" {
		b.WriteString(errorStyle.Render("⚠ " + m.errText))
		b.WriteString("\n")
	}

	if m.ctrl.Busy() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		label := "Réflexion…"
		if m.ctrl.Streaming() {
			label = "Diffusion…"
		}
		b.WriteString(mutedStyle.Render(frames[m.spin%len(frames)] + " " + label))
		b.WriteString("\n")
	}

	b.WriteString(inputStyle.Width(m.width - 4).Render(m.input.View()))
	b.WriteString("\n")

	if m.showActivity {
		b.WriteString(renderActivityPanel(m.poller.Activities(), m.width-4, 8))
		b.WriteString("\n")
	}

	b.WriteString(footerStyle.Render("enter envoyer • ctrl+y approuver • ctrl+o audit • ctrl+l activité • ctrl+n nouvelle session • ctrl+c quitter"))
	return b.String()
}

func (m *Model) renderHeader() string {
	session := m.ctrl.SessionID()
	if session == "" {
		session = "nouvelle session"
	} else if len(session) > 8 {
		session = session[:8]
	}
	delivery := "direct"
	if m.streaming {
		delivery = "flux"
	}
	header := fmt.Sprintf("M.A.X. • mode %s • %s • %s • ~%d tokens",
		m.ctrl.Mode(), session, delivery, m.ctrl.Tokens())
	return headerStyle.Width(m.width - 2).Render(header)
}

func (m *Model) renderMessages() string {
	msgs := m.ctrl.Log().Messages()
	if len(msgs) == 0 {
		return mutedStyle.Render("  Bonjour ! Posez une question sur vos leads ou vos campagnes.")
	}

	// Only render what fits; the log itself is unbounded.
	maxMessages := 30
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Kind {
		case app.KindConsent:
			b.WriteString(renderConsentCard(*msg.Consent, m.width-6))
			b.WriteString("\n")
		default:
			var label string
			switch msg.Role {
			case app.RoleUser:
				label = userLabelStyle.Render("Vous " + msg.CreatedAt.Format("15:04:05"))
			case app.RoleAssistant:
				label = aiLabelStyle.Render("M.A.X. " + msg.CreatedAt.Format("15:04:05"))
			default:
				label = sysLabelStyle.Render("Système")
			}
			b.WriteString(label)
			b.WriteString("\n")
			b.WriteString(contentStyle.Width(m.width - 6).Render(msg.Content))
			b.WriteString("\n")
		}
	}
	return b.String()
}
