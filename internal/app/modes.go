package app

import "strings"

// Mode selects how much autonomy the assistant has over CRM actions. It is
// advisory metadata: held client-side and re-sent with every request, never
// sticky on the server.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeAssist  Mode = "assist"
	ModeConseil Mode = "conseil"
)

func ParseMode(value string) (Mode, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case string(ModeAuto):
		return ModeAuto, true
	case string(ModeAssist), "assiste", "assisté":
		return ModeAssist, true
	case string(ModeConseil):
		return ModeConseil, true
	default:
		return Mode(""), false
	}
}

// Wire maps the internal mode to the vocabulary the backend expects.
func (m Mode) Wire() string {
	switch m {
	case ModeAssist:
		return "assisté"
	case ModeConseil:
		return "conseil"
	default:
		return "auto"
	}
}
