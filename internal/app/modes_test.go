package app

import "testing"

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"auto", ModeAuto, true},
		{"AUTO", ModeAuto, true},
		{" assist ", ModeAssist, true},
		{"assisté", ModeAssist, true},
		{"assiste", ModeAssist, true},
		{"conseil", ModeConseil, true},
		{"bogus", Mode(""), false},
		{"", Mode(""), false},
	}
	for _, tt := range tests {
		got, ok := ParseMode(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseMode(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestModeWire(t *testing.T) {
	tests := []struct {
		mode Mode
		want string
	}{
		{ModeAuto, "auto"},
		{ModeAssist, "assisté"},
		{ModeConseil, "conseil"},
	}
	for _, tt := range tests {
		if got := tt.mode.Wire(); got != tt.want {
			t.Fatalf("Wire(%q) = %q, want %q", tt.mode, got, tt.want)
		}
	}
}
