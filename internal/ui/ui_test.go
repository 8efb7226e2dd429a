package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestRender_PlainProfile(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	tests := []struct {
		name   string
		render func(string) string
	}{
		{"accent", RenderAccent},
		{"pass", RenderPass},
		{"warn", RenderWarn},
		{"fail", RenderFail},
		{"muted", RenderMuted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.render("ok")
			if strings.Contains(got, "\x1b[3") {
				t.Errorf("render = %q, want no colour codes", got)
			}
			if !strings.Contains(got, "ok") {
				t.Errorf("render = %q, want text preserved", got)
			}
		})
	}
}

func TestRenderLabel_Pads(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	if got := lipgloss.Width(RenderLabel("Checkpoint")); got != 14 {
		t.Errorf("label width = %d, want 14", got)
	}
}

func TestColorEnabled_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ColorEnabled() {
		t.Error("ColorEnabled() = true with NO_COLOR set")
	}
}
