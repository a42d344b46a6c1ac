package ui

import (
	"fmt"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorPass   = 114 // green
	colorWarn   = 179 // amber
	colorFail   = 203 // red
	colorMuted  = 245 // medium gray
	colorCmd    = 250 // light gray
)

var useColor = true

// SetColor enables or disables color output globally.
func SetColor(on bool) {
	useColor = on
}

func render(color int, s string) string {
	if !useColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderPass returns s in green.
func RenderPass(s string) string { return render(colorPass, s) }

// RenderWarn returns s in amber.
func RenderWarn(s string) string { return render(colorWarn, s) }

// RenderFail returns s in red.
func RenderFail(s string) string { return render(colorFail, s) }

// RenderClass colors a classification: plain exports accent, PII amber and
// blocked muted.
func RenderClass(c model.Classification) string {
	switch c {
	case model.ClassExportPlain:
		return RenderAccent(c.String())
	case model.ClassExportPII:
		return RenderWarn(c.String())
	default:
		return RenderMuted(c.String())
	}
}
