package world

import (
	"time"

	"github.com/fatih/color"
)

// diagnosticStyle color-styles client-generated lines so they read as
// distinct from server content (§7 propagation policy).
var diagnosticStyle = color.New(color.FgYellow, color.Italic)

// Diagnostic builds a client-generated OutputLine carrying a
// color-styled notice, for errors and lifecycle notes the core inserts
// into scrollback directly (connection failures, reload outcomes, a
// disabled log sink).
func Diagnostic(text string, now time.Time) OutputLine {
	return OutputLine{
		Text:       diagnosticStyle.Sprint("* " + text),
		Timestamp:  now,
		FromServer: false,
	}
}

// AppendDiagnostic appends a diagnostic line directly to Scrollback,
// bypassing the pause/pending routing in Append: client-generated
// notices are never withheld by more-mode.
func (w *World) AppendDiagnostic(text string, now time.Time) {
	w.Scrollback = append(w.Scrollback, Diagnostic(text, now))
}
