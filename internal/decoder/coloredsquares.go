package decoder

import "strings"

// coloredSquareANSI maps the nine colored-square/box emoji this client
// normalizes (§4.3.4) to an ANSI true-color block glyph, so terminal
// renderers that paint emoji in mono still show the intended color.
var coloredSquareANSI = map[rune]string{
	'\U0001F7E5': "\x1b[38;2;231;76;60m█\x1b[0m",   // red square
	'\U0001F7E7': "\x1b[38;2;230;126;34m█\x1b[0m",  // orange square
	'\U0001F7E8': "\x1b[38;2;241;196;15m█\x1b[0m",  // yellow square
	'\U0001F7E9': "\x1b[38;2;46;204;113m█\x1b[0m",  // green square
	'\U0001F7E6': "\x1b[38;2;52;152;219m█\x1b[0m",  // blue square
	'\U0001F7EA': "\x1b[38;2;142;68;173m█\x1b[0m",  // purple square
	'\U0001F7EB': "\x1b[38;2;121;85;72m█\x1b[0m",   // brown square
	'⬛':     "\x1b[38;2;0;0;0m█\x1b[0m",       // black large square
	'⬜':     "\x1b[38;2;255;255;255m█\x1b[0m", // white large square
}

// normalizeColoredSquares replaces the nine colored-square characters
// with ANSI block glyphs in the scrollback's single decoded copy of a
// line. Whether a given viewer prefers the original glyphs is a
// presentation choice made outside the core.
func normalizeColoredSquares(text string) string {
	if !strings.ContainsAny(text, "\U0001F7E5\U0001F7E7\U0001F7E8\U0001F7E9\U0001F7E6\U0001F7EA\U0001F7EB⬛⬜") {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if repl, ok := coloredSquareANSI[r]; ok {
			b.WriteString(repl)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
