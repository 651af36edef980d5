// Package decoder assembles the telnet-stripped byte stream into
// OutputLine text: it applies the world's character encoding, splits on
// line terminators without fracturing an in-progress ANSI CSI sequence,
// and merges partial lines across reads.
package decoder

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"clay/internal/config"
)

const idlerPrefix = "###_idler_message_"
const idlerSuffix = "_###"

// Output is what a single Feed call produced.
type Output struct {
	// Finalized holds lines completed during this call, in arrival order.
	// Idler-suppressed lines (§4.3.5) are not included.
	Finalized []string

	// Partial is the current not-yet-terminated line's decoded text.
	// HasPartial is false when nothing is in flight (the stream is
	// exactly at a line boundary).
	Partial    string
	HasPartial bool
}

// Decoder is a per-world line assembler. Not safe for concurrent use;
// owned exclusively by the world's reader task (§5).
type Decoder struct {
	encoding config.Encoding

	raw []byte // accumulated raw bytes of the current (partial) line

	inEscape bool
	inCSI    bool
	sawCR    bool
}

// New creates a decoder for the given world encoding.
func New(encoding config.Encoding) *Decoder {
	return &Decoder{encoding: encoding}
}

// Feed consumes a chunk of telnet-stripped bytes and returns the lines it
// produced. State (escape/CSI tracking, a dangling CR, the raw partial
// buffer) persists across calls so a split exactly inside an escape
// sequence never fractures the output.
func (d *Decoder) Feed(chunk []byte) Output {
	var out Output

	i := 0
	for i < len(chunk) {
		b := chunk[i]

		if d.sawCR {
			d.sawCR = false
			if b == '\n' {
				out.Finalized = appendFinalized(out.Finalized, d.finalize())
				i++
				continue
			}
			out.Finalized = appendFinalized(out.Finalized, d.finalize())
			// fall through: b has not been consumed yet
		}

		switch {
		case b == '\r':
			d.sawCR = true
			i++
		case b == '\n':
			out.Finalized = appendFinalized(out.Finalized, d.finalize())
			i++
		case d.inEscape:
			d.inEscape = false
			d.raw = append(d.raw, b)
			if b == '[' {
				d.inCSI = true
			}
			i++
		case d.inCSI:
			d.raw = append(d.raw, b)
			if b >= 0x40 && b <= 0x7E {
				d.inCSI = false
			}
			i++
		case b == 0x1B:
			d.inEscape = true
			d.raw = append(d.raw, b)
			i++
		case isFilteredControl(b):
			i++
		default:
			d.raw = append(d.raw, b)
			i++
		}
	}

	if len(d.raw) > 0 {
		out.Partial = d.decodeAndNormalize(d.raw)
		out.HasPartial = true
	}

	return out
}

// isFilteredControl reports whether b is a control byte other than HT,
// LF, or ESC, which §4.3.1 requires be filtered.
func isFilteredControl(b byte) bool {
	if b == '\t' || b == '\n' || b == 0x1B {
		return false
	}
	return b < 0x20 || b == 0x7F
}

func appendFinalized(lines []string, line string, ok bool) []string {
	if ok {
		return append(lines, line)
	}
	return lines
}

// ResetPartial discards the in-flight partial line and any escape-scan
// state. Callers use this on a telnet GA/EOR boundary, which consumes
// whatever was accumulating into a prompt instead of a finalized line;
// without it, bytes already buffered here would prefix the next line
// decoded from the connection.
func (d *Decoder) ResetPartial() {
	d.raw = d.raw[:0]
	d.inEscape = false
	d.inCSI = false
	d.sawCR = false
}

func (d *Decoder) finalize() (string, bool) {
	text := d.decodeAndNormalize(d.raw)
	d.raw = d.raw[:0]
	if isIdler(text) {
		return "", false
	}
	return text, true
}

func isIdler(text string) bool {
	return strings.Contains(text, idlerPrefix) && strings.HasSuffix(text, idlerSuffix)
}

func (d *Decoder) decodeAndNormalize(raw []byte) string {
	var text string
	switch d.encoding {
	case config.EncodingLatin1:
		text = decodeLatin1(raw)
	case config.EncodingFansi:
		text = decodeFansi(raw)
	default:
		text = decodeUTF8Lossy(raw)
	}
	return normalizeColoredSquares(text)
}

func decodeUTF8Lossy(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		b.WriteRune(r)
		raw = raw[size:]
	}
	return b.String()
}

func decodeLatin1(raw []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		// ISO-8859-1 maps every byte value, so this path is unreachable
		// in practice; fall back to a direct byte->codepoint map.
		var b strings.Builder
		b.Grow(len(raw))
		for _, by := range raw {
			b.WriteRune(rune(by))
		}
		return b.String()
	}
	return string(out)
}

func decodeFansi(raw []byte) string {
	out, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		return decodeLatin1(raw)
	}
	return string(out)
}
