package deltastream

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitize drops everything in a raw frame that is not printable text.
// Tab, carriage return and newline survive. ASCII control bytes, DEL, bytes
// that do not form valid UTF-8 and non-printable runes are removed, which
// discards the binary event-stream framing around the JSON payloads.
func sanitize(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))

	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]

		switch {
		case r == utf8.RuneError && size <= 1:
		case r == '\t' || r == '\n' || r == '\r':
			b.WriteRune(r)
		case r < 0x20 || r == 0x7f:
		case r >= utf8.RuneSelf && !unicode.IsPrint(r):
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// balancedObject returns the brace-balanced object that starts at the first
// '{' at or after pos. Braces are counted without regard to JSON string
// literals. ok is false when the line ends before the object closes.
func balancedObject(line string, pos int) (string, bool) {
	if pos > len(line) {
		return "", false
	}

	open := strings.IndexByte(line[pos:], '{')
	if open < 0 {
		return "", false
	}
	open += pos

	depth := 0
	for i := open; i < len(line); i++ {
		switch line[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return line[open : i+1], true
			}
		}
	}

	return "", false
}
