package extract

import "strings"

// Repair removes // and /* */ comments and trailing commas before } or ],
// leaving string literals untouched. Anything else is left for the strict
// parser to reject.
func Repair(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	inString := false
	escape := false
	for i := 0; i < len(s); i++ {
		b := s[i]

		if inString {
			out.WriteByte(b)
			if escape {
				escape = false
			} else if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		switch {
		case b == '"':
			inString = true
			out.WriteByte(b)
		case b == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				out.WriteByte('\n')
			}
		case b == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += 2 + end + 1
			}
		case b == ',':
			if next := nextSignificant(s, i+1); next == '}' || next == ']' {
				continue
			}
			out.WriteByte(b)
		default:
			out.WriteByte(b)
		}
	}
	return out.String()
}

// nextSignificant returns the next byte after i that is not whitespace or
// part of a comment, or 0 at end of input.
func nextSignificant(s string, i int) byte {
	for i < len(s) {
		switch {
		case s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r':
			i++
		case strings.HasPrefix(s[i:], "//"):
			nl := strings.IndexByte(s[i:], '\n')
			if nl < 0 {
				return 0
			}
			i += nl
		case strings.HasPrefix(s[i:], "/*"):
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				return 0
			}
			i += 2 + end + 2
		default:
			return s[i]
		}
	}
	return 0
}
