package extract

import "strings"

// findCandidates scans s for top-level balanced JSON spans, objects and arrays
// alike, in document order.
//
// It is a byte-level state machine: string literals are only tracked inside an
// open span, so stray quotes in surrounding prose do not derail it. A closer that
// does not match the innermost opener abandons the current span, and so does
// an opener still unclosed at the end of the text.
//
// Iterating bytes is safe for the ASCII delimiters ({ } [ ] " \) because UTF-8
// never uses them inside multi-byte sequences.
func findCandidates(s string) []string {
	var candidates []string
	var stack []byte
	start := -1
	inString := false
	escape := false

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			if len(stack) > 0 {
				inString = true
			}
		case '{', '[':
			if len(stack) == 0 {
				start = i
			}
			stack = append(stack, closerFor(b))
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			if stack[len(stack)-1] != b {
				// Mismatched closer; rescan from just after the abandoned opener.
				i = start
				stack = stack[:0]
				start = -1
				continue
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				candidates = append(candidates, s[start:i+1])
				start = -1
			}
		}
	}

	if len(stack) > 0 {
		// An opener that never closes swallowed the rest of the text; rescan
		// from just after it.
		candidates = append(candidates, findCandidates(s[start+1:])...)
	}
	return candidates
}

// openSpan reports whether s starts (after whitespace) with a JSON opener.
func openSpan(s string) bool {
	t := strings.TrimSpace(s)
	return t != "" && (t[0] == '{' || t[0] == '[')
}

func closerFor(b byte) byte {
	if b == '{' {
		return '}'
	}
	return ']'
}

type fence struct {
	lang string
	body string
}

// findFences returns the bodies of ``` fenced blocks in document order. An
// unterminated final fence runs to the end of the text.
func findFences(s string) []fence {
	var fences []fence
	rest := s
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return fences
		}
		rest = rest[open+3:]

		// Info string runs to end of line.
		lang := ""
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			lang = strings.TrimSpace(rest[:nl])
			if strings.ContainsAny(lang, "{[") {
				// ```{"a":1}``` on one line: no info string.
				lang = ""
			} else {
				rest = rest[nl+1:]
			}
		}

		end := strings.Index(rest, "```")
		if end < 0 {
			fences = append(fences, fence{lang: strings.ToLower(lang), body: rest})
			return fences
		}
		fences = append(fences, fence{lang: strings.ToLower(lang), body: rest[:end]})
		rest = rest[end+3:]
	}
}
