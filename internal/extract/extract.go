// Package extract isolates the structured JSON payload embedded in free-form
// model output and parses it into a generic value.
//
// Preference order: fenced code blocks (```json first, then any fence), then the
// first balanced top-level {...} or [...] span in the raw text. Parsing is strict;
// repair of trailing commas and comments is opt-in.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"researchnerd/internal/logging"
)

// ErrEmptyInput is wrapped by ExtractionError when the text is blank.
var ErrEmptyInput = errors.New("empty response text")

// ExtractionError means no well-formed payload could be located.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	return "no structured payload found: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ParseError means a payload was located but is not valid JSON.
type ParseError struct {
	Payload string
	Offset  int64
	Err     error
}

func (e *ParseError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("invalid JSON payload at offset %d: %v", e.Offset, e.Err)
	}
	return fmt.Sprintf("invalid JSON payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extractor turns raw model text into a generic value.
type Extractor struct {
	// Repair retries a failed parse with trailing commas and comments removed.
	Repair bool
}

// Extract uses a strict Extractor.
func Extract(text string) (any, error) {
	return Extractor{}.Extract(text)
}

// Extract returns the parsed payload (map[string]any or []any).
func (x Extractor) Extract(text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ExtractionError{Reason: "input is empty", Err: ErrEmptyInput}
	}

	if fenced := fenceCandidates(text); len(fenced) > 0 {
		return x.firstParsed(fenced)
	}

	candidates := findCandidates(text)
	if len(candidates) == 0 {
		return nil, &ExtractionError{Reason: "no balanced object or array in text"}
	}
	return x.firstParsed(candidates)
}

// firstParsed returns the first candidate that parses, or the ParseError of
// the first candidate when none do.
func (x Extractor) firstParsed(candidates []string) (any, error) {
	var firstErr error
	for _, c := range candidates {
		v, err := x.parse(c)
		if err == nil {
			return v, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	logging.ExtractDebug("extract: %d candidate spans, none parsed", len(candidates))
	return nil, firstErr
}

// fenceCandidates lists payload candidates from fenced blocks, json-tagged
// fences first, each fence's spans in document order.
func fenceCandidates(text string) []string {
	fences := findFences(text)
	if len(fences) == 0 {
		return nil
	}

	ordered := make([]fence, 0, len(fences))
	for _, f := range fences {
		if f.lang == "json" || f.lang == "jsonc" {
			ordered = append(ordered, f)
		}
	}
	for _, f := range fences {
		if f.lang != "json" && f.lang != "jsonc" {
			ordered = append(ordered, f)
		}
	}

	var out []string
	for _, f := range ordered {
		if spans := findCandidates(f.body); len(spans) > 0 {
			out = append(out, spans...)
			continue
		}
		if openSpan(f.body) {
			// Opened but never balanced: still a payload, let parse report it.
			out = append(out, strings.TrimSpace(f.body))
		}
	}
	return out
}

func (x Extractor) parse(payload string) (any, error) {
	v, err := decodeStrict(payload)
	if err == nil {
		return v, nil
	}
	if x.Repair {
		if repaired := Repair(payload); repaired != payload {
			if rv, rerr := decodeStrict(repaired); rerr == nil {
				logging.ExtractDebug("extract: payload accepted after repair")
				return rv, nil
			}
		}
	}
	return nil, err
}

func decodeStrict(payload string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		pe := &ParseError{Payload: payload, Err: err}
		var se *json.SyntaxError
		if errors.As(err, &se) {
			pe.Offset = se.Offset
		}
		return nil, pe
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	default:
		return nil, &ParseError{Payload: payload, Err: fmt.Errorf("top-level value is %T, want object or array", v)}
	}
}
