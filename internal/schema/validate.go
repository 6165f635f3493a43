package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// ValidationError names the offending field path and the violated constraint.
type ValidationError struct {
	Shape      string // top-level shape name, e.g. "ResearchResult"
	Field      string // path such as "sections[1].sources[0]"; empty for the root
	Constraint string
}

func (e *ValidationError) Error() string {
	field := e.Field
	if field == "" {
		field = "(root)"
	}
	if e.Shape != "" {
		return fmt.Sprintf("%s: field %s: %s", e.Shape, field, e.Constraint)
	}
	return fmt.Sprintf("field %s: %s", field, e.Constraint)
}

// Validate checks value against shape. It never mutates or coerces value.
func Validate(value any, shape *Shape) error {
	if err := validate(value, shape, ""); err != nil {
		err.Shape = shape.Name
		return err
	}
	return nil
}

func validate(value any, s *Shape, path string) *ValidationError {
	fail := func(format string, args ...any) *ValidationError {
		return &ValidationError{Field: path, Constraint: fmt.Sprintf(format, args...)}
	}

	if value == nil && s.Kind != KindAny {
		return fail("must be %s, got null", s.Kind)
	}

	switch s.Kind {
	case KindAny:
		return nil

	case KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return fail("must be object, got %s", typeName(value))
		}
		for _, f := range s.Fields {
			v, present := obj[f.Name]
			if !present {
				if f.Required {
					return &ValidationError{Field: join(path, f.Name), Constraint: "required field missing"}
				}
				continue
			}
			if v == nil && !f.Required {
				continue
			}
			if err := validate(v, f.Shape, join(path, f.Name)); err != nil {
				return err
			}
		}
		return nil

	case KindArray:
		arr, ok := value.([]any)
		if !ok {
			return fail("must be array, got %s", typeName(value))
		}
		if len(arr) < s.MinItems {
			return fail("must have at least %d items, got %d", s.MinItems, len(arr))
		}
		if s.MaxItems > 0 && len(arr) > s.MaxItems {
			return fail("must have at most %d items, got %d", s.MaxItems, len(arr))
		}
		if s.Elem != nil {
			for i, v := range arr {
				if err := validate(v, s.Elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
		return nil

	case KindString:
		str, ok := value.(string)
		if !ok {
			return fail("must be string, got %s", typeName(value))
		}
		if s.MinLen > 0 && len(strings.TrimSpace(str)) < s.MinLen {
			if s.MinLen == 1 {
				return fail("must not be empty")
			}
			return fail("must be at least %d characters", s.MinLen)
		}
		if s.Format == FormatURL && !IsURL(str) {
			return fail("must be an absolute http(s) URL, got %q", str)
		}
		return nil

	case KindNumber, KindInteger:
		n, ok := toFloat(value)
		if !ok {
			return fail("must be %s, got %s", s.Kind, typeName(value))
		}
		if s.Kind == KindInteger && n != math.Trunc(n) {
			return fail("must be integer, got %v", n)
		}
		if s.Min != nil && n < *s.Min {
			return fail("must be >= %v, got %v", *s.Min, n)
		}
		if s.Max != nil && n > *s.Max {
			return fail("must be <= %v, got %v", *s.Max, n)
		}
		return nil

	case KindBool:
		if _, ok := value.(bool); !ok {
			return fail("must be boolean, got %s", typeName(value))
		}
		return nil
	}
	return fail("unknown shape kind %d", s.Kind)
}

// IsURL reports whether s is an absolute http or https URL with a host.
func IsURL(s string) bool {
	if strings.TrimSpace(s) != s || s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// toFloat accepts the numeric forms decoders produce.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64, float32, int, int64, json.Number:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
