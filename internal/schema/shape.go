// Package schema validates generic JSON values against fixed shape descriptors
// and narrows them into typed records.
package schema

// Kind is the JSON type a Shape accepts.
type Kind int

const (
	KindAny Kind = iota
	KindObject
	KindArray
	KindString
	KindNumber
	KindInteger
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBool:
		return "boolean"
	default:
		return "any"
	}
}

// Format is an additional string constraint.
type Format int

const (
	FormatNone Format = iota
	FormatURL         // absolute http(s) URL with a host
)

// Shape describes the accepted form of one JSON value.
type Shape struct {
	Name string // used in error messages for the top-level shape
	Kind Kind

	// Objects. Unknown fields are ignored.
	Fields []Field

	// Arrays.
	Elem     *Shape
	MinItems int
	MaxItems int // 0 = unbounded

	// Strings.
	MinLen int // measured after trimming whitespace
	Format Format

	// Numbers; closed interval.
	Min *float64
	Max *float64
}

// Field is one named member of an object shape.
type Field struct {
	Name     string
	Shape    *Shape
	Required bool
}

// Helpers for building descriptors tersely.

func Object(name string, fields ...Field) *Shape {
	return &Shape{Name: name, Kind: KindObject, Fields: fields}
}

func ArrayOf(elem *Shape) *Shape {
	return &Shape{Kind: KindArray, Elem: elem}
}

func String() *Shape { return &Shape{Kind: KindString} }

// NonEmptyString requires at least one non-whitespace character.
func NonEmptyString() *Shape { return &Shape{Kind: KindString, MinLen: 1} }

func URL() *Shape { return &Shape{Kind: KindString, MinLen: 1, Format: FormatURL} }

func Bool() *Shape { return &Shape{Kind: KindBool} }

func Number() *Shape { return &Shape{Kind: KindNumber} }

// Range is a number restricted to [lo, hi].
func Range(lo, hi float64) *Shape {
	return &Shape{Kind: KindNumber, Min: &lo, Max: &hi}
}

func Required(name string, s *Shape) Field { return Field{Name: name, Shape: s, Required: true} }

func Optional(name string, s *Shape) Field { return Field{Name: name, Shape: s} }

// Items returns a copy of an array shape with item-count bounds.
func (s *Shape) Items(min, max int) *Shape {
	cp := *s
	cp.MinItems = min
	cp.MaxItems = max
	return &cp
}
