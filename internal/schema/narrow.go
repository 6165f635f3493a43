package schema

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Narrow validates value against shape and decodes it into T using the
// record's json tags. Fields absent from shape are ignored.
func Narrow[T any](value any, shape *Shape) (T, error) {
	var out T
	if err := Validate(value, shape); err != nil {
		return out, err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return out, fmt.Errorf("schema: build decoder: %w", err)
	}
	if err := dec.Decode(value); err != nil {
		// Only reachable when shape and T disagree.
		return out, &ValidationError{Shape: shape.Name, Constraint: err.Error()}
	}
	return out, nil
}
