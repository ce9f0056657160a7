package feature

import (
	"fmt"
	"sort"
	"strings"
)

// SpecVersion identifies the feature schema generation. A model trained
// against a different generation must never be scored with this one.
const SpecVersion = "v2"

// Vector is an ordered mapping from feature name to scalar. Order is
// fixed at construction so model inputs are positionally stable.
type Vector struct {
	names  []string
	values []float64
}

func NewVector(names []string, values []float64) (Vector, error) {
	if len(names) != len(values) {
		return Vector{}, fmt.Errorf("feature vector size mismatch: %d names, %d values", len(names), len(values))
	}
	return Vector{
		names:  append([]string(nil), names...),
		values: append([]float64(nil), values...),
	}, nil
}

func (v Vector) Names() []string {
	return append([]string(nil), v.names...)
}

func (v Vector) Values() []float64 {
	return append([]float64(nil), v.values...)
}

func (v Vector) Len() int { return len(v.names) }

func (v Vector) Get(name string) (float64, bool) {
	for i, n := range v.names {
		if n == name {
			return v.values[i], true
		}
	}
	return 0, false
}

// Map returns the vector as a plain map for serialization into signal
// rationale payloads.
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.names))
	for i, n := range v.names {
		out[n] = v.values[i]
	}
	return out
}

// SchemaError is the fatal configuration error raised when inference
// features drift from the schema a model artifact was trained with.
type SchemaError struct {
	Missing []string
	Extra   []string
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing features: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected features: "+strings.Join(e.Extra, ", "))
	}
	if len(parts) == 0 {
		return "feature schema mismatch"
	}
	return "feature schema mismatch: " + strings.Join(parts, "; ")
}

// ValidateSchema checks exact set equality between the vector's feature
// names and a trained schema. On mismatch it returns a *SchemaError;
// features are never silently dropped or padded.
func (v Vector) ValidateSchema(schema []string) error {
	have := make(map[string]struct{}, len(v.names))
	for _, n := range v.names {
		have[n] = struct{}{}
	}
	want := make(map[string]struct{}, len(schema))
	for _, n := range schema {
		want[n] = struct{}{}
	}

	var missing, extra []string
	for n := range want {
		if _, ok := have[n]; !ok {
			missing = append(missing, n)
		}
	}
	for n := range have {
		if _, ok := want[n]; !ok {
			extra = append(extra, n)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)
	return &SchemaError{Missing: missing, Extra: extra}
}

// Reorder returns the values permuted into the given schema order. The
// schema must already have passed ValidateSchema.
func (v Vector) Reorder(schema []string) ([]float64, error) {
	if err := v.ValidateSchema(schema); err != nil {
		return nil, err
	}
	out := make([]float64, len(schema))
	for i, n := range schema {
		val, _ := v.Get(n)
		out[i] = val
	}
	return out, nil
}
