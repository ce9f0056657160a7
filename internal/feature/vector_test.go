package feature

import (
	"errors"
	"math"
	"testing"
	"time"

	"signalforge/internal/domain"
	"signalforge/internal/indicator"
	"signalforge/internal/stats"
)

func TestValidateSchemaSetEquality(t *testing.T) {
	vec, err := NewVector([]string{"a", "b", "c"}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}

	if err := vec.ValidateSchema([]string{"c", "a", "b"}); err != nil {
		t.Fatalf("order must not matter, got %v", err)
	}

	err = vec.ValidateSchema([]string{"a", "b", "d"})
	if err == nil {
		t.Fatal("expected schema mismatch")
	}
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %T", err)
	}
	if len(schemaErr.Missing) != 1 || schemaErr.Missing[0] != "d" {
		t.Fatalf("missing = %v", schemaErr.Missing)
	}
	if len(schemaErr.Extra) != 1 || schemaErr.Extra[0] != "c" {
		t.Fatalf("extra = %v", schemaErr.Extra)
	}
}

func TestReorderFollowsSchema(t *testing.T) {
	vec, err := NewVector([]string{"a", "b", "c"}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}
	vals, err := vec.Reorder([]string{"c", "a", "b"})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	want := []float64{3, 1, 2}
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("vals = %v, want %v", vals, want)
		}
	}
}

func TestBuildMatchesCanonicalSchema(t *testing.T) {
	builder := NewBuilder(func() time.Time {
		return time.Date(2025, 6, 7, 15, 0, 0, 0, time.UTC) // Saturday
	})

	snap := indicator.Snapshot{
		RSI:        62,
		ADX:        28,
		BBPosition: 0.8,
		BBWidth:    0.05,
	}
	st := stats.Neutral()
	sm := domain.ScoredContext{Metrics: map[string]float64{"funding_rate": 0.0004}}

	vec := builder.Build(snap, st, sm)
	if err := vec.ValidateSchema(Schema()); err != nil {
		t.Fatalf("built vector must match canonical schema, got %v", err)
	}

	if v, _ := vec.Get("weekend"); v != 1 {
		t.Fatalf("weekend = %v, want 1", v)
	}
	if v, _ := vec.Get("funding_rate"); v != 0.0004 {
		t.Fatalf("funding_rate = %v", v)
	}
	if v, _ := vec.Get("rsi"); math.Abs(v-0.62) > 1e-9 {
		t.Fatalf("rsi = %v, want 0.62", v)
	}
}

func TestBuildSanitizesNaN(t *testing.T) {
	builder := NewBuilder(nil)
	snap := indicator.Snapshot{ADX: math.NaN(), MACDHist: math.Inf(1)}
	vec := builder.Build(snap, stats.Neutral(), domain.NeutralContext("no provider"))
	for _, v := range vec.Values() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("unsanitized value in %v", vec.Values())
		}
	}
}
