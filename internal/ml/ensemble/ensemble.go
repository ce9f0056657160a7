// Package ensemble combines frozen classifiers into one weighted vote.
package ensemble

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"signalforge/internal/feature"
)

// Member is one loaded classifier. Implementations must be safe for
// concurrent PredictProb calls; all members share one feature schema.
type Member interface {
	Name() string
	FeatureNames() []string
	PredictProb(sample []float64) float64
}

// Prediction is the outcome of one inference pass.
type Prediction struct {
	// Probability of upward movement in [0, 1]; 0.5 carries no
	// information.
	Probability float64
	PerModel    map[string]float64
	Weights     map[string]float64
	// Degraded is set when no models are loaded and the neutral 0.5
	// was substituted.
	Degraded bool
}

// Ensemble owns the member set and the weight table. Inference reads
// the weight table through an atomic pointer; updates replace the whole
// table, so reads never observe a half-written state.
type Ensemble struct {
	members []Member
	schema  []string
	weights atomic.Pointer[map[string]float64]
}

// New validates every member against the shared feature schema and
// starts with equal weights. A member trained against a different
// schema is a fatal configuration error, surfaced as *feature.SchemaError.
func New(members []Member, schema []string) (*Ensemble, error) {
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.Name()]; dup {
			return nil, fmt.Errorf("duplicate ensemble member %q", m.Name())
		}
		seen[m.Name()] = struct{}{}

		vec, err := feature.NewVector(m.FeatureNames(), make([]float64, len(m.FeatureNames())))
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", m.Name(), err)
		}
		if err := vec.ValidateSchema(schema); err != nil {
			return nil, fmt.Errorf("member %q trained against stale schema: %w", m.Name(), err)
		}
	}

	e := &Ensemble{
		members: append([]Member(nil), members...),
		schema:  append([]string(nil), schema...),
	}
	initial := make(map[string]float64, len(members))
	for _, m := range members {
		initial[m.Name()] = 1.0 / float64(len(members))
	}
	e.weights.Store(&initial)
	return e, nil
}

// Schema returns the feature schema shared by all members.
func (e *Ensemble) Schema() []string {
	return append([]string(nil), e.schema...)
}

// Predict scores the feature vector with every member and returns the
// weight-normalized vote. The vector's feature-name set must equal the
// training schema exactly; mismatch raises before any model is scored.
// Members are positional scorers, so each one receives the values
// permuted into its own artifact's recorded feature order — two members
// listing the same features in different orders both score correctly.
// With no members loaded it returns the neutral 0.5 and logs once per
// call that the ensemble is degraded.
func (e *Ensemble) Predict(vec feature.Vector) (Prediction, error) {
	if err := vec.ValidateSchema(e.schema); err != nil {
		return Prediction{}, err
	}

	if len(e.members) == 0 {
		log.Printf("ensemble: no models loaded, returning neutral probability")
		return Prediction{Probability: 0.5, Degraded: true, PerModel: map[string]float64{}, Weights: map[string]float64{}}, nil
	}

	weights := *e.weights.Load()
	perModel := make(map[string]float64, len(e.members))
	var weighted, total float64
	for _, m := range e.members {
		sample, err := vec.Reorder(m.FeatureNames())
		if err != nil {
			return Prediction{}, fmt.Errorf("member %q: %w", m.Name(), err)
		}
		p := m.PredictProb(sample)
		perModel[m.Name()] = p
		w := weights[m.Name()]
		weighted += w * p
		total += w
	}
	if total <= 0 {
		return Prediction{Probability: 0.5, Degraded: true, PerModel: perModel, Weights: copyWeights(weights)}, nil
	}

	return Prediction{
		Probability: weighted / total,
		PerModel:    perModel,
		Weights:     copyWeights(weights),
	}, nil
}

// Weights returns a copy of the current weight table.
func (e *Ensemble) Weights() map[string]float64 {
	return copyWeights(*e.weights.Load())
}

// UpdateWeights replaces the weight table. Keys must exactly match the
// member set, values must be non-negative with a positive sum; the
// stored table is re-normalized to sum to 1 and swapped in atomically.
func (e *Ensemble) UpdateWeights(raw map[string]float64) error {
	if len(raw) != len(e.members) {
		return fmt.Errorf("weight table has %d entries, ensemble has %d members", len(raw), len(e.members))
	}
	var sum float64
	for _, m := range e.members {
		w, ok := raw[m.Name()]
		if !ok {
			return fmt.Errorf("weight table missing member %q", m.Name())
		}
		if w < 0 {
			return fmt.Errorf("negative weight %v for member %q", w, m.Name())
		}
		sum += w
	}
	if sum <= 0 {
		return errors.New("weight table sums to zero")
	}

	normalized := make(map[string]float64, len(raw))
	for _, m := range e.members {
		normalized[m.Name()] = raw[m.Name()] / sum
	}
	e.weights.Store(&normalized)
	return nil
}

// ApplyHitRates refreshes weights from per-model hit rates. Models
// missing from the report keep a floor weight so one bad window cannot
// silence a member permanently.
func (e *Ensemble) ApplyHitRates(hitRates map[string]float64) error {
	const floor = 0.05
	raw := make(map[string]float64, len(e.members))
	for _, m := range e.members {
		hr, ok := hitRates[m.Name()]
		if !ok || hr < floor {
			hr = floor
		}
		raw[m.Name()] = hr
	}
	return e.UpdateWeights(raw)
}

// MarshalWeights serializes the current table for persistence.
func (e *Ensemble) MarshalWeights() ([]byte, error) {
	return json.Marshal(e.Weights())
}

// UnmarshalWeights restores a persisted table through UpdateWeights, so
// the normalized-to-1 invariant holds after a reload.
func (e *Ensemble) UnmarshalWeights(blob []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(blob, &raw); err != nil {
		return fmt.Errorf("decode weight table: %w", err)
	}
	return e.UpdateWeights(raw)
}

func copyWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
