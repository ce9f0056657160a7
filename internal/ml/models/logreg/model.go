// Package logreg loads frozen logistic-regression artifacts and scores
// feature vectors against them. Training happens offline; this package
// only evaluates the fitted parameters.
package logreg

import (
	"encoding/json"
	"errors"
	"math"
)

type Artifact struct {
	FeatureNames []string  `json:"feature_names"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	Means        []float64 `json:"means"`
	Stds         []float64 `json:"stds"`
}

type Model struct {
	artifact Artifact
}

// Load decodes a serialized artifact, rejecting inconsistent parameter
// shapes up front so inference never has to check them again.
func Load(blob []byte) (*Model, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty logreg artifact")
	}
	var a Artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return nil, err
	}
	n := len(a.Weights)
	if n == 0 || n != len(a.Means) || n != len(a.Stds) || n != len(a.FeatureNames) {
		return nil, errors.New("logreg artifact has inconsistent parameter shapes")
	}
	for i, s := range a.Stds {
		if s == 0 {
			a.Stds[i] = 1
		}
	}
	return &Model{artifact: a}, nil
}

func (m *Model) Name() string { return "logreg" }

// PredictProb scores one sample in artifact feature order. A shape
// mismatch returns the uninformative 0.5 rather than panicking.
func (m *Model) PredictProb(sample []float64) float64 {
	if m == nil || len(sample) != len(m.artifact.Weights) {
		return 0.5
	}
	z := m.artifact.Bias
	for i, w := range m.artifact.Weights {
		z += w * (sample[i] - m.artifact.Means[i]) / m.artifact.Stds[i]
	}
	return sigmoid(z)
}

func (m *Model) FeatureNames() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.artifact.FeatureNames...)
}

func sigmoid(x float64) float64 {
	if x > 35 {
		return 1
	}
	if x < -35 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}
