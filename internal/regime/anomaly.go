package regime

import (
	"math"

	"signalforge/internal/domain"
	"signalforge/internal/ta"

	"github.com/narumiruna/go-iforest/pkg/iforest"
)

const anomalyScoreThreshold = 0.70

// AnomalyDetector flags dislocated bars (return/range/volume outliers)
// with an isolation forest fit on the evaluation window itself. It
// augments the volatility and drawdown crisis triggers; a single
// anomalous latest bar marks the regime as crisis.
type AnomalyDetector struct {
	threshold float64
}

func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{threshold: anomalyScoreThreshold}
}

// Anomalous reports whether the latest bar is an outlier relative to the
// rest of the window.
func (d *AnomalyDetector) Anomalous(candles []domain.Candle) bool {
	samples := buildSamples(candles)
	if len(samples) < 64 {
		return false
	}

	forest := iforest.New()
	forest.Fit(samples)
	scores := forest.Score(samples)
	if len(scores) != len(samples) {
		return false
	}
	return scores[len(scores)-1] >= d.threshold
}

// buildSamples maps each bar to [return, relative range, volume ratio].
func buildSamples(candles []domain.Candle) [][]float64 {
	if len(candles) < 2 {
		return nil
	}
	volumes := make([]float64, len(candles))
	for i := range candles {
		volumes[i] = candles[i].Volume
	}
	volMean, _ := ta.MeanStd(volumes)

	out := make([][]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev <= 0 || candles[i].Close <= 0 {
			continue
		}
		ret := candles[i].Close/prev - 1
		rng := 0.0
		if candles[i].Close > 0 {
			rng = (candles[i].High - candles[i].Low) / candles[i].Close
		}
		volRatio := 1.0
		if volMean > 0 {
			volRatio = candles[i].Volume / volMean
		}
		if math.IsNaN(ret) || math.IsNaN(rng) || math.IsNaN(volRatio) {
			continue
		}
		out = append(out, []float64{ret, rng, volRatio})
	}
	return out
}
