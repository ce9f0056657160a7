package feature

import (
	"math"
	"time"

	"signalforge/internal/domain"
	"signalforge/internal/indicator"
	"signalforge/internal/stats"
)

// schemaNames is the canonical ordering for SpecVersion. Models trained
// through the registry record this exact list; inference reorders into
// whatever the artifact recorded.
var schemaNames = []string{
	"rsi",
	"ema_cross",
	"macd_hist",
	"adx",
	"bb_position",
	"bb_width",
	"volume_ratio",
	"volume_price_corr",
	"obv_momentum",
	"hurst",
	"dfa",
	"skew",
	"kurtosis",
	"vol_regime",
	"vol_percentile",
	"momentum_persistence",
	"entropy",
	"funding_rate",
	"liquidity_imbalance",
	"hour_sin",
	"hour_cos",
	"weekend",
}

// Schema returns the canonical feature name set for SpecVersion.
func Schema() []string {
	return append([]string(nil), schemaNames...)
}

type Builder struct {
	now func() time.Time
}

func NewBuilder(now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{now: now}
}

// Build assembles the model input from the indicator snapshot, the
// statistical features and the scored smart-money context. Every value
// is sanitized: NaN or Inf collapses to 0 rather than poisoning the
// models downstream.
func (b *Builder) Build(snap indicator.Snapshot, st stats.Features, sm domain.ScoredContext) Vector {
	now := b.now().UTC()
	hourAngle := 2 * math.Pi * float64(now.Hour()) / 24

	weekend := 0.0
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		weekend = 1
	}

	values := []float64{
		snap.RSI / 100,
		boolToFloat(snap.EMACrossBull),
		snap.MACDHist,
		snap.ADX / 100,
		snap.BBPosition,
		snap.BBWidth,
		snap.VolumeRatio,
		snap.VolumePriceCorr,
		snap.OBVMomentum,
		st.Hurst,
		st.DFA,
		st.Skew,
		st.Kurtosis,
		st.VolRegime,
		st.VolPercentile,
		st.MomentumPersistence,
		st.Entropy,
		metric(sm, "funding_rate"),
		metric(sm, "liquidity_imbalance"),
		math.Sin(hourAngle),
		math.Cos(hourAngle),
		weekend,
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			values[i] = 0
		}
	}

	vec, _ := NewVector(schemaNames, values)
	return vec
}

func metric(sm domain.ScoredContext, name string) float64 {
	if sm.Metrics == nil {
		return 0
	}
	return sm.Metrics[name]
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
