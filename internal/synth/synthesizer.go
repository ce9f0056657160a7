// Package synth combines technical, model and context scores into one
// bounded confidence value and applies the hard signal gates.
package synth

import (
	"fmt"

	"signalforge/internal/domain"
	"signalforge/internal/indicator"
)

// Profile selects how technical confidence and ensemble probability are
// blended. The technical profile trusts the indicator battery, the
// model profile trusts the learned ensemble.
type Profile string

const (
	ProfileTechnical Profile = "technical" // 60% technical, 40% model
	ProfileModel     Profile = "model"     // 30% technical, 70% model
)

type Config struct {
	Profile          Profile
	SmartMoneyWeight float64
	MinADX           float64
	TechnicalFloor   float64
	MinConfidence    float64
	MaxConfidence    float64
	// MinSeparation is the bullish-vs-bearish point gap required to
	// call a direction at all.
	MinSeparation float64
}

type Synthesizer struct {
	cfg Config
}

func NewSynthesizer(cfg Config) *Synthesizer {
	if cfg.Profile != ProfileTechnical && cfg.Profile != ProfileModel {
		cfg.Profile = ProfileTechnical
	}
	if cfg.SmartMoneyWeight <= 0 {
		cfg.SmartMoneyWeight = 0.30
	}
	if cfg.MinADX <= 0 {
		cfg.MinADX = 25
	}
	if cfg.TechnicalFloor <= 0 {
		cfg.TechnicalFloor = 0.45
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.70
	}
	if cfg.MaxConfidence <= 0 || cfg.MaxConfidence > 0.98 {
		cfg.MaxConfidence = 0.97
	}
	if cfg.MinSeparation <= 0 {
		cfg.MinSeparation = 0.15
	}
	return &Synthesizer{cfg: cfg}
}

// Technical is the outcome of the fixed indicator battery.
type Technical struct {
	Direction  domain.Direction
	Confidence float64
	Bullish    float64
	Bearish    float64
	Checks     map[string]string
}

// Result is a fully synthesized, gate-approved evaluation.
type Result struct {
	Direction  domain.Direction
	Confidence float64
	Technical  Technical
}

// EvaluateTechnical runs the indicator battery. Each check contributes
// a weighted point to the bullish or bearish side; the sides are then
// compared against the separation threshold to call a direction.
func (s *Synthesizer) EvaluateTechnical(snap indicator.Snapshot, regime domain.MarketRegime) Technical {
	checks := make(map[string]string, 5)
	var bull, bear float64

	// RSI band breach: oversold argues for a long bounce, overbought
	// for a short.
	switch {
	case snap.RSI <= snap.RSILower:
		bull += 0.20
		checks["rsi"] = "oversold"
	case snap.RSI >= snap.RSIUpper:
		bear += 0.20
		checks["rsi"] = "overbought"
	default:
		checks["rsi"] = "mid_band"
	}

	if snap.EMACrossBull {
		bull += 0.25
		checks["ema_cross"] = "bullish"
	} else {
		bear += 0.25
		checks["ema_cross"] = "bearish"
	}

	switch {
	case snap.MACDHist > 0:
		bull += 0.20
		checks["macd"] = "positive"
	case snap.MACDHist < 0:
		bear += 0.20
		checks["macd"] = "negative"
	default:
		checks["macd"] = "flat"
	}

	// Bollinger breakout beyond the bands signals momentum in the
	// breakout direction.
	switch {
	case snap.BBPosition > 1:
		bull += 0.20
		checks["bollinger"] = "breakout_up"
	case snap.BBPosition < 0:
		bear += 0.20
		checks["bollinger"] = "breakout_down"
	default:
		checks["bollinger"] = "inside_bands"
	}

	// Strong trend amplifies whichever side already leads.
	if snap.ADX > s.cfg.MinADX {
		checks["adx"] = fmt.Sprintf("trending_%.0f", snap.ADX)
		if bull > bear {
			bull += 0.15
		} else if bear > bull {
			bear += 0.15
		}
	} else {
		checks["adx"] = "weak_trend"
	}

	tech := Technical{Bullish: bull, Bearish: bear, Checks: checks}
	switch {
	case bull-bear >= s.cfg.MinSeparation:
		tech.Direction = domain.DirectionBuy
		tech.Confidence = clamp01(bull)
		if bull >= 0.75 {
			tech.Direction = domain.DirectionStrongBuy
		}
	case bear-bull >= s.cfg.MinSeparation:
		tech.Direction = domain.DirectionSell
		tech.Confidence = clamp01(bear)
		if bear >= 0.75 {
			tech.Direction = domain.DirectionStrongSell
		}
	default:
		tech.Direction = domain.DirectionNeutral
		tech.Confidence = clamp01(maxFloat(bull, bear))
	}
	return tech
}

// Synthesize blends the component scores and applies the hard gates in
// order. The first failing gate rejects the evaluation; later gates are
// never consulted.
func (s *Synthesizer) Synthesize(
	tech Technical,
	ensembleProb float64,
	smartMoney domain.ScoredContext,
	regime domain.MarketRegime,
	adx float64,
) (Result, *domain.Rejection) {
	reject := func(gate domain.RejectionGate, confidence float64) *domain.Rejection {
		return &domain.Rejection{
			Gate:       gate,
			Direction:  tech.Direction,
			Technical:  tech.Confidence,
			Ensemble:   ensembleProb,
			Confidence: confidence,
			ADX:        adx,
		}
	}

	// Gate 1: no trend, no trade. Exactly the threshold still fails.
	if adx <= s.cfg.MinADX {
		return Result{}, reject(domain.GateTrendStrength, 0)
	}

	// Gate 2: the battery itself must clear its floor.
	if tech.Direction == domain.DirectionNeutral {
		return Result{}, reject(domain.GateNeutral, 0)
	}
	if tech.Confidence < s.cfg.TechnicalFloor {
		return Result{}, reject(domain.GateTechnical, 0)
	}

	// Model probability is expressed for the proposed direction: the
	// raw ensemble output is P(up).
	modelProb := ensembleProb
	if tech.Direction.IsShort() {
		modelProb = 1 - ensembleProb
	}

	techWeight, modelWeight := 0.60, 0.40
	if s.cfg.Profile == ProfileModel {
		techWeight, modelWeight = 0.30, 0.70
	}

	boost := smartMoney.Boost
	if smartMoney.Provenance == domain.ProvenanceFallback {
		boost = 0
	}

	confidence := techWeight*tech.Confidence + modelWeight*modelProb + s.cfg.SmartMoneyWeight*boost

	if regimeAgrees(regime, tech.Direction) {
		confidence *= 1.1
	}
	if regime.CrisisMode {
		confidence *= 0.7
	}
	if confidence > s.cfg.MaxConfidence {
		confidence = s.cfg.MaxConfidence
	}
	if confidence < 0 {
		confidence = 0
	}

	// Gate 3: final confidence. Failures here are the near misses
	// worth recording.
	if confidence < s.cfg.MinConfidence {
		return Result{}, reject(domain.GateConfidence, confidence)
	}

	return Result{Direction: tech.Direction, Confidence: confidence, Technical: tech}, nil
}

func regimeAgrees(regime domain.MarketRegime, direction domain.Direction) bool {
	return (regime.Trend == domain.TrendBullish && direction.IsLong()) ||
		(regime.Trend == domain.TrendBearish && direction.IsShort())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
