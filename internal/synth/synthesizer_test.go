package synth

import (
	"math"
	"testing"

	"signalforge/internal/domain"
	"signalforge/internal/indicator"
)

func bullishSnapshot() indicator.Snapshot {
	return indicator.Snapshot{
		RSI: 55, RSIUpper: 70, RSILower: 30,
		EMACrossBull: true,
		MACDHist:     1.2,
		BBPosition:   0.8,
		ADX:          32,
	}
}

func bullishRegime() domain.MarketRegime {
	return domain.MarketRegime{Trend: domain.TrendBullish, Phase: domain.PhaseMarkup, Volatility: domain.VolatilityMedium}
}

func liveContext(boost float64) domain.ScoredContext {
	return domain.ScoredContext{Boost: boost, Provenance: domain.ProvenanceLive}
}

func TestTechnicalBatteryCallsLong(t *testing.T) {
	s := NewSynthesizer(Config{})
	tech := s.EvaluateTechnical(bullishSnapshot(), bullishRegime())

	if !tech.Direction.IsLong() {
		t.Fatalf("direction = %v, want long", tech.Direction)
	}
	if math.Abs(tech.Bullish-0.60) > 1e-9 || tech.Bearish != 0 {
		t.Fatalf("points = %v / %v, want 0.60 / 0", tech.Bullish, tech.Bearish)
	}
	if tech.Checks["ema_cross"] != "bullish" || tech.Checks["macd"] != "positive" {
		t.Fatalf("unexpected checks: %v", tech.Checks)
	}
}

func TestTechnicalBatteryNeutralOnMixedSignals(t *testing.T) {
	s := NewSynthesizer(Config{})
	snap := bullishSnapshot()
	snap.MACDHist = -1 // bear 0.20 vs bull 0.25: inside separation
	snap.ADX = 10
	tech := s.EvaluateTechnical(snap, bullishRegime())
	if tech.Direction != domain.DirectionNeutral {
		t.Fatalf("direction = %v, want NEUTRAL on mixed battery", tech.Direction)
	}
}

func TestADXGateRejectsFirst(t *testing.T) {
	s := NewSynthesizer(Config{MinADX: 25})
	tech := Technical{Direction: domain.DirectionBuy, Confidence: 0.95}

	_, rej := s.Synthesize(tech, 0.99, liveContext(0.3), bullishRegime(), 24)
	if rej == nil || rej.Gate != domain.GateTrendStrength {
		t.Fatalf("rejection = %+v, want trend_strength gate", rej)
	}
}

func TestADXGateBoundaryAtExactThreshold(t *testing.T) {
	s := NewSynthesizer(Config{MinADX: 25})
	tech := Technical{Direction: domain.DirectionBuy, Confidence: 0.95}

	_, rej := s.Synthesize(tech, 0.99, liveContext(0.3), bullishRegime(), 25)
	if rej == nil || rej.Gate != domain.GateTrendStrength {
		t.Fatalf("exactly at threshold must still reject, got %+v", rej)
	}
	res, rej := s.Synthesize(tech, 0.99, liveContext(0.3), bullishRegime(), 25.01)
	if rej != nil {
		t.Fatalf("just above threshold should pass, got %+v", rej)
	}
	if res.Direction != domain.DirectionBuy {
		t.Fatalf("direction = %v", res.Direction)
	}
}

func TestNeutralDirectionAlwaysRejected(t *testing.T) {
	s := NewSynthesizer(Config{})
	tech := Technical{Direction: domain.DirectionNeutral, Confidence: 0.9}
	_, rej := s.Synthesize(tech, 0.99, liveContext(0.3), bullishRegime(), 40)
	if rej == nil || rej.Gate != domain.GateNeutral {
		t.Fatalf("rejection = %+v, want neutral_direction gate", rej)
	}
}

func TestTechnicalFloorGate(t *testing.T) {
	s := NewSynthesizer(Config{TechnicalFloor: 0.45})
	tech := Technical{Direction: domain.DirectionBuy, Confidence: 0.30}
	_, rej := s.Synthesize(tech, 0.99, liveContext(0.3), bullishRegime(), 40)
	if rej == nil || rej.Gate != domain.GateTechnical {
		t.Fatalf("rejection = %+v, want technical_floor gate", rej)
	}
}

func TestConfidenceGateRecordsNearMiss(t *testing.T) {
	s := NewSynthesizer(Config{MinConfidence: 0.90})
	tech := Technical{Direction: domain.DirectionBuy, Confidence: 0.55}

	_, rej := s.Synthesize(tech, 0.55, domain.NeutralContext("test"), domain.MarketRegime{Trend: domain.TrendNeutral}, 30)
	if rej == nil || rej.Gate != domain.GateConfidence {
		t.Fatalf("rejection = %+v, want min_confidence gate", rej)
	}
	if rej.Technical != 0.55 || rej.Ensemble != 0.55 || rej.ADX != 30 {
		t.Fatalf("near miss must carry component scores: %+v", rej)
	}
	if rej.Confidence <= 0 {
		t.Fatalf("near miss must carry the blended confidence, got %v", rej.Confidence)
	}
}

func TestFallbackContextContributesNothing(t *testing.T) {
	s := NewSynthesizer(Config{MinConfidence: 0.10})
	tech := Technical{Direction: domain.DirectionBuy, Confidence: 0.60}
	regime := domain.MarketRegime{Trend: domain.TrendNeutral}

	live, rej := s.Synthesize(tech, 0.70, liveContext(0.30), regime, 30)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	fallback, rej := s.Synthesize(tech, 0.70, domain.ScoredContext{Boost: 0.30, Provenance: domain.ProvenanceFallback}, regime, 30)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if fallback.Confidence >= live.Confidence {
		t.Fatalf("fallback boost must be discounted to zero: live %v, fallback %v", live.Confidence, fallback.Confidence)
	}
	// Technical profile: 0.6*0.60 + 0.4*0.70 with no boost.
	if math.Abs(fallback.Confidence-0.64) > 1e-9 {
		t.Fatalf("fallback confidence = %v, want 0.64", fallback.Confidence)
	}
}

func TestRegimeAgreementAndCrisisMultipliers(t *testing.T) {
	s := NewSynthesizer(Config{MinConfidence: 0.10})
	tech := Technical{Direction: domain.DirectionBuy, Confidence: 0.60}
	ctx := domain.NeutralContext("test")

	base, _ := s.Synthesize(tech, 0.70, ctx, domain.MarketRegime{Trend: domain.TrendNeutral}, 30)
	agree, _ := s.Synthesize(tech, 0.70, ctx, domain.MarketRegime{Trend: domain.TrendBullish}, 30)
	if math.Abs(agree.Confidence-base.Confidence*1.1) > 1e-9 {
		t.Fatalf("agreement multiplier: base %v, agree %v", base.Confidence, agree.Confidence)
	}

	crisis, _ := s.Synthesize(tech, 0.70, ctx, domain.MarketRegime{Trend: domain.TrendNeutral, CrisisMode: true}, 30)
	if math.Abs(crisis.Confidence-base.Confidence*0.7) > 1e-9 {
		t.Fatalf("crisis dampening: base %v, crisis %v", base.Confidence, crisis.Confidence)
	}
}

func TestConfidenceCeiling(t *testing.T) {
	s := NewSynthesizer(Config{MinConfidence: 0.10, MaxConfidence: 0.97})
	tech := Technical{Direction: domain.DirectionBuy, Confidence: 1.0}
	res, rej := s.Synthesize(tech, 1.0, liveContext(0.30), bullishRegime(), 40)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if res.Confidence != 0.97 {
		t.Fatalf("confidence = %v, want ceiling 0.97", res.Confidence)
	}
}

func TestDeploymentProfilesBlendDifferently(t *testing.T) {
	tech := Technical{Direction: domain.DirectionBuy, Confidence: 0.50}
	ctx := domain.NeutralContext("test")
	regime := domain.MarketRegime{Trend: domain.TrendNeutral}

	technical := NewSynthesizer(Config{Profile: ProfileTechnical, MinConfidence: 0.10})
	model := NewSynthesizer(Config{Profile: ProfileModel, MinConfidence: 0.10})

	// Strong model signal, weak technicals: the model profile should
	// end up more confident.
	a, _ := technical.Synthesize(tech, 0.95, ctx, regime, 30)
	b, _ := model.Synthesize(tech, 0.95, ctx, regime, 30)
	if math.Abs(a.Confidence-(0.60*0.50+0.40*0.95)) > 1e-9 {
		t.Fatalf("technical profile confidence = %v", a.Confidence)
	}
	if math.Abs(b.Confidence-(0.30*0.50+0.70*0.95)) > 1e-9 {
		t.Fatalf("model profile confidence = %v", b.Confidence)
	}
	if b.Confidence <= a.Confidence {
		t.Fatalf("model profile should trust the ensemble more: %v vs %v", b.Confidence, a.Confidence)
	}
}

func TestShortDirectionInvertsModelProbability(t *testing.T) {
	s := NewSynthesizer(Config{MinConfidence: 0.10})
	tech := Technical{Direction: domain.DirectionSell, Confidence: 0.60}
	ctx := domain.NeutralContext("test")
	regime := domain.MarketRegime{Trend: domain.TrendNeutral}

	// P(up)=0.2 strongly supports a short.
	res, rej := s.Synthesize(tech, 0.20, ctx, regime, 30)
	if rej != nil {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if math.Abs(res.Confidence-(0.60*0.60+0.40*0.80)) > 1e-9 {
		t.Fatalf("confidence = %v", res.Confidence)
	}
}
