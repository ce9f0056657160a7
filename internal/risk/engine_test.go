package risk

import (
	"math"
	"testing"
	"time"

	"signalforge/internal/domain"
)

func calmRegime() domain.MarketRegime {
	return domain.MarketRegime{Trend: domain.TrendBullish, Phase: domain.PhaseMarkup, Volatility: domain.VolatilityLow}
}

func TestLongPlanGeometry(t *testing.T) {
	e := NewEngine(Config{})
	plan, err := e.Build(domain.DirectionBuy, 100, 2, 32, 0.85, calmRegime(), PortfolioState{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if plan.StopLoss >= 100 {
		t.Fatalf("long stop %v must sit below entry", plan.StopLoss)
	}
	if len(plan.TakeProfits) != 3 {
		t.Fatalf("want 3 take profits, got %v", plan.TakeProfits)
	}
	prev := 100.0
	for i, tp := range plan.TakeProfits {
		if tp <= prev {
			t.Fatalf("TP%d = %v not strictly above %v", i+1, tp, prev)
		}
		prev = tp
	}
	if plan.RiskReward <= 1 {
		t.Fatalf("risk reward = %v", plan.RiskReward)
	}
}

func TestShortPlanGeometry(t *testing.T) {
	e := NewEngine(Config{})
	regime := domain.MarketRegime{Trend: domain.TrendBearish, Phase: domain.PhaseMarkdown, Volatility: domain.VolatilityMedium}
	plan, err := e.Build(domain.DirectionSell, 100, 2, 32, 0.85, regime, PortfolioState{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if plan.StopLoss <= 100 {
		t.Fatalf("short stop %v must sit above entry", plan.StopLoss)
	}
	prev := 100.0
	for i, tp := range plan.TakeProfits {
		if tp >= prev {
			t.Fatalf("TP%d = %v not strictly below %v", i+1, tp, prev)
		}
		prev = tp
	}
}

func TestNeutralDirectionRejected(t *testing.T) {
	e := NewEngine(Config{})
	if _, err := e.Build(domain.DirectionNeutral, 100, 2, 30, 0.9, calmRegime(), PortfolioState{}); err == nil {
		t.Fatal("expected error for neutral direction")
	}
}

func TestStopDistanceFloor(t *testing.T) {
	e := NewEngine(Config{})
	// Tiny ATR: the stop must still be at least 0.5% away.
	plan, err := e.Build(domain.DirectionBuy, 100, 0.01, 32, 0.85, calmRegime(), PortfolioState{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := 100 - plan.StopLoss; got < 0.5-1e-9 {
		t.Fatalf("stop distance %v below 0.5%% floor", got)
	}
}

func TestStrongTrendTightensStop(t *testing.T) {
	e := NewEngine(Config{})
	weak, _ := e.Build(domain.DirectionBuy, 100, 2, 18, 0.85, calmRegime(), PortfolioState{})
	strong, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.85, calmRegime(), PortfolioState{})

	if 100-strong.StopLoss >= 100-weak.StopLoss {
		t.Fatalf("ADX 32 stop %v should be tighter than ADX 18 stop %v", strong.StopLoss, weak.StopLoss)
	}
}

func TestCrisisWidensStop(t *testing.T) {
	e := NewEngine(Config{})
	crisis := calmRegime()
	crisis.CrisisMode = true
	crisis.Volatility = domain.VolatilityHigh

	calm, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.85, calmRegime(), PortfolioState{})
	rough, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.85, crisis, PortfolioState{})
	if 100-rough.StopLoss <= 100-calm.StopLoss {
		t.Fatalf("crisis stop %v should be wider than calm stop %v", rough.StopLoss, calm.StopLoss)
	}
}

func TestKellyClampAndDefaults(t *testing.T) {
	e := NewEngine(Config{})
	plan, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.97, calmRegime(), PortfolioState{})

	if plan.WinLossRatio != 2.0 {
		t.Fatalf("with no history win/loss ratio = %v, want default 2.0", plan.WinLossRatio)
	}
	if plan.KellyFraction < 0.01 || plan.KellyFraction > 0.25 {
		t.Fatalf("kelly = %v outside [0.01, 0.25]", plan.KellyFraction)
	}
}

func TestWinLossRatioFromOutcomes(t *testing.T) {
	e := NewEngine(Config{})
	now := time.Now()
	// 3 wins averaging +6%, 3 losses averaging -2%: ratio 3.
	for i := 0; i < 3; i++ {
		e.RecordOutcome(domain.TradeOutcome{Win: true, ReturnPct: 0.06, ResolvedAt: now})
		e.RecordOutcome(domain.TradeOutcome{Win: false, ReturnPct: -0.02, ResolvedAt: now})
	}
	plan, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.85, calmRegime(), PortfolioState{})
	if math.Abs(plan.WinLossRatio-3.0) > 1e-9 {
		t.Fatalf("win/loss ratio = %v, want 3.0", plan.WinLossRatio)
	}
}

func TestOutcomeWindowTrims(t *testing.T) {
	e := NewEngine(Config{OutcomeWindow: 20})
	now := time.Now()
	// 30 old losses followed by 20 wins: only the window should count,
	// leaving no losses and therefore the default ratio.
	for i := 0; i < 30; i++ {
		e.RecordOutcome(domain.TradeOutcome{Win: false, ReturnPct: -0.05, ResolvedAt: now})
	}
	for i := 0; i < 20; i++ {
		e.RecordOutcome(domain.TradeOutcome{Win: true, ReturnPct: 0.04, ResolvedAt: now})
	}
	plan, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.85, calmRegime(), PortfolioState{})
	if plan.WinLossRatio != 2.0 {
		t.Fatalf("ratio = %v, want default once losses age out", plan.WinLossRatio)
	}
}

func TestPositionCappedByMaxRisk(t *testing.T) {
	e := NewEngine(Config{Capital: 10_000, MaxRiskPerTrade: 0.02})
	plan, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.97, calmRegime(), PortfolioState{})

	stopFraction := (100 - plan.StopLoss) / 100
	if loss := plan.PositionPct * stopFraction; loss > 0.02+1e-9 {
		t.Fatalf("stop-out loss fraction %v exceeds 2%% cap", loss)
	}
}

func TestCrisisDampensPosition(t *testing.T) {
	e := NewEngine(Config{MaxRiskPerTrade: 1}) // disable the risk cap
	crisis := calmRegime()
	crisis.CrisisMode = true
	crisis.Volatility = domain.VolatilityHigh

	calm, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.85, calmRegime(), PortfolioState{})
	rough, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.85, crisis, PortfolioState{})
	want := calm.PositionPct * 0.7 * 0.5
	if math.Abs(rough.PositionPct-want) > 1e-9 {
		t.Fatalf("crisis position = %v, want %v", rough.PositionPct, want)
	}
}

func TestLeverageHighTier(t *testing.T) {
	e := NewEngine(Config{})
	// Calm market, near-certain signal: the top tier should resolve.
	plan, _ := e.Build(domain.DirectionBuy, 100, 1.2, 32, 0.97, calmRegime(), PortfolioState{})
	if plan.Leverage != 50 {
		t.Fatalf("leverage = %v, want 50", plan.Leverage)
	}
}

func TestLeverageFloorInRoughMarkets(t *testing.T) {
	e := NewEngine(Config{})
	rough := domain.MarketRegime{Trend: domain.TrendNeutral, Phase: domain.PhaseDistribution, Volatility: domain.VolatilityHigh, CrisisMode: true}
	plan, _ := e.Build(domain.DirectionSell, 100, 9, 26, 0.60, rough, PortfolioState{})
	if plan.Leverage < 1 || plan.Leverage > 5 {
		t.Fatalf("leverage = %v, want within [1, 5]", plan.Leverage)
	}
}

func TestPortfolioAndCorrelationAdjustments(t *testing.T) {
	e := NewEngine(Config{})
	base, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.90, calmRegime(), PortfolioState{})
	loaded, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.90, calmRegime(), PortfolioState{AggregateLeverage: 25, OpenPositions: 2})

	if loaded.Leverage >= base.Leverage {
		t.Fatalf("loaded portfolio leverage %v should be below base %v", loaded.Leverage, base.Leverage)
	}
}

func TestDrawdownHardCap(t *testing.T) {
	e := NewEngine(Config{DrawdownLimit: 0.12, DrawdownLevCap: 8})
	plan, _ := e.Build(domain.DirectionBuy, 100, 2, 32, 0.97, calmRegime(), PortfolioState{MaxDrawdown: 0.15})
	if plan.Leverage > 8 {
		t.Fatalf("leverage = %v, want <= 8 past the drawdown limit", plan.Leverage)
	}
}
