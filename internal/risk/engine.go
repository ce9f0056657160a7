// Package risk converts a synthesized signal into stop, targets,
// position size and leverage.
package risk

import (
	"fmt"
	"sync"

	"signalforge/internal/domain"
)

type Config struct {
	// Capital is the account equity the position fraction applies to.
	Capital float64
	// MaxRiskPerTrade caps the fraction of capital lost if the stop
	// is hit.
	MaxRiskPerTrade float64
	MaxLeverage     float64
	// DrawdownLimit and DrawdownLevCap hard-limit leverage once the
	// recorded max drawdown exceeds the limit.
	DrawdownLimit  float64
	DrawdownLevCap float64
	// OutcomeWindow is how many resolved trades feed the dynamic
	// win/loss ratio.
	OutcomeWindow int
}

// PortfolioState is the caller's view of everything already at risk.
type PortfolioState struct {
	AggregateLeverage float64
	// OpenPositions counts open positions sharing this signal's
	// underlying.
	OpenPositions int
	MaxDrawdown   float64
}

// Plan is the complete risk treatment for one accepted signal.
type Plan struct {
	StopLoss      float64
	TakeProfits   []float64
	PositionPct   float64
	KellyFraction float64
	Leverage      float64
	RiskReward    float64
	WinLossRatio  float64
}

// Engine derives stops, targets, Kelly sizing and capped leverage. It
// keeps a short window of resolved outcomes to estimate the realized
// win/loss payoff ratio.
type Engine struct {
	cfg Config

	mu       sync.Mutex
	outcomes []domain.TradeOutcome
}

func NewEngine(cfg Config) *Engine {
	if cfg.Capital <= 0 {
		cfg.Capital = 10_000
	}
	if cfg.MaxRiskPerTrade <= 0 {
		cfg.MaxRiskPerTrade = 0.02
	}
	if cfg.MaxLeverage <= 0 || cfg.MaxLeverage > 50 {
		cfg.MaxLeverage = 50
	}
	if cfg.DrawdownLimit <= 0 {
		cfg.DrawdownLimit = 0.12
	}
	if cfg.DrawdownLevCap <= 0 {
		cfg.DrawdownLevCap = 8
	}
	if cfg.OutcomeWindow <= 0 {
		cfg.OutcomeWindow = 20
	}
	return &Engine{cfg: cfg}
}

// RecordOutcome appends a resolved trade, keeping only the configured
// window.
func (e *Engine) RecordOutcome(outcome domain.TradeOutcome) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outcomes = append(e.outcomes, outcome)
	if len(e.outcomes) > e.cfg.OutcomeWindow {
		e.outcomes = e.outcomes[len(e.outcomes)-e.cfg.OutcomeWindow:]
	}
}

// Build computes the full risk plan. Direction must be a tradeable
// (non-neutral) direction; entry, atr and adx come from the indicator
// snapshot the signal was synthesized from.
func (e *Engine) Build(
	direction domain.Direction,
	entry, atr, adx, confidence float64,
	regime domain.MarketRegime,
	portfolio PortfolioState,
) (Plan, error) {
	if entry <= 0 {
		return Plan{}, fmt.Errorf("invalid entry price %v", entry)
	}
	if atr <= 0 {
		// Degenerate ATR still yields a floored stop.
		atr = entry * 0.001
	}
	if !direction.IsLong() && !direction.IsShort() {
		return Plan{}, fmt.Errorf("cannot size a %s signal", direction)
	}

	stopDistance := e.stopDistance(entry, atr, adx, regime)
	targets := targetDistances(stopDistance, adx, regime)

	plan := Plan{
		WinLossRatio: e.winLossRatio(),
	}
	if direction.IsLong() {
		plan.StopLoss = entry - stopDistance
		plan.TakeProfits = []float64{entry + targets[0], entry + targets[1], entry + targets[2]}
	} else {
		plan.StopLoss = entry + stopDistance
		plan.TakeProfits = []float64{entry - targets[0], entry - targets[1], entry - targets[2]}
	}
	plan.RiskReward = targets[1] / stopDistance

	plan.KellyFraction = kellyFraction(confidence, plan.WinLossRatio)
	plan.PositionPct = e.positionFraction(plan.KellyFraction, stopDistance/entry, regime)
	plan.Leverage = e.leverage(confidence, regime, portfolio)

	return plan, nil
}

// stopDistance is ATR scaled by the volatility tier, tightened in
// strong trends and buffered in ranging phases, floored at 0.5% of
// price.
func (e *Engine) stopDistance(entry, atr, adx float64, regime domain.MarketRegime) float64 {
	base := 2.4
	switch regime.Volatility {
	case domain.VolatilityLow:
		base = 1.8
	case domain.VolatilityMedium:
		base = 2.4
	case domain.VolatilityHigh:
		base = 3.2
	}
	if regime.CrisisMode {
		base = 4.5
	}

	tighten := 1.0
	switch {
	case adx > 30:
		tighten = 0.85
	case adx > 20:
		tighten = 0.95
	}

	buffer := 1.0
	if regime.Phase == domain.PhaseAccumulation || regime.Phase == domain.PhaseDistribution {
		buffer = 1.2
	}
	if regime.CrisisMode {
		buffer *= 1.4
	}

	distance := atr * base * tighten * buffer
	if floor := entry * 0.005; distance < floor {
		distance = floor
	}
	return distance
}

// targetDistances returns the three take-profit distances, strictly
// increasing, scaled out in strong trends and trending phases.
func targetDistances(stopDistance, adx float64, regime domain.MarketRegime) [3]float64 {
	expansion := 1.0
	switch {
	case adx > 35:
		expansion = 1.6
	case adx > 28:
		expansion = 1.3
	case adx > 20:
		expansion = 1.15
	}

	phase := 1.0
	if regime.Phase == domain.PhaseMarkup || regime.Phase == domain.PhaseMarkdown {
		phase = 1.25
	}

	scale := expansion * phase
	return [3]float64{
		stopDistance * 1.5 * scale,
		stopDistance * 3.0 * scale,
		stopDistance * 6.0 * scale,
	}
}

// winLossRatio estimates the average win over the average loss from
// recent resolved outcomes, defaulting to 2.0 with thin history.
func (e *Engine) winLossRatio() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.outcomes) < 5 {
		return 2.0
	}
	var winSum, lossSum float64
	var wins, losses int
	for _, o := range e.outcomes {
		if o.Win {
			winSum += o.ReturnPct
			wins++
		} else {
			lossSum += -o.ReturnPct
			losses++
		}
	}
	if wins == 0 || losses == 0 || lossSum <= 0 {
		return 2.0
	}
	ratio := (winSum / float64(wins)) / (lossSum / float64(losses))
	if ratio <= 0 {
		return 2.0
	}
	return ratio
}

// kellyFraction maps confidence to an implied win rate, applies the
// Kelly formula and clamps to a conservative band.
func kellyFraction(confidence, winLossRatio float64) float64 {
	winRate := 0.30 + 0.45*confidence
	if winRate > 0.80 {
		winRate = 0.80
	}
	kelly := winRate - (1-winRate)/winLossRatio
	if kelly < 0.01 {
		return 0.01
	}
	if kelly > 0.25 {
		return 0.25
	}
	return kelly
}

// positionFraction converts Kelly into a capital fraction, dampened in
// rough markets and capped by the per-trade risk limit.
func (e *Engine) positionFraction(kelly, stopFraction float64, regime domain.MarketRegime) float64 {
	fraction := kelly
	if regime.Volatility == domain.VolatilityHigh {
		fraction *= 0.7
	}
	if regime.CrisisMode {
		fraction *= 0.5
	}

	// Cap so a stopped-out trade never loses more than the per-trade
	// risk limit.
	if stopFraction > 0 {
		if maxFraction := e.cfg.MaxRiskPerTrade / stopFraction; fraction > maxFraction {
			fraction = maxFraction
		}
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return fraction
}

// leverage is the minimum of the confidence tier, the volatility tier,
// the portfolio and correlation adjustments and the absolute ceiling,
// floored at 1x. Recorded drawdown past the limit hard-caps it.
func (e *Engine) leverage(confidence float64, regime domain.MarketRegime, portfolio PortfolioState) float64 {
	var confTier float64
	switch {
	case confidence >= 0.95:
		confTier = 50
	case confidence >= 0.90:
		confTier = 30
	case confidence >= 0.85:
		confTier = 20
	case confidence >= 0.80:
		confTier = 10
	case confidence >= 0.75:
		confTier = 5
	default:
		confTier = 3
	}

	volTier := 20.0
	switch regime.Volatility {
	case domain.VolatilityLow:
		volTier = 50
	case domain.VolatilityMedium:
		volTier = 20
	case domain.VolatilityHigh:
		volTier = 10
	}
	if regime.CrisisMode {
		volTier = 5
	}

	portfolioAdj := 1.0
	switch {
	case portfolio.AggregateLeverage >= 35:
		portfolioAdj = 0.5
	case portfolio.AggregateLeverage >= 20:
		portfolioAdj = 0.7
	}

	correlationAdj := 1.0
	for i := 0; i < portfolio.OpenPositions; i++ {
		correlationAdj *= 0.8
	}
	if correlationAdj < 0.5 {
		correlationAdj = 0.5
	}

	lev := minFloat(confTier, volTier, e.cfg.MaxLeverage) * portfolioAdj * correlationAdj
	if portfolio.MaxDrawdown > e.cfg.DrawdownLimit && lev > e.cfg.DrawdownLevCap {
		lev = e.cfg.DrawdownLevCap
	}
	if lev < 1 {
		lev = 1
	}
	return lev
}

func minFloat(vals ...float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
