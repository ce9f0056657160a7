// Package engine orchestrates one signal evaluation end to end: regime
// classification, adaptive indicators, statistical features, context
// scoring, ensemble inference, confidence synthesis and risk planning.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"signalforge/internal/cooldown"
	"signalforge/internal/domain"
	"signalforge/internal/feature"
	"signalforge/internal/indicator"
	"signalforge/internal/ml/ensemble"
	"signalforge/internal/regime"
	"signalforge/internal/risk"
	"signalforge/internal/stats"
	"signalforge/internal/synth"

	"go.opentelemetry.io/otel/trace"
)

// ContextScorer is one pluggable external-context source. Scorers do
// network I/O and are granted a bounded timeout; they must return a
// flagged neutral fallback instead of failing.
type ContextScorer interface {
	Score(ctx context.Context, symbol string, price float64, direction domain.Direction) domain.ScoredContext
}

type Config struct {
	// ScorerTimeout bounds the context-scorer fan-out; a stalled
	// provider never stalls the evaluation.
	ScorerTimeout time.Duration
	// ValidityBars is how many bars of the evaluated timeframe a
	// signal stays actionable.
	ValidityBars int
}

type Engine struct {
	tracer     trace.Tracer
	classifier *regime.Classifier
	indicators *indicator.Engine
	stats      *stats.Engine
	features   *feature.Builder
	ensemble   *ensemble.Ensemble
	synth      *synth.Synthesizer
	riskEngine *risk.Engine
	cache      *cooldown.Cache
	scorers    []ContextScorer
	cfg        Config
	now        func() time.Time
}

func New(
	tracer trace.Tracer,
	classifier *regime.Classifier,
	indicators *indicator.Engine,
	statsEngine *stats.Engine,
	features *feature.Builder,
	ens *ensemble.Ensemble,
	synthesizer *synth.Synthesizer,
	riskEngine *risk.Engine,
	cache *cooldown.Cache,
	scorers []ContextScorer,
	cfg Config,
) *Engine {
	if cfg.ScorerTimeout <= 0 {
		cfg.ScorerTimeout = 5 * time.Second
	}
	if cfg.ValidityBars <= 0 {
		cfg.ValidityBars = 4
	}
	return &Engine{
		tracer:     tracer,
		classifier: classifier,
		indicators: indicators,
		stats:      statsEngine,
		features:   features,
		ensemble:   ens,
		synth:      synthesizer,
		riskEngine: riskEngine,
		cache:      cache,
		scorers:    scorers,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Evaluate runs one symbol/timeframe window through the pipeline. It
// returns exactly one of: an accepted signal, a rejection record, or an
// error for fatal configuration problems (schema drift, empty input).
func (e *Engine) Evaluate(ctx context.Context, candles []domain.Candle, portfolio risk.PortfolioState) (*domain.EnhancedSignal, *domain.Rejection, error) {
	ctx, span := e.tracer.Start(ctx, "engine.evaluate")
	defer span.End()

	if len(candles) == 0 {
		return nil, nil, fmt.Errorf("empty candle window")
	}
	last := candles[len(candles)-1]
	symbol, timeframe := last.Symbol, last.Timeframe
	entry := last.Close
	now := e.now().UTC()

	marketRegime := e.classifier.Classify(candles, timeframe)
	snap := e.indicators.Compute(candles, marketRegime)

	tech := e.synth.EvaluateTechnical(snap, marketRegime)

	// Context scorers run concurrently with the local statistical
	// work; they only need the provisional direction.
	contextCh := make(chan domain.ScoredContext, 1)
	go func() {
		contextCh <- e.gatherContext(ctx, symbol, entry, tech.Direction)
	}()

	closes := make([]float64, len(candles))
	for i := range candles {
		closes[i] = candles[i].Close
	}
	statFeatures := e.stats.Compute(closes)

	smartMoney := <-contextCh

	vec := e.features.Build(snap, statFeatures, smartMoney)
	prediction, err := e.ensemble.Predict(vec)
	if err != nil {
		return nil, nil, fmt.Errorf("ensemble inference for %s %s: %w", symbol, timeframe, err)
	}

	result, rejection := e.synth.Synthesize(tech, prediction.Probability, smartMoney, marketRegime, snap.ADX)
	if rejection != nil {
		rejection.Symbol = symbol
		rejection.Timeframe = timeframe
		rejection.CreatedAt = now
		return nil, rejection, nil
	}

	plan, err := e.riskEngine.Build(result.Direction, entry, snap.ATR, snap.ADX, result.Confidence, marketRegime, portfolio)
	if err != nil {
		return nil, nil, fmt.Errorf("risk plan for %s %s: %w", symbol, timeframe, err)
	}

	signal := &domain.EnhancedSignal{
		Symbol:        symbol,
		Timeframe:     timeframe,
		Direction:     result.Direction,
		Confidence:    result.Confidence,
		EntryPrice:    entry,
		StopLoss:      plan.StopLoss,
		TakeProfits:   plan.TakeProfits,
		PositionPct:   plan.PositionPct,
		Leverage:      plan.Leverage,
		RiskReward:    plan.RiskReward,
		KellyFraction: plan.KellyFraction,
		Rationale: domain.SignalRationale{
			TechnicalScore:  tech.Confidence,
			EnsembleProb:    prediction.Probability,
			SmartMoneyBoost: smartMoney.Boost,
			PerModel:        prediction.PerModel,
			ContextSource:   smartMoney.Provenance,
			Regime:          marketRegime,
			ADX:             snap.ADX,
			RSI:             snap.RSI,
			ATR:             snap.ATR,
			Checks:          tech.Checks,
		},
		CreatedAt:  now,
		ValidUntil: now.Add(time.Duration(e.cfg.ValidityBars) * domain.TimeframeDuration(timeframe)),
	}

	if !e.cache.TryAcquire(symbol, timeframe, signal) {
		return nil, &domain.Rejection{
			Symbol:     symbol,
			Timeframe:  timeframe,
			Gate:       domain.GateCooldown,
			Direction:  result.Direction,
			Technical:  tech.Confidence,
			Ensemble:   prediction.Probability,
			Confidence: result.Confidence,
			ADX:        snap.ADX,
			CreatedAt:  now,
		}, nil
	}

	return signal, nil, nil
}

// gatherContext fans out to every scorer with a shared deadline and
// folds the results into one bounded contribution. A scorer that misses
// the deadline contributes the neutral fallback.
func (e *Engine) gatherContext(ctx context.Context, symbol string, price float64, direction domain.Direction) domain.ScoredContext {
	if len(e.scorers) == 0 {
		return domain.NeutralContext("no context scorers configured")
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScorerTimeout)
	defer cancel()

	results := make(chan domain.ScoredContext, len(e.scorers))
	for _, scorer := range e.scorers {
		go func(s ContextScorer) {
			results <- s.Score(ctx, symbol, price, direction)
		}(scorer)
	}

	combined := domain.ScoredContext{
		Provenance: domain.ProvenanceFallback,
		Rationale:  map[string]string{},
		Metrics:    map[string]float64{"is_real_data": 0},
	}
collect:
	for i := 0; i < len(e.scorers); i++ {
		select {
		case sc := <-results:
			if sc.Provenance == domain.ProvenanceLive {
				combined.Boost += sc.Boost
				combined.Provenance = domain.ProvenanceLive
				combined.Metrics["is_real_data"] = 1
			}
			for k, v := range sc.Rationale {
				combined.Rationale[k] = v
			}
			for k, v := range sc.Metrics {
				if k == "is_real_data" {
					continue
				}
				combined.Metrics[k] = v
			}
		case <-ctx.Done():
			log.Printf("engine: context scorer timed out for %s, using neutral fallback", symbol)
			combined.Rationale["timeout"] = "scorer deadline exceeded"
			break collect
		}
	}

	// The combined contribution honors the same bound as a single
	// scorer.
	if combined.Boost > 0.30 {
		combined.Boost = 0.30
	}
	if combined.Boost < -0.10 {
		combined.Boost = -0.10
	}
	return combined
}
