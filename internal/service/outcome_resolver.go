package service

import (
	"context"
	"log"
	"time"

	"signalforge/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type SignalResolverStore interface {
	ListExpiredUnresolved(ctx context.Context, now time.Time, limit int) ([]domain.EnhancedSignal, error)
	MarkResolved(ctx context.Context, signalID int64) error
	InsertOutcome(ctx context.Context, outcome domain.TradeOutcome) (*domain.TradeOutcome, error)
}

type CandleRangeReader interface {
	GetRange(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]domain.Candle, error)
}

// OutcomeRecorder feeds resolved trades back into position sizing.
type OutcomeRecorder interface {
	RecordOutcome(outcome domain.TradeOutcome)
}

// WeightApplier refreshes ensemble member weights from per-model hit
// rates.
type WeightApplier interface {
	ApplyHitRates(hitRates map[string]float64) error
}

// OutcomeResolver grades expired signals against the candles that
// printed during their validity window and feeds the results back into
// the risk engine and the ensemble weight table.
type OutcomeResolver struct {
	tracer   trace.Tracer
	signals  SignalResolverStore
	candles  CandleRangeReader
	recorder OutcomeRecorder
	weights  WeightApplier
	now      func() time.Time
}

func NewOutcomeResolver(
	tracer trace.Tracer,
	signals SignalResolverStore,
	candles CandleRangeReader,
	recorder OutcomeRecorder,
	weights WeightApplier,
) *OutcomeResolver {
	return &OutcomeResolver{
		tracer:   tracer,
		signals:  signals,
		candles:  candles,
		recorder: recorder,
		weights:  weights,
		now:      time.Now,
	}
}

// ResolveOutcomes grades up to limit expired signals. Signals whose
// candle history has not landed yet are left unresolved for the next
// sweep.
func (r *OutcomeResolver) ResolveOutcomes(ctx context.Context, limit int) (int, error) {
	ctx, span := r.tracer.Start(ctx, "outcome-resolver.resolve")
	defer span.End()

	expired, err := r.signals.ListExpiredUnresolved(ctx, r.now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	resolved := 0
	hits := map[string]int{}
	totals := map[string]int{}

	for i := range expired {
		signal := expired[i]
		candles, err := r.candles.GetRange(ctx, signal.Symbol, signal.Timeframe, signal.CreatedAt, signal.ValidUntil)
		if err != nil {
			log.Printf("resolve %s %s signal %d: %v", signal.Symbol, signal.Timeframe, signal.ID, err)
			continue
		}
		if len(candles) == 0 {
			continue
		}

		outcome := gradeSignal(signal, candles)
		if _, err := r.signals.InsertOutcome(ctx, outcome); err != nil {
			log.Printf("store outcome for signal %d: %v", signal.ID, err)
			continue
		}
		if err := r.signals.MarkResolved(ctx, signal.ID); err != nil {
			log.Printf("mark signal %d resolved: %v", signal.ID, err)
			continue
		}
		if r.recorder != nil {
			r.recorder.RecordOutcome(outcome)
		}

		actualUp := candles[len(candles)-1].Close > signal.EntryPrice
		for model, prob := range signal.Rationale.PerModel {
			totals[model]++
			if (prob > 0.5) == actualUp {
				hits[model]++
			}
		}
		resolved++
	}

	if r.weights != nil && len(totals) > 0 {
		rates := make(map[string]float64, len(totals))
		for model, total := range totals {
			rates[model] = float64(hits[model]) / float64(total)
		}
		if err := r.weights.ApplyHitRates(rates); err != nil {
			log.Printf("refresh ensemble weights: %v", err)
		}
	}

	span.SetAttributes(attribute.Int("outcomes.resolved", resolved))
	return resolved, nil
}

// gradeSignal walks the validity window bar by bar. The stop is
// checked before the first target inside each bar: when one bar spans
// both levels there is no way to know which printed first, so the
// loss is assumed.
func gradeSignal(signal domain.EnhancedSignal, candles []domain.Candle) domain.TradeOutcome {
	entry := signal.EntryPrice
	stop := signal.StopLoss
	target := 0.0
	if len(signal.TakeProfits) > 0 {
		target = signal.TakeProfits[0]
	}

	exit := candles[len(candles)-1].Close
	for i := range candles {
		bar := candles[i]
		if signal.Direction.IsLong() {
			if bar.Low <= stop {
				exit = stop
				break
			}
			if target > 0 && bar.High >= target {
				exit = target
				break
			}
		} else {
			if bar.High >= stop {
				exit = stop
				break
			}
			if target > 0 && bar.Low <= target {
				exit = target
				break
			}
		}
	}

	returnPct := (exit - entry) / entry
	if signal.Direction.IsShort() {
		returnPct = -returnPct
	}

	return domain.TradeOutcome{
		SignalID:   signal.ID,
		Symbol:     signal.Symbol,
		Timeframe:  signal.Timeframe,
		Direction:  signal.Direction,
		ReturnPct:  returnPct,
		Win:        returnPct > 0,
		ResolvedAt: candles[len(candles)-1].OpenTime,
	}
}
