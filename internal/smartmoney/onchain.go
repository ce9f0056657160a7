package smartmoney

import (
	"context"
	"fmt"
	"log"
	"strings"

	"signalforge/internal/domain"
	"signalforge/internal/provider"

	"go.opentelemetry.io/otel/trace"
)

// ChainSource supplies a normalized on-chain activity snapshot.
type ChainSource interface {
	FetchSnapshot(ctx context.Context) (*provider.OnChainSnapshot, error)
}

// ChainScorer turns on-chain network activity into a small directional
// nudge: elevated activity supports continuation of the proposed trade,
// depressed activity weighs against it. Its contribution is kept an
// order of magnitude below the smart-money scorer's.
type ChainScorer struct {
	source ChainSource
	tracer trace.Tracer
}

func NewChainScorer(source ChainSource, tracer trace.Tracer) *ChainScorer {
	return &ChainScorer{source: source, tracer: tracer}
}

func (s *ChainScorer) Score(ctx context.Context, symbol string, price float64, direction domain.Direction) domain.ScoredContext {
	ctx, span := s.tracer.Start(ctx, "smartmoney.onchain.score")
	defer span.End()

	// Only the BTC chain is wired; other symbols get the flagged
	// neutral fallback.
	if !strings.HasPrefix(symbol, "BTC") {
		return domain.NeutralContext("no on-chain source for symbol")
	}

	snap, err := s.source.FetchSnapshot(ctx)
	if err != nil {
		log.Printf("smartmoney: on-chain fetch failed for %s: %v", symbol, err)
		return domain.NeutralContext(fmt.Sprintf("on-chain unavailable: %v", err))
	}

	boost := 0.05 * snap.Score
	if direction.IsShort() {
		boost = -boost
	}
	boost = clamp(boost, -0.05, 0.05)

	tag := "activity_normal"
	if snap.Score > 0.3 {
		tag = "activity_elevated"
	} else if snap.Score < -0.3 {
		tag = "activity_depressed"
	}

	return domain.ScoredContext{
		Boost:      boost,
		Provenance: domain.ProvenanceLive,
		Rationale:  map[string]string{"onchain": tag},
		Metrics: map[string]float64{
			"is_real_data":   1,
			"activity_score": snap.Score,
		},
	}
}
