package smartmoney

import (
	"context"
	"fmt"
	"log"
	"math"

	"signalforge/internal/domain"
	"signalforge/internal/provider"

	"go.opentelemetry.io/otel/trace"
)

// FundingSource supplies the current perpetual funding rate.
type FundingSource interface {
	FetchFundingRate(ctx context.Context, symbol string) (*provider.FundingSnapshot, error)
}

// DepthSource supplies order book liquidity imbalance.
type DepthSource interface {
	FetchDepth(ctx context.Context, symbol string, levels int) (*provider.DepthSnapshot, error)
}

type Config struct {
	// Funding rate magnitude tiers, per 8h funding epoch.
	FundingMild    float64
	FundingStrong  float64
	FundingExtreme float64
	// DepthLevels is how many book levels feed the imbalance read.
	DepthLevels int
	// MinBoost/MaxBoost bound the total contribution.
	MinBoost float64
	MaxBoost float64
}

// Scorer reads derivatives-market positioning and scores how strongly
// it supports a proposed trade direction. Funding is read contrarian:
// crowded longs (extreme positive funding) argue against a BUY and for
// a SELL, and vice versa.
type Scorer struct {
	funding FundingSource
	depth   DepthSource
	cfg     Config
	tracer  trace.Tracer
}

func NewScorer(funding FundingSource, depth DepthSource, cfg Config, tracer trace.Tracer) *Scorer {
	if cfg.FundingMild <= 0 {
		cfg.FundingMild = 0.0003
	}
	if cfg.FundingStrong <= 0 {
		cfg.FundingStrong = 0.0008
	}
	if cfg.FundingExtreme <= 0 {
		cfg.FundingExtreme = 0.0015
	}
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = 100
	}
	if cfg.MinBoost == 0 {
		cfg.MinBoost = -0.10
	}
	if cfg.MaxBoost == 0 {
		cfg.MaxBoost = 0.30
	}
	return &Scorer{funding: funding, depth: depth, cfg: cfg, tracer: tracer}
}

// Score returns the bounded smart-money contribution for a proposed
// direction. When the live providers are unreachable it returns the
// flagged neutral fallback instead of a fabricated bias.
func (s *Scorer) Score(ctx context.Context, symbol string, price float64, direction domain.Direction) domain.ScoredContext {
	ctx, span := s.tracer.Start(ctx, "smartmoney.score")
	defer span.End()

	fund, err := s.funding.FetchFundingRate(ctx, symbol)
	if err != nil {
		log.Printf("smartmoney: funding fetch failed for %s: %v", symbol, err)
		return domain.NeutralContext(fmt.Sprintf("funding unavailable: %v", err))
	}

	depth, err := s.depth.FetchDepth(ctx, symbol, s.cfg.DepthLevels)
	if err != nil {
		log.Printf("smartmoney: depth fetch failed for %s: %v", symbol, err)
		return domain.NeutralContext(fmt.Sprintf("depth unavailable: %v", err))
	}

	fundBoost, fundTag := s.fundingContribution(fund.FundingRate, direction)
	liqBoost, liqTag := s.liquidityContribution(depth.Imbalance, direction)

	boost := clamp(fundBoost+liqBoost, s.cfg.MinBoost, s.cfg.MaxBoost)

	return domain.ScoredContext{
		Boost:      boost,
		Provenance: domain.ProvenanceLive,
		Rationale: map[string]string{
			"funding":   fundTag,
			"liquidity": liqTag,
		},
		Metrics: map[string]float64{
			"is_real_data":        1,
			"funding_rate":        fund.FundingRate,
			"liquidity_imbalance": depth.Imbalance,
			"bid_volume":          depth.BidVolume,
			"ask_volume":          depth.AskVolume,
			"funding_boost":       fundBoost,
			"liquidity_boost":     liqBoost,
		},
	}
}

// fundingContribution maps funding magnitude into three tiers and signs
// the result contrarian to the crowded side.
func (s *Scorer) fundingContribution(rate float64, direction domain.Direction) (float64, string) {
	magnitude := math.Abs(rate)
	var tier float64
	var tag string
	switch {
	case magnitude >= s.cfg.FundingExtreme:
		tier, tag = 0.20, "extreme"
	case magnitude >= s.cfg.FundingStrong:
		tier, tag = 0.08, "strong"
	case magnitude >= s.cfg.FundingMild:
		tier, tag = 0.03, "mild"
	default:
		return 0, "flat"
	}

	// Positive funding means crowded longs: it argues against longs
	// and for shorts. Negative funding is the mirror image.
	crowdedLongs := rate > 0
	switch {
	case direction.IsLong() && crowdedLongs:
		return -tier, tag + "_against_long"
	case direction.IsLong():
		return tier, tag + "_for_long"
	case direction.IsShort() && crowdedLongs:
		return tier, tag + "_for_short"
	case direction.IsShort():
		return -tier, tag + "_against_short"
	default:
		return 0, tag + "_neutral_direction"
	}
}

// liquidityContribution rewards resting liquidity stacked on the side
// of the proposed trade, up to 0.20, and lightly penalizes a book
// stacked against it.
func (s *Scorer) liquidityContribution(imbalance float64, direction domain.Direction) (float64, string) {
	aligned := (direction.IsLong() && imbalance > 0) || (direction.IsShort() && imbalance < 0)
	weight := math.Min(math.Abs(imbalance), 1)
	if aligned {
		return 0.20 * weight, "book_aligned"
	}
	if weight < 0.05 {
		return 0, "book_balanced"
	}
	return -0.10 * weight, "book_opposed"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
