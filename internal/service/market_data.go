package service

import (
	"context"
	"fmt"
	"log"

	"signalforge/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type KlineFetcher interface {
	FetchKlines(ctx context.Context, symbol, timeframe string, limit int) ([]*domain.Candle, error)
}

type CandleStore interface {
	UpsertCandles(ctx context.Context, candles []domain.Candle) error
}

// MarketDataService keeps the local candle store in sync with the
// exchange.
type MarketDataService struct {
	tracer   trace.Tracer
	fetcher  KlineFetcher
	store    CandleStore
	backfill int
}

func NewMarketDataService(tracer trace.Tracer, fetcher KlineFetcher, store CandleStore, backfillBars int) *MarketDataService {
	if backfillBars <= 0 {
		backfillBars = windowBars
	}
	return &MarketDataService{
		tracer:   tracer,
		fetcher:  fetcher,
		store:    store,
		backfill: backfillBars,
	}
}

// SyncCandles pulls the most recent bars for one pair and upserts them.
// The upsert is idempotent, so overlapping fetches are harmless and the
// still-open bar is refreshed on every pass.
func (s *MarketDataService) SyncCandles(ctx context.Context, symbol, timeframe string, bars int) error {
	ctx, span := s.tracer.Start(ctx, "market-data.sync-candles")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", symbol),
		attribute.String("timeframe", timeframe),
	)

	if bars <= 0 || bars > s.backfill {
		bars = s.backfill
	}
	fetched, err := s.fetcher.FetchKlines(ctx, symbol, timeframe, bars)
	if err != nil {
		return fmt.Errorf("fetch klines for %s %s: %w", symbol, timeframe, err)
	}
	if len(fetched) == 0 {
		return nil
	}

	candles := make([]domain.Candle, 0, len(fetched))
	for _, c := range fetched {
		if c == nil {
			continue
		}
		candles = append(candles, *c)
	}
	if err := s.store.UpsertCandles(ctx, candles); err != nil {
		return fmt.Errorf("upsert candles for %s %s: %w", symbol, timeframe, err)
	}

	log.Printf("synced %d %s candles for %s", len(candles), timeframe, symbol)
	return nil
}
