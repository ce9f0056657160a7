package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type CandleSyncer interface {
	SyncCandles(ctx context.Context, symbol, timeframe string, bars int) error
}

// CandleSyncJob keeps the candle store fresh. The first pass per pair
// backfills the full evaluation window; later passes only top up the
// most recent bars.
type CandleSyncJob struct {
	tracer       trace.Tracer
	syncer       CandleSyncer
	symbols      []string
	timeframes   []string
	pollInterval time.Duration
	topUpBars    int
	backfilled   map[string]bool
}

func NewCandleSyncJob(
	tracer trace.Tracer,
	syncer CandleSyncer,
	symbols []string,
	timeframes []string,
	pollInterval time.Duration,
) *CandleSyncJob {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	return &CandleSyncJob{
		tracer:       tracer,
		syncer:       syncer,
		symbols:      symbols,
		timeframes:   timeframes,
		pollInterval: pollInterval,
		topUpBars:    10,
		backfilled:   make(map[string]bool),
	}
}

// Start blocks until ctx is cancelled.
func (j *CandleSyncJob) Start(ctx context.Context) {
	if j.syncer == nil {
		log.Println("candle sync job disabled: no syncer")
		<-ctx.Done()
		return
	}
	log.Println("Candle sync job starting...")

	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Candle sync job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CandleSyncJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "candle-sync-job.run-once")
	defer span.End()

	for _, symbol := range j.symbols {
		for _, timeframe := range j.timeframes {
			if ctx.Err() != nil {
				return
			}
			key := symbol + ":" + timeframe
			bars := j.topUpBars
			if !j.backfilled[key] {
				bars = 0 // full backfill on the first pass
			}
			if err := j.syncer.SyncCandles(ctx, symbol, timeframe, bars); err != nil {
				log.Printf("candle sync error for %s %s: %v", symbol, timeframe, err)
				continue
			}
			j.backfilled[key] = true
		}
	}
}
