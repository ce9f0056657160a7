package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type OutcomeResolver interface {
	ResolveOutcomes(ctx context.Context, limit int) (int, error)
}

// OutcomeResolverJob grades expired signals in batches.
type OutcomeResolverJob struct {
	tracer       trace.Tracer
	resolver     OutcomeResolver
	pollInterval time.Duration
	batchSize    int
}

func NewOutcomeResolverJob(tracer trace.Tracer, resolver OutcomeResolver, pollInterval time.Duration, batchSize int) *OutcomeResolverJob {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &OutcomeResolverJob{tracer: tracer, resolver: resolver, pollInterval: pollInterval, batchSize: batchSize}
}

func (j *OutcomeResolverJob) Start(ctx context.Context) {
	if j.resolver == nil {
		log.Println("outcome resolver job disabled: no resolver")
		<-ctx.Done()
		return
	}
	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *OutcomeResolverJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "outcome-resolver-job.run-once")
	defer span.End()

	resolved, err := j.resolver.ResolveOutcomes(ctx, j.batchSize)
	if err != nil {
		log.Printf("outcome resolver error: %v", err)
		return
	}
	if resolved > 0 {
		log.Printf("outcome resolver graded %d signals", resolved)
	}
}
