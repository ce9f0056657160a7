package job

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type SignalSweeper interface {
	EvaluateAll(ctx context.Context) (int, error)
}

// EvaluationJob runs the signal pipeline over every configured pair on
// a fixed cadence.
type EvaluationJob struct {
	tracer       trace.Tracer
	sweeper      SignalSweeper
	pollInterval time.Duration
}

func NewEvaluationJob(tracer trace.Tracer, sweeper SignalSweeper, pollInterval time.Duration) *EvaluationJob {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Minute
	}
	return &EvaluationJob{tracer: tracer, sweeper: sweeper, pollInterval: pollInterval}
}

// Start blocks until ctx is cancelled.
func (j *EvaluationJob) Start(ctx context.Context) {
	if j.sweeper == nil {
		log.Println("evaluation job disabled: no sweeper")
		<-ctx.Done()
		return
	}
	log.Println("Evaluation job starting...")

	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Evaluation job stopped")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *EvaluationJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "evaluation-job.run-once")
	defer span.End()

	emitted, err := j.sweeper.EvaluateAll(ctx)
	if err != nil {
		log.Printf("evaluation sweep error: %v", err)
		return
	}
	if emitted > 0 {
		log.Printf("evaluation sweep emitted %d signals", emitted)
	}
}
