package handler

import (
	"context"

	"signalforge/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type SignalReader interface {
	ListSignals(ctx context.Context, symbol string, limit int) ([]domain.EnhancedSignal, error)
}

type LatestSignalReader interface {
	GetLatest(ctx context.Context, symbol, timeframe string) (*domain.EnhancedSignal, error)
}

type CandleQuerier interface {
	GetWindow(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error)
}

// WeightsReader exposes the live ensemble weight table.
type WeightsReader interface {
	Weights() map[string]float64
}

type SweepTrigger interface {
	EvaluateAll(ctx context.Context) (int, error)
}

type Handler struct {
	tracer  trace.Tracer
	signals SignalReader
	latest  LatestSignalReader
	candles CandleQuerier
	weights WeightsReader
	sweeper SweepTrigger
}

func New(
	tracer trace.Tracer,
	signals SignalReader,
	latest LatestSignalReader,
	candles CandleQuerier,
	weights WeightsReader,
	sweeper SweepTrigger,
) *Handler {
	return &Handler{
		tracer:  tracer,
		signals: signals,
		latest:  latest,
		candles: candles,
		weights: weights,
		sweeper: sweeper,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)
	r.GET("/api/signals", h.ListSignals)
	r.GET("/api/signals/latest/:symbol", h.GetLatestSignal)
	r.GET("/api/candles/:symbol", h.GetCandles)
	r.GET("/api/ensemble/weights", h.GetEnsembleWeights)

	protected := r.Group("/api", APIKeyAuth(apiKey))
	protected.POST("/evaluate", h.TriggerEvaluation)
}
