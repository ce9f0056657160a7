package handler

import (
	"net/http"
	"strconv"
	"strings"

	"signalforge/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ListSignals godoc
// @Summary      List emitted trade signals
// @Description  Returns recently emitted signals, newest first, optionally filtered by symbol
// @Tags         signals
// @Produce      json
// @Param        symbol  query  string  false  "Pair symbol (e.g., BTCUSDT)"
// @Param        limit   query  int     false  "Max signals (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/signals [get]
func (h *Handler) ListSignals(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-signals")
	defer span.End()

	symbol := strings.ToUpper(c.Query("symbol"))
	if symbol != "" && !domain.IsSupportedSymbol(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported symbol: " + symbol,
			"supported_symbols": domain.SupportedSymbols,
		})
		return
	}
	span.SetAttributes(attribute.String("symbol", symbol))

	limit := 50
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	signals, err := h.signals.ListSignals(ctx, symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

// GetLatestSignal godoc
// @Summary      Get the latest signal for a pair
// @Description  Returns the most recently emitted signal for a symbol and timeframe, if any is still cached
// @Tags         signals
// @Produce      json
// @Param        symbol     path   string  true   "Pair symbol (e.g., BTCUSDT)"
// @Param        timeframe  query  string  false  "Timeframe (1h, 4h)"  default(1h)
// @Success      200  {object}  domain.EnhancedSignal
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/signals/latest/{symbol} [get]
func (h *Handler) GetLatestSignal(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-latest-signal")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))
	if !domain.IsSupportedSymbol(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported symbol: " + symbol,
			"supported_symbols": domain.SupportedSymbols,
		})
		return
	}

	timeframe := c.DefaultQuery("timeframe", "1h")
	if !domain.IsSupportedTimeframe(timeframe) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":                "unsupported timeframe: " + timeframe,
			"supported_timeframes": domain.SupportedTimeframes,
		})
		return
	}

	signal, err := h.latest.GetLatest(ctx, symbol, timeframe)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if signal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recent signal for " + symbol + " " + timeframe})
		return
	}

	c.JSON(http.StatusOK, signal)
}

// GetCandles godoc
// @Summary      Get stored OHLCV candles
// @Description  Returns the most recent candles for a pair in chronological order
// @Tags         candles
// @Produce      json
// @Param        symbol     path   string  true   "Pair symbol (e.g., BTCUSDT)"
// @Param        timeframe  query  string  false  "Timeframe (1h, 4h)"  default(1h)
// @Param        limit      query  int     false  "Number of candles (default 100, max 500)"  default(100)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/candles/{symbol} [get]
func (h *Handler) GetCandles(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-candles")
	defer span.End()

	symbol := strings.ToUpper(c.Param("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))
	if !domain.IsSupportedSymbol(symbol) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported symbol: " + symbol,
			"supported_symbols": domain.SupportedSymbols,
		})
		return
	}

	timeframe := c.DefaultQuery("timeframe", "1h")
	if !domain.IsSupportedTimeframe(timeframe) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":                "unsupported timeframe: " + timeframe,
			"supported_timeframes": domain.SupportedTimeframes,
		})
		return
	}

	limit := 100
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	candles, err := h.candles.GetWindow(ctx, symbol, timeframe, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"timeframe": timeframe,
		"candles":   candles,
	})
}

// GetEnsembleWeights godoc
// @Summary      Get live ensemble weights
// @Description  Returns the current per-model voting weights
// @Tags         ensemble
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/ensemble/weights [get]
func (h *Handler) GetEnsembleWeights(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-ensemble-weights")
	defer span.End()

	if h.weights == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ensemble unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"weights": h.weights.Weights()})
}

// TriggerEvaluation godoc
// @Summary      Trigger an evaluation sweep manually
// @Description  Runs the signal pipeline over every configured pair immediately
// @Tags         signals
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/evaluate [post]
func (h *Handler) TriggerEvaluation(c *gin.Context) {
	if h.sweeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "evaluation service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-evaluation")
	defer span.End()

	emitted, err := h.sweeper.EvaluateAll(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "emitted": emitted})
}
