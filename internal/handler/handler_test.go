package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signalforge/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type stubSignalReader struct {
	signals []domain.EnhancedSignal
}

func (s *stubSignalReader) ListSignals(ctx context.Context, symbol string, limit int) ([]domain.EnhancedSignal, error) {
	return s.signals, nil
}

type stubLatestReader struct {
	signal *domain.EnhancedSignal
}

func (s *stubLatestReader) GetLatest(ctx context.Context, symbol, timeframe string) (*domain.EnhancedSignal, error) {
	return s.signal, nil
}

type stubCandleQuerier struct {
	candles []domain.Candle
}

func (s *stubCandleQuerier) GetWindow(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	return s.candles, nil
}

type stubWeights struct{}

func (s *stubWeights) Weights() map[string]float64 {
	return map[string]float64{"logreg": 0.6, "xgboost": 0.4}
}

type stubSweeper struct {
	emitted int
	calls   int
}

func (s *stubSweeper) EvaluateAll(ctx context.Context) (int, error) {
	s.calls++
	return s.emitted, nil
}

func newTestRouter(h *Handler, apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r, apiKey)
	return r
}

func testSignal() domain.EnhancedSignal {
	return domain.EnhancedSignal{
		ID:          1,
		Symbol:      "BTCUSDT",
		Timeframe:   "1h",
		Direction:   domain.DirectionBuy,
		Confidence:  0.82,
		EntryPrice:  97000,
		StopLoss:    95100,
		TakeProfits: []float64{99900, 102800, 108600},
		CreatedAt:   time.Now().UTC(),
	}
}

func TestHealth(t *testing.T) {
	h := New(trace.NewNoopTracerProvider().Tracer("test"), nil, nil, nil, nil, nil)
	r := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %q", body["status"])
	}
	if body["service"] != "signalforge" {
		t.Errorf("expected service name, got %q", body["service"])
	}
}

func TestListSignals(t *testing.T) {
	h := New(
		trace.NewNoopTracerProvider().Tracer("test"),
		&stubSignalReader{signals: []domain.EnhancedSignal{testSignal()}},
		nil, nil, nil, nil,
	)
	r := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/signals?symbol=BTCUSDT", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var payload struct {
		Signals []domain.EnhancedSignal `json:"signals"`
		Count   int                     `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Count != 1 || payload.Signals[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestListSignalsRejectsUnknownSymbol(t *testing.T) {
	h := New(trace.NewNoopTracerProvider().Tracer("test"), &stubSignalReader{}, nil, nil, nil, nil)
	r := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/signals?symbol=NOPEUSD", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestGetLatestSignalNotFound(t *testing.T) {
	h := New(trace.NewNoopTracerProvider().Tracer("test"), nil, &stubLatestReader{}, nil, nil, nil)
	r := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/signals/latest/BTCUSDT?timeframe=4h", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestGetLatestSignalRejectsUnknownTimeframe(t *testing.T) {
	h := New(trace.NewNoopTracerProvider().Tracer("test"), nil, &stubLatestReader{}, nil, nil, nil)
	r := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/signals/latest/BTCUSDT?timeframe=2h", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestGetEnsembleWeights(t *testing.T) {
	h := New(trace.NewNoopTracerProvider().Tracer("test"), nil, nil, nil, &stubWeights{}, nil)
	r := newTestRouter(h, "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/ensemble/weights", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var payload struct {
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Weights["logreg"] != 0.6 {
		t.Fatalf("unexpected weights: %+v", payload.Weights)
	}
}

func TestTriggerEvaluationRequiresAPIKey(t *testing.T) {
	sweeper := &stubSweeper{emitted: 2}
	h := New(trace.NewNoopTracerProvider().Tracer("test"), nil, nil, nil, nil, sweeper)
	r := newTestRouter(h, "secret")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/evaluate", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without key, got %d", w.Code)
	}
	if sweeper.calls != 0 {
		t.Fatalf("sweeper must not run without auth")
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/api/evaluate", nil)
	req.Header.Set("X-API-Key", "secret")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200 with key, got %d", w.Code)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}
