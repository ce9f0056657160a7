package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"signalforge/internal/domain"
	"signalforge/internal/feature"
	"signalforge/internal/risk"

	"go.opentelemetry.io/otel/trace"
)

type fakeCandleReader struct {
	candles []domain.Candle
	err     error
}

func (f *fakeCandleReader) GetWindow(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	return f.candles, f.err
}

type fakeEvaluator struct {
	signal    *domain.EnhancedSignal
	rejection *domain.Rejection
	err       error
	calls     int
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, candles []domain.Candle, portfolio risk.PortfolioState) (*domain.EnhancedSignal, *domain.Rejection, error) {
	f.calls++
	return f.signal, f.rejection, f.err
}

type fakeSignalWriter struct {
	signals    []domain.EnhancedSignal
	rejections []domain.Rejection
	insertErr  error
}

func (f *fakeSignalWriter) InsertSignal(ctx context.Context, signal *domain.EnhancedSignal) (*domain.EnhancedSignal, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	persisted := *signal
	persisted.ID = int64(len(f.signals) + 1)
	f.signals = append(f.signals, persisted)
	return &persisted, nil
}

func (f *fakeSignalWriter) InsertRejection(ctx context.Context, rejection *domain.Rejection) error {
	f.rejections = append(f.rejections, *rejection)
	return nil
}

type fakePublisher struct {
	published []*domain.EnhancedSignal
	cooling   bool
	coolErr   error
	marked    []time.Duration
}

func (f *fakePublisher) PutLatest(ctx context.Context, signal *domain.EnhancedSignal) error {
	f.published = append(f.published, signal)
	return nil
}

func (f *fakePublisher) MarkCooldown(ctx context.Context, symbol, timeframe string, ttl time.Duration) error {
	f.marked = append(f.marked, ttl)
	return nil
}

func (f *fakePublisher) InCooldown(ctx context.Context, symbol, timeframe string) (bool, error) {
	return f.cooling, f.coolErr
}

type fakeNotifier struct {
	signals    []*domain.EnhancedSignal
	narratives []string
}

func (f *fakeNotifier) NotifySignal(ctx context.Context, signal *domain.EnhancedSignal, narrative string) {
	f.signals = append(f.signals, signal)
	f.narratives = append(f.narratives, narrative)
}

type fakeNarrator struct {
	text string
	err  error
}

func (f *fakeNarrator) Narrate(ctx context.Context, signal *domain.EnhancedSignal) (string, error) {
	return f.text, f.err
}

type fakeModelRegistry struct {
	models map[string]*domain.ModelVersion
}

func (f *fakeModelRegistry) GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error) {
	return f.models[modelKey], nil
}

func logRegBlob(t *testing.T, names []string) []byte {
	t.Helper()
	artifact := map[string]any{
		"feature_names": names,
		"weights":       make([]float64, len(names)),
		"bias":          0.0,
		"means":         make([]float64, len(names)),
		"stds":          make([]float64, len(names)),
	}
	blob, err := json.Marshal(artifact)
	if err != nil {
		t.Fatalf("marshal artifact: %v", err)
	}
	return blob
}

func TestLoadEnsembleAcceptsConsistentManifest(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	registry := &fakeModelRegistry{models: map[string]*domain.ModelVersion{
		ModelKeyLogReg: {
			ModelKey:       ModelKeyLogReg,
			Version:        1,
			ArtifactFormat: ArtifactFormatLogRegJSON,
			ArtifactBlob:   logRegBlob(t, feature.Schema()),
			FeatureSchema:  feature.Schema(),
		},
	}}

	ens, err := LoadEnsemble(context.Background(), tracer, registry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := ens.Weights()["logreg"]; !ok {
		t.Fatal("expected logreg member loaded")
	}
}

func TestLoadEnsembleRejectsManifestBlobDisagreement(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	manifest := append([]string(nil), feature.Schema()...)
	manifest[0] = "retired_feature"

	registry := &fakeModelRegistry{models: map[string]*domain.ModelVersion{
		ModelKeyLogReg: {
			ModelKey:       ModelKeyLogReg,
			Version:        3,
			ArtifactFormat: ArtifactFormatLogRegJSON,
			ArtifactBlob:   logRegBlob(t, feature.Schema()),
			FeatureSchema:  manifest,
		},
	}}

	if _, err := LoadEnsemble(context.Background(), tracer, registry); err == nil {
		t.Fatal("expected error when manifest disagrees with artifact blob")
	}
}

func TestLoadEnsembleRejectsStaleManifest(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	stale := append([]string(nil), feature.Schema()...)
	stale[0] = "retired_feature"

	registry := &fakeModelRegistry{models: map[string]*domain.ModelVersion{
		ModelKeyLogReg: {
			ModelKey:       ModelKeyLogReg,
			Version:        2,
			ArtifactFormat: ArtifactFormatLogRegJSON,
			ArtifactBlob:   logRegBlob(t, stale),
			FeatureSchema:  stale,
		},
	}}

	if _, err := LoadEnsemble(context.Background(), tracer, registry); err == nil {
		t.Fatal("expected error when manifest has drifted from the live schema")
	}
}

func sampleCandles(n int) []domain.Candle {
	out := make([]domain.Candle, n)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = domain.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			OpenTime:  start.Add(time.Duration(i) * time.Hour),
			Open:      100, High: 101, Low: 99, Close: 100, Volume: 1000,
		}
	}
	return out
}

func sampleSignal() *domain.EnhancedSignal {
	return &domain.EnhancedSignal{
		Symbol:      "BTCUSDT",
		Timeframe:   "1h",
		Direction:   domain.DirectionBuy,
		Confidence:  0.82,
		EntryPrice:  100,
		StopLoss:    97,
		TakeProfits: []float64{103, 106, 112},
	}
}

func TestEvaluatePairPersistsAndAnnouncesSignal(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	writer := &fakeSignalWriter{}
	publisher := &fakePublisher{}
	notifier := &fakeNotifier{}

	svc := NewSignalService(
		tracer,
		&fakeCandleReader{candles: sampleCandles(300)},
		writer,
		&fakeEvaluator{signal: sampleSignal()},
		publisher,
		notifier,
		&fakeNarrator{text: "momentum continuation setup"},
		[]string{"BTCUSDT"},
		[]string{"1h"},
		time.Hour,
	)

	signal, rejection, err := svc.EvaluatePair(context.Background(), "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejection != nil {
		t.Fatalf("unexpected rejection: %+v", rejection)
	}
	if signal == nil || signal.ID != 1 {
		t.Fatalf("expected persisted signal with assigned id, got %+v", signal)
	}
	if len(writer.signals) != 1 {
		t.Fatalf("expected 1 stored signal, got %d", len(writer.signals))
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected signal pushed to cache, got %d", len(publisher.published))
	}
	if len(publisher.marked) != 1 || publisher.marked[0] != time.Hour {
		t.Fatalf("expected cooldown mirrored with the configured ttl, got %v", publisher.marked)
	}
	if len(notifier.signals) != 1 || notifier.narratives[0] != "momentum continuation setup" {
		t.Fatalf("expected notification with narrative, got %+v", notifier.narratives)
	}
}

func TestEvaluatePairPersistsRejection(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	writer := &fakeSignalWriter{}
	notifier := &fakeNotifier{}

	svc := NewSignalService(
		tracer,
		&fakeCandleReader{candles: sampleCandles(300)},
		writer,
		&fakeEvaluator{rejection: &domain.Rejection{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Gate:      domain.GateTrendStrength,
			ADX:       18.2,
		}},
		nil,
		notifier,
		nil,
		[]string{"BTCUSDT"},
		[]string{"1h"},
		time.Hour,
	)

	signal, rejection, err := svc.EvaluatePair(context.Background(), "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal != nil {
		t.Fatalf("expected no signal, got %+v", signal)
	}
	if rejection == nil || rejection.Gate != domain.GateTrendStrength {
		t.Fatalf("expected trend-strength rejection, got %+v", rejection)
	}
	if len(writer.rejections) != 1 {
		t.Fatalf("expected rejection persisted, got %d", len(writer.rejections))
	}
	if len(notifier.signals) != 0 {
		t.Fatalf("rejections must never be announced, got %d notifications", len(notifier.signals))
	}
}

func TestEvaluatePairSkipsEmptyWindow(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	evaluator := &fakeEvaluator{}

	svc := NewSignalService(
		tracer,
		&fakeCandleReader{},
		&fakeSignalWriter{},
		evaluator,
		nil, nil, nil,
		[]string{"BTCUSDT"},
		[]string{"1h"},
		time.Hour,
	)

	signal, rejection, err := svc.EvaluatePair(context.Background(), "BTCUSDT", "1h")
	if err != nil || signal != nil || rejection != nil {
		t.Fatalf("expected silent skip, got signal=%v rejection=%v err=%v", signal, rejection, err)
	}
	if evaluator.calls != 0 {
		t.Fatalf("evaluator must not run on an empty window")
	}
}

func TestEvaluatePairSkipsWhileMirroredCooldownHolds(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	evaluator := &fakeEvaluator{signal: sampleSignal()}

	svc := NewSignalService(
		tracer,
		&fakeCandleReader{candles: sampleCandles(300)},
		&fakeSignalWriter{},
		evaluator,
		&fakePublisher{cooling: true},
		nil, nil,
		[]string{"BTCUSDT"},
		[]string{"1h"},
		time.Hour,
	)

	signal, rejection, err := svc.EvaluatePair(context.Background(), "BTCUSDT", "1h")
	if err != nil || signal != nil || rejection != nil {
		t.Fatalf("expected silent skip, got signal=%v rejection=%v err=%v", signal, rejection, err)
	}
	if evaluator.calls != 0 {
		t.Fatal("evaluator must not run inside a mirrored cooldown window")
	}
}

func TestEvaluatePairCooldownCheckFailsOpen(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	writer := &fakeSignalWriter{}

	svc := NewSignalService(
		tracer,
		&fakeCandleReader{candles: sampleCandles(300)},
		writer,
		&fakeEvaluator{signal: sampleSignal()},
		&fakePublisher{coolErr: errors.New("redis down")},
		nil, nil,
		[]string{"BTCUSDT"},
		[]string{"1h"},
		time.Hour,
	)

	signal, _, err := svc.EvaluatePair(context.Background(), "BTCUSDT", "1h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal == nil || len(writer.signals) != 1 {
		t.Fatal("a cache outage must not block evaluation")
	}
}

func TestEvaluateAllContinuesPastFailures(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")

	svc := NewSignalService(
		tracer,
		&fakeCandleReader{candles: sampleCandles(300)},
		&fakeSignalWriter{},
		&fakeEvaluator{err: errors.New("schema drift")},
		nil, nil, nil,
		[]string{"BTCUSDT", "ETHUSDT"},
		[]string{"1h"},
		time.Hour,
	)

	emitted, err := svc.EvaluateAll(context.Background())
	if err != nil {
		t.Fatalf("sweep must not fail on a per-pair error: %v", err)
	}
	if emitted != 0 {
		t.Fatalf("expected 0 emitted, got %d", emitted)
	}
}

func TestEvaluatePairNarratorFailureStillNotifies(t *testing.T) {
	tracer := trace.NewNoopTracerProvider().Tracer("test")
	notifier := &fakeNotifier{}

	svc := NewSignalService(
		tracer,
		&fakeCandleReader{candles: sampleCandles(300)},
		&fakeSignalWriter{},
		&fakeEvaluator{signal: sampleSignal()},
		nil,
		notifier,
		&fakeNarrator{err: errors.New("llm down")},
		[]string{"BTCUSDT"},
		[]string{"1h"},
		time.Hour,
	)

	if _, _, err := svc.EvaluatePair(context.Background(), "BTCUSDT", "1h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.signals) != 1 || notifier.narratives[0] != "" {
		t.Fatalf("expected notification with empty narrative on narrator failure")
	}
}
