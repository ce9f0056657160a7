package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"signalforge/internal/domain"
	"signalforge/internal/feature"
	"signalforge/internal/ml/ensemble"
	"signalforge/internal/ml/models/logreg"
	"signalforge/internal/ml/models/xgboost"
	"signalforge/internal/risk"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	ModelKeyLogReg  = "logreg"
	ModelKeyXGBoost = "xgboost"

	ArtifactFormatLogRegJSON  = "logreg-json"
	ArtifactFormatXGBoostJSON = "xgboost-json"

	// windowBars covers the deepest lookback in the pipeline (the
	// regime classifier's 200-bar minimum) with headroom.
	windowBars = 300
)

type CandleReader interface {
	GetWindow(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error)
}

// Evaluator is the pipeline entry point; satisfied by engine.Engine.
type Evaluator interface {
	Evaluate(ctx context.Context, candles []domain.Candle, portfolio risk.PortfolioState) (*domain.EnhancedSignal, *domain.Rejection, error)
}

type SignalWriter interface {
	InsertSignal(ctx context.Context, signal *domain.EnhancedSignal) (*domain.EnhancedSignal, error)
	InsertRejection(ctx context.Context, rejection *domain.Rejection) error
}

type ModelRegistry interface {
	GetActiveModel(ctx context.Context, modelKey string) (*domain.ModelVersion, error)
}

// SignalPublisher pushes accepted signals to the hot cache and mirrors
// the emission cooldown there, so replicas sharing the cache do not
// double-emit for the same pair.
type SignalPublisher interface {
	PutLatest(ctx context.Context, signal *domain.EnhancedSignal) error
	MarkCooldown(ctx context.Context, symbol, timeframe string, ttl time.Duration) error
	InCooldown(ctx context.Context, symbol, timeframe string) (bool, error)
}

// Notifier delivers accepted signals to subscribers. Delivery failures
// are logged, never propagated: a down chat must not block evaluation.
type Notifier interface {
	NotifySignal(ctx context.Context, signal *domain.EnhancedSignal, narrative string)
}

// Narrator turns a signal into a short human-readable brief.
type Narrator interface {
	Narrate(ctx context.Context, signal *domain.EnhancedSignal) (string, error)
}

// LoadEnsemble builds the inference ensemble from the active artifact
// of each known model key. A missing model is skipped with a warning;
// an artifact whose feature schema disagrees with the current one is a
// fatal configuration error.
func LoadEnsemble(ctx context.Context, tracer trace.Tracer, registry ModelRegistry) (*ensemble.Ensemble, error) {
	ctx, span := tracer.Start(ctx, "signal-service.load-ensemble")
	defer span.End()

	var members []ensemble.Member
	for _, key := range []string{ModelKeyLogReg, ModelKeyXGBoost} {
		active, err := registry.GetActiveModel(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load active model %s: %w", key, err)
		}
		if active == nil {
			log.Printf("no active %s model, ensemble will run without it", key)
			continue
		}
		member, err := decodeArtifact(active)
		if err != nil {
			return nil, fmt.Errorf("decode %s v%d: %w", key, active.Version, err)
		}
		if err := checkManifest(active, member); err != nil {
			return nil, fmt.Errorf("model %s v%d: %w", key, active.Version, err)
		}
		members = append(members, member)
	}
	span.SetAttributes(attribute.Int("ensemble.members", len(members)))

	return ensemble.New(members, feature.Schema())
}

// checkManifest cross-checks the registry's feature_schema manifest
// against both the names embedded in the decoded artifact and the live
// feature builder. A blob that disagrees with its own manifest, or a
// manifest that has drifted from the current schema, halts the load.
func checkManifest(model *domain.ModelVersion, member ensemble.Member) error {
	manifest, err := feature.NewVector(model.FeatureSchema, make([]float64, len(model.FeatureSchema)))
	if err != nil {
		return fmt.Errorf("invalid feature_schema manifest: %w", err)
	}
	if err := manifest.ValidateSchema(member.FeatureNames()); err != nil {
		return fmt.Errorf("manifest disagrees with artifact blob: %w", err)
	}
	if err := manifest.ValidateSchema(feature.Schema()); err != nil {
		return fmt.Errorf("manifest disagrees with live feature schema: %w", err)
	}
	return nil
}

func decodeArtifact(model *domain.ModelVersion) (ensemble.Member, error) {
	switch model.ArtifactFormat {
	case ArtifactFormatLogRegJSON:
		return logreg.Load(model.ArtifactBlob)
	case ArtifactFormatXGBoostJSON:
		return xgboost.Load(model.ArtifactBlob)
	default:
		return nil, fmt.Errorf("unknown artifact format %q", model.ArtifactFormat)
	}
}

// SignalService runs the evaluation pipeline over every configured
// pair and routes the outcome: accepted signals are persisted, cached,
// and announced; near-misses are persisted for diagnostics.
type SignalService struct {
	tracer     trace.Tracer
	candles    CandleReader
	signals    SignalWriter
	engine     Evaluator
	publisher  SignalPublisher
	notifier   Notifier
	narrator   Narrator
	symbols    []string
	timeframes []string
	cooldown   time.Duration
}

func NewSignalService(
	tracer trace.Tracer,
	candles CandleReader,
	signals SignalWriter,
	eng Evaluator,
	publisher SignalPublisher,
	notifier Notifier,
	narrator Narrator,
	symbols []string,
	timeframes []string,
	cooldown time.Duration,
) *SignalService {
	if len(symbols) == 0 {
		symbols = domain.SupportedSymbols
	}
	if len(timeframes) == 0 {
		timeframes = domain.SupportedTimeframes
	}
	return &SignalService{
		tracer:     tracer,
		candles:    candles,
		signals:    signals,
		engine:     eng,
		publisher:  publisher,
		notifier:   notifier,
		narrator:   narrator,
		symbols:    symbols,
		timeframes: timeframes,
		cooldown:   cooldown,
	}
}

// EvaluateAll sweeps every configured pair. Per-pair failures are
// logged and skipped so one bad symbol never starves the rest.
func (s *SignalService) EvaluateAll(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.evaluate-all")
	defer span.End()

	emitted := 0
	for _, symbol := range s.symbols {
		for _, timeframe := range s.timeframes {
			signal, _, err := s.EvaluatePair(ctx, symbol, timeframe)
			if err != nil {
				log.Printf("evaluate %s %s: %v", symbol, timeframe, err)
				continue
			}
			if signal != nil {
				emitted++
			}
		}
	}
	span.SetAttributes(attribute.Int("signals.emitted", emitted))
	return emitted, nil
}

// EvaluatePair runs one symbol/timeframe through the engine and
// persists whichever artifact comes out.
func (s *SignalService) EvaluatePair(ctx context.Context, symbol, timeframe string) (*domain.EnhancedSignal, *domain.Rejection, error) {
	ctx, span := s.tracer.Start(ctx, "signal-service.evaluate-pair")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", symbol),
		attribute.String("timeframe", timeframe),
	)

	if s.publisher != nil {
		cooling, err := s.publisher.InCooldown(ctx, symbol, timeframe)
		if err != nil {
			log.Printf("cooldown check for %s %s failed open: %v", symbol, timeframe, err)
		} else if cooling {
			log.Printf("%s %s emitted elsewhere within cooldown, skipping", symbol, timeframe)
			return nil, nil, nil
		}
	}

	candles, err := s.candles.GetWindow(ctx, symbol, timeframe, windowBars)
	if err != nil {
		return nil, nil, fmt.Errorf("load candle window: %w", err)
	}
	if len(candles) == 0 {
		log.Printf("no candles stored for %s %s yet, skipping", symbol, timeframe)
		return nil, nil, nil
	}

	signal, rejection, err := s.engine.Evaluate(ctx, candles, risk.PortfolioState{})
	if err != nil {
		return nil, nil, err
	}

	if rejection != nil {
		if err := s.signals.InsertRejection(ctx, rejection); err != nil {
			log.Printf("persist rejection for %s %s: %v", symbol, timeframe, err)
		}
		return nil, rejection, nil
	}

	persisted, err := s.signals.InsertSignal(ctx, signal)
	if err != nil {
		return nil, nil, fmt.Errorf("persist signal: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PutLatest(ctx, persisted); err != nil {
			log.Printf("cache signal for %s %s: %v", symbol, timeframe, err)
		}
		if err := s.publisher.MarkCooldown(ctx, symbol, timeframe, s.cooldown); err != nil {
			log.Printf("mirror cooldown for %s %s: %v", symbol, timeframe, err)
		}
	}

	narrative := ""
	if s.narrator != nil {
		narrative, err = s.narrator.Narrate(ctx, persisted)
		if err != nil {
			log.Printf("narrative for %s %s unavailable: %v", symbol, timeframe, err)
			narrative = ""
		}
	}
	if s.notifier != nil {
		s.notifier.NotifySignal(ctx, persisted, narrative)
	}

	log.Printf("emitted %s signal for %s %s at %.4f (confidence %.2f)",
		persisted.Direction, persisted.Symbol, persisted.Timeframe, persisted.EntryPrice, persisted.Confidence)
	return persisted, nil, nil
}
