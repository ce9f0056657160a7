package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signalforge/internal/advisor"
	"signalforge/internal/bot"
	"signalforge/internal/cache"
	"signalforge/internal/config"
	"signalforge/internal/cooldown"
	"signalforge/internal/db"
	"signalforge/internal/engine"
	"signalforge/internal/feature"
	"signalforge/internal/handler"
	"signalforge/internal/indicator"
	"signalforge/internal/job"
	"signalforge/internal/ml/ensemble"
	"signalforge/internal/ml/registry"
	"signalforge/internal/provider"
	"signalforge/internal/regime"
	"signalforge/internal/repository"
	"signalforge/internal/risk"
	"signalforge/internal/service"
	"signalforge/internal/smartmoney"
	"signalforge/internal/stats"
	"signalforge/internal/synth"
	"signalforge/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "signalforge/docs"
)

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	loadEnsembleFunc = func(ctx context.Context, tracer trace.Tracer, reg service.ModelRegistry) (*ensemble.Ensemble, error) {
		if db.Pool == nil {
			log.Println("no database, ensemble runs degraded with no members")
			return ensemble.New(nil, feature.Schema())
		}
		return service.LoadEnsemble(ctx, tracer, reg)
	}
	startTelegramBotFunc   = bot.StartTelegramBot
	startJobFunc           = func(start func(context.Context), ctx context.Context) { go start(ctx) }
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Signalforge API
// @version         1.0
// @description     Adaptive trading signal engine with regime-aware synthesis and risk planning.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx, cfg.RedisURL)

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Repositories and migrations.
	candleRepo := repository.NewCandleRepository(db.Pool, tracer)
	signalRepo := repository.NewSignalRepository(db.Pool, tracer)
	registryRepo := registry.NewRepository(db.Pool, tracer)
	if db.Pool != nil {
		for _, migrate := range []func(context.Context) error{
			candleRepo.RunMigrations,
			signalRepo.RunMigrations,
			registryRepo.RunMigrations,
		} {
			if err := migrate(ctx); err != nil {
				log.Fatalf("failed to run migrations: %v", err)
			}
		}
	}

	// Market data providers.
	binance := provider.NewBinanceProvider(tracer, cfg.BinanceBaseURL)
	mempool := provider.NewMempoolProvider(tracer, cfg.MempoolBaseURL)

	// Frozen model ensemble.
	ens, err := loadEnsembleFunc(ctx, tracer, registryRepo)
	if err != nil {
		log.Fatalf("failed to load model ensemble: %v", err)
	}

	// Evaluation pipeline.
	riskEngine := risk.NewEngine(risk.Config{
		Capital:         cfg.Capital,
		MaxRiskPerTrade: cfg.MaxRiskPerTrade,
		MaxLeverage:     cfg.MaxLeverage,
		DrawdownLimit:   cfg.DrawdownLimit,
		DrawdownLevCap:  cfg.DrawdownLevCap,
	})
	scorers := []engine.ContextScorer{
		smartmoney.NewScorer(binance, binance, smartmoney.Config{}, tracer),
		smartmoney.NewChainScorer(mempool, tracer),
	}
	eng := engine.New(
		tracer,
		regime.NewClassifier(regime.Config{}, regime.NewAnomalyDetector()),
		indicator.NewEngine(),
		stats.NewEngine(),
		feature.NewBuilder(time.Now),
		ens,
		synth.NewSynthesizer(synth.Config{
			Profile:        synth.Profile(cfg.Profile),
			MinADX:         cfg.MinADX,
			TechnicalFloor: cfg.TechnicalFloor,
			MinConfidence:  cfg.MinConfidence,
			MaxConfidence:  cfg.MaxConfidence,
		}),
		riskEngine,
		cooldown.NewCache(time.Duration(cfg.CooldownMins)*time.Minute, time.Now),
		scorers,
		engine.Config{ScorerTimeout: time.Duration(cfg.ScorerTimeoutSec) * time.Second},
	)

	// Delivery surfaces.
	signalStore := cache.NewSignalStore(cache.Client, 0)
	notifier := startTelegramBotFunc(cfg.TelegramBotToken, cfg.TelegramChatID, signalStore)
	var narrator service.Narrator
	if cfg.OpenAIAPIKey != "" {
		narrator = advisor.NewNarratorService(tracer, advisor.NewOpenAIClient(cfg.OpenAIAPIKey), cfg.OpenAIModel)
	}

	signalService := service.NewSignalService(
		tracer, candleRepo, signalRepo, eng,
		signalStore, notifier, narrator,
		cfg.Symbols, cfg.Timeframes,
		time.Duration(cfg.CooldownMins)*time.Minute,
	)
	marketData := service.NewMarketDataService(tracer, binance, candleRepo, 0)
	resolver := service.NewOutcomeResolver(tracer, signalRepo, candleRepo, riskEngine, ens)

	// Background jobs, stopped by ctx cancel.
	if db.Pool != nil {
		syncJob := job.NewCandleSyncJob(tracer, marketData, cfg.Symbols, cfg.Timeframes, 5*time.Minute)
		evalJob := job.NewEvaluationJob(tracer, signalService, time.Duration(cfg.EvalPollSecs)*time.Second)
		resolveJob := job.NewOutcomeResolverJob(tracer, resolver, time.Duration(cfg.ResolvePollSecs)*time.Second, 200)
		startJobFunc(syncJob.Start, ctx)
		startJobFunc(evalJob.Start, ctx)
		startJobFunc(resolveJob.Start, ctx)
	} else {
		log.Println("no database, background jobs disabled")
	}

	// HTTP surface.
	h := handler.New(tracer, signalRepo, signalStore, candleRepo, ens, signalService)
	r := newRouterFunc()
	r.Use(otelgin.Middleware(tracing.ServiceName))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
