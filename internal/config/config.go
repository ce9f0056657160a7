package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	TelegramBotToken string
	TelegramChatID   int64
	DatabaseURL      string
	RedisURL         string

	BinanceBaseURL string
	MempoolBaseURL string

	OpenAIAPIKey string
	OpenAIModel  string

	// APIKey protects mutating HTTP endpoints; empty disables auth.
	APIKey string

	Symbols    []string
	Timeframes []string

	// Engine thresholds.
	Profile          string
	MinConfidence    float64
	MinADX           float64
	TechnicalFloor   float64
	MaxConfidence    float64
	CooldownMins     int
	ScorerTimeoutSec int
	EvalPollSecs     int
	ResolvePollSecs  int

	// Risk limits.
	Capital         float64
	MaxRiskPerTrade float64
	MaxLeverage     float64
	DrawdownLimit   float64
	DrawdownLevCap  float64
}

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		BinanceBaseURL:   strings.TrimSpace(os.Getenv("BINANCE_BASE_URL")),
		MempoolBaseURL:   strings.TrimSpace(os.Getenv("MEMPOOL_BASE_URL")),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		APIKey:           strings.TrimSpace(os.Getenv("API_KEY")),
	}

	if cfg.TelegramBotToken == "" {
		log.Println("Warning: TELEGRAM_BOT_TOKEN not set, signal delivery disabled")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.TelegramChatID = envInt64("TELEGRAM_CHAT_ID", 0)

	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY not set, signal narratives disabled")
	}

	cfg.Symbols = envList("SYMBOLS", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	cfg.Timeframes = envList("TIMEFRAMES", []string{"1h", "4h"})

	cfg.Profile = strings.ToLower(strings.TrimSpace(os.Getenv("ENGINE_PROFILE")))
	if cfg.Profile != "model" {
		cfg.Profile = "technical"
	}

	cfg.MinConfidence = envFloat("MIN_CONFIDENCE", 0.70, 0, 1)
	cfg.MinADX = envFloat("MIN_ADX", 25, 0, 100)
	cfg.TechnicalFloor = envFloat("TECHNICAL_FLOOR", 0.45, 0, 1)
	cfg.MaxConfidence = envFloat("MAX_CONFIDENCE", 0.97, 0, 0.98)
	cfg.CooldownMins = envInt("COOLDOWN_MINS", 30)
	cfg.ScorerTimeoutSec = envInt("SCORER_TIMEOUT_SECS", 5)
	cfg.EvalPollSecs = envInt("EVAL_POLL_SECS", 300)
	cfg.ResolvePollSecs = envInt("RESOLVE_POLL_SECS", 1800)

	cfg.Capital = envFloat("CAPITAL", 10_000, 0, 1e12)
	cfg.MaxRiskPerTrade = envFloat("MAX_RISK_PER_TRADE", 0.02, 0, 1)
	cfg.MaxLeverage = envFloat("MAX_LEVERAGE", 50, 1, 50)
	cfg.DrawdownLimit = envFloat("DRAWDOWN_LIMIT", 0.12, 0, 1)
	cfg.DrawdownLevCap = envFloat("DRAWDOWN_LEV_CAP", 8, 1, 50)

	return cfg
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def, min, max float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > min && n <= max {
			return n
		}
	}
	return def
}

func envList(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
