package domain

import "time"

type Direction string

const (
	DirectionBuy        Direction = "BUY"
	DirectionSell       Direction = "SELL"
	DirectionStrongBuy  Direction = "STRONG_BUY"
	DirectionStrongSell Direction = "STRONG_SELL"
	DirectionNeutral    Direction = "NEUTRAL"
)

// IsLong reports whether the direction opens a long position.
func (d Direction) IsLong() bool {
	return d == DirectionBuy || d == DirectionStrongBuy
}

// IsShort reports whether the direction opens a short position.
func (d Direction) IsShort() bool {
	return d == DirectionSell || d == DirectionStrongSell
}

type TrendState string

const (
	TrendBullish TrendState = "bullish"
	TrendBearish TrendState = "bearish"
	TrendNeutral TrendState = "neutral"
)

type MarketPhase string

const (
	PhaseAccumulation MarketPhase = "accumulation"
	PhaseDistribution MarketPhase = "distribution"
	PhaseMarkup       MarketPhase = "markup"
	PhaseMarkdown     MarketPhase = "markdown"
)

type VolatilityTier string

const (
	VolatilityLow    VolatilityTier = "low"
	VolatilityMedium VolatilityTier = "medium"
	VolatilityHigh   VolatilityTier = "high"
)

// MarketRegime is computed fresh per evaluation and never mutated.
type MarketRegime struct {
	Trend         TrendState     `json:"trend"`
	Phase         MarketPhase    `json:"phase"`
	Strength      float64        `json:"strength"`
	Volatility    VolatilityTier `json:"volatility"`
	AnnualizedVol float64        `json:"annualized_vol"`
	CrisisMode    bool           `json:"crisis_mode"`
}

// Provenance distinguishes live provider observations from neutral
// fallbacks substituted when a provider is unreachable. The synthesizer
// discounts fallback contributions toward zero.
type Provenance string

const (
	ProvenanceLive     Provenance = "live"
	ProvenanceFallback Provenance = "fallback"
)

// ScoredContext is the bounded contribution of one context scorer.
// Boost is clamped to [-0.10, 0.30] by the scorer itself.
type ScoredContext struct {
	Boost      float64            `json:"boost"`
	Provenance Provenance         `json:"provenance"`
	Rationale  map[string]string  `json:"rationale"`
	Metrics    map[string]float64 `json:"metrics"`
}

// NeutralContext is the fallback returned when a provider is unavailable.
func NeutralContext(reason string) ScoredContext {
	return ScoredContext{
		Boost:      0,
		Provenance: ProvenanceFallback,
		Rationale:  map[string]string{"fallback": reason},
		Metrics:    map[string]float64{"is_real_data": 0},
	}
}

// SignalRationale carries the per-stage sub-scores so downstream audit
// never has to re-derive them.
type SignalRationale struct {
	TechnicalScore  float64            `json:"technical_score"`
	EnsembleProb    float64            `json:"ensemble_prob"`
	SmartMoneyBoost float64            `json:"smart_money_boost"`
	PerModel        map[string]float64 `json:"per_model,omitempty"`
	ContextSource   Provenance         `json:"context_source"`
	Regime          MarketRegime       `json:"regime"`
	ADX             float64            `json:"adx"`
	RSI             float64            `json:"rsi"`
	ATR             float64            `json:"atr"`
	Checks          map[string]string  `json:"checks"`
}

// EnhancedSignal is the engine's sole output artifact. Immutable after
// creation; consumers must treat it as stale past ValidUntil.
type EnhancedSignal struct {
	ID            int64           `json:"id"`
	Symbol        string          `json:"symbol"`
	Timeframe     string          `json:"timeframe"`
	Direction     Direction       `json:"direction"`
	Confidence    float64         `json:"confidence"`
	EntryPrice    float64         `json:"entry_price"`
	StopLoss      float64         `json:"stop_loss"`
	TakeProfits   []float64       `json:"take_profits"`
	PositionPct   float64         `json:"position_size_pct"`
	Leverage      float64         `json:"leverage"`
	RiskReward    float64         `json:"risk_reward"`
	KellyFraction float64         `json:"kelly_fraction"`
	Rationale     SignalRationale `json:"rationale"`
	CreatedAt     time.Time       `json:"created_at"`
	ValidUntil    time.Time       `json:"valid_until"`
}

// RejectionGate identifies which hard gate stopped an evaluation.
type RejectionGate string

const (
	GateTrendStrength RejectionGate = "trend_strength"
	GateTechnical     RejectionGate = "technical_floor"
	GateConfidence    RejectionGate = "min_confidence"
	GateNeutral       RejectionGate = "neutral_direction"
	GateCooldown      RejectionGate = "cooldown"
)

// Rejection is the diagnostic near-miss record for a gated evaluation.
// Never delivered to end users.
type Rejection struct {
	Symbol     string        `json:"symbol"`
	Timeframe  string        `json:"timeframe"`
	Gate       RejectionGate `json:"gate"`
	Direction  Direction     `json:"direction"`
	Technical  float64       `json:"technical_score"`
	Ensemble   float64       `json:"ensemble_prob"`
	Confidence float64       `json:"confidence"`
	ADX        float64       `json:"adx"`
	CreatedAt  time.Time     `json:"created_at"`
}

// TradeOutcome is a resolved signal result feeding the dynamic
// win/loss estimate and the ensemble weight refresh.
type TradeOutcome struct {
	ID         int64     `json:"id"`
	SignalID   int64     `json:"signal_id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Direction  Direction `json:"direction"`
	ReturnPct  float64   `json:"return_pct"`
	Win        bool      `json:"win"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// ModelVersion is a frozen, versioned model artifact plus the feature
// schema it was trained against.
type ModelVersion struct {
	ID             int64
	ModelKey       string
	Version        int
	FeatureSchema  []string
	TrainedFrom    time.Time
	TrainedTo      time.Time
	TrainedAt      time.Time
	MetricsJSON    string
	ArtifactFormat string
	ArtifactBlob   []byte
	IsActive       bool
	ActivatedAt    *time.Time
	CreatedAt      time.Time
}

// PerformanceReport maps model key to hit rate over recently resolved
// outcomes; drives ensemble weight updates.
type PerformanceReport struct {
	HitRate map[string]float64
	Samples int
	From    time.Time
	To      time.Time
}
