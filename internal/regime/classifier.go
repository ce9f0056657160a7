package regime

import (
	"math"

	"signalforge/internal/domain"
	"signalforge/internal/ta"
)

const (
	minBars       = 200
	shortMAPeriod = 20
	longMAPeriod  = 50
	drawdownBars  = 30
)

type Config struct {
	LowVolThreshold    float64
	HighVolThreshold   float64
	CrisisVolThreshold float64
	CrisisDrawdown     float64
}

func DefaultConfig() Config {
	return Config{
		LowVolThreshold:    0.30,
		HighVolThreshold:   0.60,
		CrisisVolThreshold: 0.90,
		CrisisDrawdown:     -0.10,
	}
}

type Classifier struct {
	cfg     Config
	anomaly *AnomalyDetector
}

func NewClassifier(cfg Config, anomaly *AnomalyDetector) *Classifier {
	def := DefaultConfig()
	if cfg.LowVolThreshold <= 0 {
		cfg.LowVolThreshold = def.LowVolThreshold
	}
	if cfg.HighVolThreshold <= cfg.LowVolThreshold {
		cfg.HighVolThreshold = def.HighVolThreshold
	}
	if cfg.CrisisVolThreshold <= cfg.HighVolThreshold {
		cfg.CrisisVolThreshold = def.CrisisVolThreshold
	}
	if cfg.CrisisDrawdown >= 0 {
		cfg.CrisisDrawdown = def.CrisisDrawdown
	}
	return &Classifier{cfg: cfg, anomaly: anomaly}
}

// Classify labels trend, phase, volatility and crisis state from an OHLCV
// window. Fails closed: with insufficient history it returns a neutral
// regime rather than erroring, and downstream gates suppress any signal.
func (c *Classifier) Classify(candles []domain.Candle, timeframe string) domain.MarketRegime {
	if len(candles) < minBars {
		return neutralRegime()
	}

	closes := make([]float64, len(candles))
	for i := range candles {
		closes[i] = candles[i].Close
	}
	price := closes[len(closes)-1]
	if price <= 0 {
		return neutralRegime()
	}

	rets := ta.Returns(closes)
	_, retStd := ta.MeanStd(rets)
	annVol := retStd * math.Sqrt(domain.BarsPerYear(timeframe))

	tier := domain.VolatilityMedium
	switch {
	case annVol < c.cfg.LowVolThreshold:
		tier = domain.VolatilityLow
	case annVol < c.cfg.HighVolThreshold:
		tier = domain.VolatilityMedium
	default:
		tier = domain.VolatilityHigh
	}

	shortMA := ta.SMA(closes, shortMAPeriod)
	longMA := ta.SMA(closes, longMAPeriod)
	if math.IsNaN(shortMA) || math.IsNaN(longMA) || shortMA == 0 {
		return neutralRegime()
	}

	trend := domain.TrendNeutral
	phase := domain.PhaseAccumulation
	switch {
	case price > shortMA && price > longMA && shortMA > longMA:
		trend = domain.TrendBullish
		phase = domain.PhaseMarkup
	case price < shortMA && price < longMA:
		trend = domain.TrendBearish
		phase = domain.PhaseMarkdown
	default:
		if price < shortMA {
			phase = domain.PhaseAccumulation
		} else {
			phase = domain.PhaseDistribution
		}
	}

	strength := clamp01(math.Abs(price-shortMA) / shortMA * 10)

	crisis := annVol > c.cfg.CrisisVolThreshold || c.recentDrawdown(closes) < c.cfg.CrisisDrawdown
	if !crisis && c.anomaly != nil {
		crisis = c.anomaly.Anomalous(candles)
	}

	return domain.MarketRegime{
		Trend:         trend,
		Phase:         phase,
		Strength:      strength,
		Volatility:    tier,
		AnnualizedVol: annVol,
		CrisisMode:    crisis,
	}
}

// recentDrawdown is the loss from the running peak over the trailing
// short horizon, expressed as a negative fraction.
func (c *Classifier) recentDrawdown(closes []float64) float64 {
	start := len(closes) - drawdownBars
	if start < 0 {
		start = 0
	}
	window := closes[start:]
	peak := window[0]
	worst := 0.0
	for _, v := range window {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := v/peak - 1
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

func neutralRegime() domain.MarketRegime {
	return domain.MarketRegime{
		Trend:      domain.TrendNeutral,
		Phase:      domain.PhaseAccumulation,
		Strength:   0,
		Volatility: domain.VolatilityMedium,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
