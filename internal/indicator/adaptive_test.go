package indicator

import (
	"math"
	"testing"
	"time"

	"signalforge/internal/domain"
)

func candles(n int, next func(i int) float64) []domain.Candle {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		c := next(i)
		out[i] = domain.Candle{
			Symbol:    "ETHUSDT",
			Timeframe: "1h",
			OpenTime:  start.Add(time.Duration(i) * time.Hour),
			Open:      c * 0.999,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
			Volume:    500 + float64(i%7)*20,
		}
	}
	return out
}

func TestRSIBandsFollowRegimeTrend(t *testing.T) {
	e := NewEngine()
	cs := candles(250, func(i int) float64 { return 100 * math.Pow(1.001, float64(i)) })

	bull := e.Compute(cs, domain.MarketRegime{Trend: domain.TrendBullish, Volatility: domain.VolatilityLow})
	if bull.RSIUpper != 80 || bull.RSILower != 40 {
		t.Fatalf("bull bands = %.0f/%.0f, want 80/40", bull.RSIUpper, bull.RSILower)
	}

	bear := e.Compute(cs, domain.MarketRegime{Trend: domain.TrendBearish, Volatility: domain.VolatilityLow})
	if bear.RSIUpper != 60 || bear.RSILower != 20 {
		t.Fatalf("bear bands = %.0f/%.0f, want 60/20", bear.RSIUpper, bear.RSILower)
	}

	neutral := e.Compute(cs, domain.MarketRegime{Trend: domain.TrendNeutral, Volatility: domain.VolatilityLow})
	if neutral.RSIUpper != 70 || neutral.RSILower != 30 {
		t.Fatalf("neutral bands = %.0f/%.0f, want 70/30", neutral.RSIUpper, neutral.RSILower)
	}
}

func TestBollingerWidensInHighVol(t *testing.T) {
	e := NewEngine()
	cs := candles(250, func(i int) float64 { return 100 + 3*math.Sin(float64(i)/5) })

	calm := e.Compute(cs, domain.MarketRegime{Trend: domain.TrendNeutral, Volatility: domain.VolatilityLow})
	wild := e.Compute(cs, domain.MarketRegime{Trend: domain.TrendNeutral, Volatility: domain.VolatilityHigh})

	if calm.BBStdDevs != 2.0 || wild.BBStdDevs != 2.5 {
		t.Fatalf("sigma multipliers = %.1f/%.1f, want 2.0/2.5", calm.BBStdDevs, wild.BBStdDevs)
	}
	if wild.BBWidth <= calm.BBWidth {
		t.Fatalf("high-vol bands should be wider: %.4f vs %.4f", wild.BBWidth, calm.BBWidth)
	}
}

func TestUptrendSnapshot(t *testing.T) {
	e := NewEngine()
	cs := candles(250, func(i int) float64 { return 100 * math.Pow(1.002, float64(i)) })

	snap := e.Compute(cs, domain.MarketRegime{Trend: domain.TrendBullish, Volatility: domain.VolatilityLow})
	if !snap.EMACrossBull {
		t.Fatalf("uptrend should have a bullish EMA cross")
	}
	if snap.MACDHist <= 0 {
		t.Fatalf("uptrend should have positive MACD histogram, got %f", snap.MACDHist)
	}
	if snap.ATR <= 0 {
		t.Fatalf("ATR must be positive on a moving series, got %f", snap.ATR)
	}
	if snap.ADX <= 20 {
		t.Fatalf("steady uptrend should post trending ADX, got %f", snap.ADX)
	}
	if snap.RSI < 50 {
		t.Fatalf("uptrend RSI should be above midline, got %f", snap.RSI)
	}
}

func TestVolumeFeaturesBounded(t *testing.T) {
	e := NewEngine()
	cs := candles(250, func(i int) float64 { return 100 + float64(i%10) })
	snap := e.Compute(cs, domain.MarketRegime{Trend: domain.TrendNeutral, Volatility: domain.VolatilityMedium})

	if snap.VolumeRatio <= 0 {
		t.Fatalf("volume ratio must be positive, got %f", snap.VolumeRatio)
	}
	if snap.VolumePriceCorr < -1 || snap.VolumePriceCorr > 1 {
		t.Fatalf("volume-price correlation out of [-1,1]: %f", snap.VolumePriceCorr)
	}
	if snap.OBVMomentum < -1 || snap.OBVMomentum > 1 {
		t.Fatalf("obv momentum out of [-1,1]: %f", snap.OBVMomentum)
	}
}
