package domain

import "time"

// Candle represents a single OHLCV candle for a symbol at a given timeframe.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SupportedSymbols lists the perpetual pairs the engine evaluates by default.
var SupportedSymbols = []string{
	"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT",
	"DOGEUSDT", "AVAXUSDT", "LINKUSDT",
}

// SupportedTimeframes defines the evaluation cadences we run.
var SupportedTimeframes = []string{"1h", "4h"}

// IsSupportedSymbol reports whether the engine evaluates this pair.
func IsSupportedSymbol(symbol string) bool {
	for _, s := range SupportedSymbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// IsSupportedTimeframe reports whether the engine evaluates this cadence.
func IsSupportedTimeframe(timeframe string) bool {
	for _, tf := range SupportedTimeframes {
		if tf == timeframe {
			return true
		}
	}
	return false
}

// TimeframeDuration converts a timeframe label to its bar duration.
// Unknown labels fall back to one hour.
func TimeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// BarsPerYear returns the annualization factor for a timeframe.
func BarsPerYear(timeframe string) float64 {
	d := TimeframeDuration(timeframe)
	return float64(365*24*time.Hour) / float64(d)
}
