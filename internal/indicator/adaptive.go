package indicator

import (
	"math"

	"signalforge/internal/domain"
	"signalforge/internal/ta"
)

const (
	rsiPeriod    = 14
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
	emaLong      = 50
	bbPeriod     = 20
	atrPeriod    = 14
	adxPeriod    = 14
	volumeWindow = 20
	obvWindow    = 10
)

// Snapshot is the regime-conditioned indicator state of the latest bar.
type Snapshot struct {
	RSI      float64 `json:"rsi"`
	RSIUpper float64 `json:"rsi_upper"`
	RSILower float64 `json:"rsi_lower"`

	EMA12        float64 `json:"ema_12"`
	EMA26        float64 `json:"ema_26"`
	EMA50        float64 `json:"ema_50"`
	EMACrossBull bool    `json:"ema_cross_bull"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`
	BBPosition float64 `json:"bb_position"`
	BBWidth    float64 `json:"bb_width"`
	BBStdDevs  float64 `json:"bb_std_devs"`

	ATR float64 `json:"atr"`
	ADX float64 `json:"adx"`

	VolumeRatio     float64 `json:"volume_ratio"`
	VolumePriceCorr float64 `json:"volume_price_corr"`
	OBVMomentum     float64 `json:"obv_momentum"`
}

// Engine computes standard rolling-window indicators; the adaptivity is
// solely in threshold and parameter selection, keyed off the classified
// regime.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Compute builds the snapshot for the final bar of the window. The
// indicator formulas are fixed; RSI bands shift with the regime trend
// and the Bollinger sigma multiplier widens with regime volatility.
func (e *Engine) Compute(candles []domain.Candle, regime domain.MarketRegime) Snapshot {
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i := range candles {
		closes[i] = candles[i].Close
		highs[i] = candles[i].High
		lows[i] = candles[i].Low
		volumes[i] = candles[i].Volume
	}

	snap := Snapshot{}
	snap.RSIUpper, snap.RSILower = rsiBands(regime.Trend)
	snap.BBStdDevs = bollingerStdDevs(regime.Volatility)

	if rsi := ta.RSISeries(closes, rsiPeriod); len(rsi) > 0 {
		snap.RSI = lastValid(rsi, 50)
	} else {
		snap.RSI = 50
	}

	ema12 := ta.EMASeries(closes, macdFast)
	ema26 := ta.EMASeries(closes, macdSlow)
	ema50 := ta.EMASeries(closes, emaLong)
	if n > 0 {
		snap.EMA12 = ema12[n-1]
		snap.EMA26 = ema26[n-1]
		snap.EMA50 = ema50[n-1]
		snap.EMACrossBull = snap.EMA12 > snap.EMA26
	}

	macdLine, signalLine := ta.MACDSeries(closes, macdFast, macdSlow, macdSignal)
	if n > 0 {
		snap.MACD = macdLine[n-1]
		snap.MACDSignal = signalLine[n-1]
		snap.MACDHist = snap.MACD - snap.MACDSignal
	}

	middle, upper, lower := ta.BollingerSeries(closes, bbPeriod, snap.BBStdDevs)
	if n > 0 {
		snap.BBMiddle = lastValid(middle, 0)
		snap.BBUpper = lastValid(upper, 0)
		snap.BBLower = lastValid(lower, 0)
		if snap.BBUpper != snap.BBLower {
			snap.BBPosition = (closes[n-1] - snap.BBLower) / (snap.BBUpper - snap.BBLower)
		} else {
			snap.BBPosition = 0.5
		}
		if snap.BBMiddle != 0 {
			snap.BBWidth = (snap.BBUpper - snap.BBLower) / snap.BBMiddle
		}
	}

	snap.ATR = zeroIfNaN(ta.ATR(highs, lows, closes, atrPeriod))
	snap.ADX = zeroIfNaN(ta.ADX(highs, lows, closes, adxPeriod))

	snap.VolumeRatio = volumeRatio(volumes)
	snap.VolumePriceCorr = volumePriceCorrelation(closes, volumes)
	snap.OBVMomentum = obvMomentum(closes, volumes)

	return snap
}

// rsiBands widens the overbought band in bull regimes and lowers both
// bands in bear regimes, so band breaches stay meaningful within trend.
func rsiBands(trend domain.TrendState) (upper, lower float64) {
	switch trend {
	case domain.TrendBullish:
		return 80, 40
	case domain.TrendBearish:
		return 60, 20
	default:
		return 70, 30
	}
}

func bollingerStdDevs(tier domain.VolatilityTier) float64 {
	if tier == domain.VolatilityHigh {
		return 2.5
	}
	return 2.0
}

func volumeRatio(volumes []float64) float64 {
	if len(volumes) < volumeWindow+1 {
		return 1
	}
	mean, _ := ta.MeanStd(volumes[len(volumes)-volumeWindow-1 : len(volumes)-1])
	if mean == 0 {
		return 1
	}
	return volumes[len(volumes)-1] / mean
}

func volumePriceCorrelation(closes, volumes []float64) float64 {
	if len(closes) < volumeWindow || len(volumes) < volumeWindow {
		return 0
	}
	return ta.Correlation(closes[len(closes)-volumeWindow:], volumes[len(volumes)-volumeWindow:])
}

// obvMomentum is the relative change of on-balance volume over the
// trailing window, clamped to [-1, 1].
func obvMomentum(closes, volumes []float64) float64 {
	obv := ta.OBVSeries(closes, volumes)
	if len(obv) < obvWindow+1 {
		return 0
	}
	prev := obv[len(obv)-obvWindow-1]
	cur := obv[len(obv)-1]
	scale := math.Abs(prev)
	if scale < 1 {
		scale = 1
	}
	v := (cur - prev) / scale
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func lastValid(series []float64, fallback float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return fallback
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
