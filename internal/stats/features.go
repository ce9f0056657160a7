package stats

import (
	"math"

	"signalforge/internal/ta"

	"gonum.org/v1/gonum/stat"
)

const (
	minBars        = 100
	entropyBins    = 20
	shortVolWindow = 10
	longVolWindow  = 50
)

// Features are the higher-order statistical descriptors of a price
// window. All values are bounded; degraded windows produce Neutral().
type Features struct {
	Hurst               float64 `json:"hurst"`
	DFA                 float64 `json:"dfa"`
	Skew                float64 `json:"skew"`
	Kurtosis            float64 `json:"kurtosis"`
	VolRegime           float64 `json:"vol_regime"`
	VolPercentile       float64 `json:"vol_percentile"`
	MomentumPersistence float64 `json:"momentum_persistence"`
	Entropy             float64 `json:"entropy"`
	Degraded            bool    `json:"degraded"`
}

// Neutral is the fail-closed default used when the window is too short.
// The values carry no directional information, so downstream confidence
// gates naturally suppress signals built from them.
func Neutral() Features {
	return Features{
		Hurst:               0.5,
		DFA:                 0.5,
		Skew:                0,
		Kurtosis:            0,
		VolRegime:           0,
		VolPercentile:       0.5,
		MomentumPersistence: 0.5,
		Entropy:             1,
		Degraded:            true,
	}
}

type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Compute derives the statistical features of a close series. Requires
// at least 100 bars; shorter windows degrade to Neutral() rather than
// erroring.
func (e *Engine) Compute(closes []float64) Features {
	if len(closes) < minBars {
		return Neutral()
	}
	rets := ta.Returns(closes)
	if len(rets) < minBars-1 {
		return Neutral()
	}

	return Features{
		Hurst:               HurstExponent(rets),
		DFA:                 DFAExponent(rets),
		Skew:                boundedMoment(stat.Skew(rets, nil), 10),
		Kurtosis:            boundedMoment(stat.ExKurtosis(rets, nil), 50),
		VolRegime:           volRegime(rets),
		VolPercentile:       volPercentile(rets),
		MomentumPersistence: momentumPersistence(rets),
		Entropy:             ShannonEntropy(rets, entropyBins),
	}
}

// HurstExponent estimates long-range persistence via rescaled-range
// analysis over multiple lag windows with a log-log slope fit. 0.5 is a
// random walk; above trends, below mean-reverts. Clamped to [0,1].
func HurstExponent(rets []float64) float64 {
	lags := []int{8, 16, 32, 64}
	logN := make([]float64, 0, len(lags))
	logRS := make([]float64, 0, len(lags))

	for _, lag := range lags {
		if len(rets) < lag*2 {
			continue
		}
		rs := meanRescaledRange(rets, lag)
		if rs <= 0 {
			continue
		}
		logN = append(logN, math.Log(float64(lag)))
		logRS = append(logRS, math.Log(rs))
	}
	if len(logN) < 3 {
		return 0.5
	}
	_, slope := stat.LinearRegression(logN, logRS, nil, false)
	return clamp(slope, 0, 1)
}

func meanRescaledRange(rets []float64, window int) float64 {
	chunks := len(rets) / window
	if chunks == 0 {
		return 0
	}
	total := 0.0
	counted := 0
	for c := 0; c < chunks; c++ {
		chunk := rets[c*window : (c+1)*window]
		mean, std := ta.MeanStd(chunk)
		if std == 0 {
			continue
		}
		cum := 0.0
		minCum := 0.0
		maxCum := 0.0
		for _, r := range chunk {
			cum += r - mean
			if cum < minCum {
				minCum = cum
			}
			if cum > maxCum {
				maxCum = cum
			}
		}
		total += (maxCum - minCum) / std
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

// DFAExponent is the detrended-fluctuation scaling exponent: cumulative
// deviation profile, per-box linear detrending, log-log slope of the RMS
// fluctuation across logarithmically spaced box sizes. Clamped to [0,2].
func DFAExponent(rets []float64) float64 {
	mean, _ := ta.MeanStd(rets)
	profile := make([]float64, len(rets))
	cum := 0.0
	for i, r := range rets {
		cum += r - mean
		profile[i] = cum
	}

	sizes := []int{8, 12, 16, 24, 32, 48}
	logN := make([]float64, 0, len(sizes))
	logF := make([]float64, 0, len(sizes))
	for _, n := range sizes {
		if len(profile) < n*2 {
			continue
		}
		f := boxFluctuation(profile, n)
		if f <= 0 {
			continue
		}
		logN = append(logN, math.Log(float64(n)))
		logF = append(logF, math.Log(f))
	}
	if len(logN) < 3 {
		return 0.5
	}
	_, slope := stat.LinearRegression(logN, logF, nil, false)
	return clamp(slope, 0, 2)
}

func boxFluctuation(profile []float64, boxSize int) float64 {
	boxes := len(profile) / boxSize
	if boxes == 0 {
		return 0
	}
	xs := make([]float64, boxSize)
	for i := range xs {
		xs[i] = float64(i)
	}
	total := 0.0
	for b := 0; b < boxes; b++ {
		box := profile[b*boxSize : (b+1)*boxSize]
		alpha, beta := stat.LinearRegression(xs, box, nil, false)
		ss := 0.0
		for i, v := range box {
			d := v - (alpha + beta*xs[i])
			ss += d * d
		}
		total += ss / float64(boxSize)
	}
	return math.Sqrt(total / float64(boxes))
}

// volRegime compares short-window vs long-window realized volatility:
// +1 spike (ratio > 1.5), -1 compressed (ratio < 0.5), 0 normal.
func volRegime(rets []float64) float64 {
	if len(rets) < longVolWindow {
		return 0
	}
	_, shortVol := ta.MeanStd(rets[len(rets)-shortVolWindow:])
	_, longVol := ta.MeanStd(rets[len(rets)-longVolWindow:])
	if longVol == 0 {
		return 0
	}
	ratio := shortVol / longVol
	switch {
	case ratio > 1.5:
		return 1
	case ratio < 0.5:
		return -1
	default:
		return 0
	}
}

// volPercentile ranks the current short-window volatility against the
// rolling historical distribution of short-window volatilities.
func volPercentile(rets []float64) float64 {
	if len(rets) < shortVolWindow*2 {
		return 0.5
	}
	history := make([]float64, 0, len(rets)-shortVolWindow)
	for i := shortVolWindow; i <= len(rets); i++ {
		_, v := ta.MeanStd(rets[i-shortVolWindow : i])
		history = append(history, v)
	}
	current := history[len(history)-1]
	below := 0
	for _, v := range history {
		if v <= current {
			below++
		}
	}
	return float64(below) / float64(len(history))
}

// momentumPersistence is the fraction of consecutive same-signed
// returns, already on [0,1].
func momentumPersistence(rets []float64) float64 {
	if len(rets) < 2 {
		return 0.5
	}
	same := 0
	counted := 0
	for i := 1; i < len(rets); i++ {
		if rets[i] == 0 || rets[i-1] == 0 {
			continue
		}
		counted++
		if (rets[i] > 0) == (rets[i-1] > 0) {
			same++
		}
	}
	if counted == 0 {
		return 0.5
	}
	return float64(same) / float64(counted)
}

// ShannonEntropy is the normalized entropy of a fixed-bin histogram of
// returns, divided by log2(bins) to land on [0,1]: 1 means the return
// distribution is maximally unpredictable.
func ShannonEntropy(rets []float64, bins int) float64 {
	if len(rets) == 0 || bins < 2 {
		return 1
	}
	lo := rets[0]
	hi := rets[0]
	for _, r := range rets {
		if r < lo {
			lo = r
		}
		if r > hi {
			hi = r
		}
	}
	if hi == lo {
		return 0
	}
	counts := make([]int, bins)
	width := (hi - lo) / float64(bins)
	for _, r := range rets {
		idx := int((r - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	entropy := 0.0
	n := float64(len(rets))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return clamp(entropy/math.Log2(float64(bins)), 0, 1)
}

func boundedMoment(v, limit float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return clamp(v, -limit, limit)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
