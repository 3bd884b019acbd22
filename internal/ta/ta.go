package ta

import (
	"math"

	"als-trading-bot/internal/model"
)

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	n := period
	if len(closes) < n+1 {
		return math.NaN()
	}
	trs := make([]float64, 0, n)
	for i := len(closes) - n; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		tr := math.Max(tr1, math.Max(tr2, tr3))
		trs = append(trs, tr)
	}
	sum := 0.0
	for _, v := range trs {
		sum += v
	}
	return sum / float64(n)
}

// ATRFromBars computes ATR over the given bars, returning fallback when
// fewer than period+1 bars are available.
func ATRFromBars(bars []model.Bar, period int, fallback float64) float64 {
	if len(bars) < period+1 {
		return fallback
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	v := ATR(highs, lows, closes, period)
	if math.IsNaN(v) {
		return fallback
	}
	return v
}

// MeanRange returns the mean high-low range across bars, or fallback
// when no bars are available. Used for trailing-stop distance on M1 data.
func MeanRange(bars []model.Bar, fallback float64) float64 {
	if len(bars) == 0 {
		return fallback
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.High - b.Low
	}
	return sum / float64(len(bars))
}
