// Package indicators implements technical indicators over candle series.
//
// Every function returns a slice of the same length as its input. Indices
// before the indicator has enough data hold NaN. Inputs are never modified.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"

	"FinSignal/internal/domain/models"
)

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Valid reports whether v is a usable indicator value.
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Last returns the final element of s, or NaN when s is empty.
func Last(s []float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// maskWarmup replaces the first period-1 values, which talib leaves at zero,
// with NaN.
func maskWarmup(out []float64, period int) []float64 {
	for i := 0; i < period-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// EMA is seeded with the simple average of the first period values at index
// period-1 and smoothed with k = 2/(period+1) afterwards.
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nanSlice(len(values))
	}
	return maskWarmup(talib.Ema(values, period), period)
}

// SMA is the rolling arithmetic mean.
func SMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nanSlice(len(values))
	}
	return maskWarmup(talib.Sma(values, period), period)
}

// TrueRange of each bar. The first bar has no previous close so it uses high-low.
func TrueRange(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			out[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		out[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return out
}

// ATR uses Wilder smoothing seeded with the mean true range at index period-1.
func ATR(candles []models.Candle, period int) []float64 {
	out := nanSlice(len(candles))
	if period <= 0 || len(candles) < period {
		return out
	}
	tr := TrueRange(candles)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev
	p := float64(period)
	for i := period; i < len(candles); i++ {
		prev = (prev*(p-1) + tr[i]) / p
		out[i] = prev
	}
	return out
}

// ADX is Wilder's average directional index. The first value appears at
// index 2*period-1.
func ADX(candles []models.Candle, period int) []float64 {
	n := len(candles)
	out := nanSlice(n)
	if period <= 0 || n < 2*period {
		return out
	}
	tr := TrueRange(candles)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := candles[i].High - candles[i-1].High
		down := candles[i-1].Low - candles[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	p := float64(period)
	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}
	smTR /= p
	smPlus /= p
	smMinus /= p

	dx := nanSlice(n)
	dx[period] = directionalIndex(smPlus, smMinus, smTR)
	for i := period + 1; i < n; i++ {
		smTR = (smTR*(p-1) + tr[i]) / p
		smPlus = (smPlus*(p-1) + plusDM[i]) / p
		smMinus = (smMinus*(p-1) + minusDM[i]) / p
		dx[i] = directionalIndex(smPlus, smMinus, smTR)
	}

	seed := 2*period - 1
	sum := 0.0
	for i := period; i <= seed; i++ {
		sum += dx[i]
	}
	prev := sum / p
	out[seed] = prev
	for i := seed + 1; i < n; i++ {
		prev = (prev*(p-1) + dx[i]) / p
		out[i] = prev
	}
	return out
}

func directionalIndex(plusDM, minusDM, tr float64) float64 {
	if tr <= 0 {
		return 0
	}
	plusDI := 100 * plusDM / tr
	minusDI := 100 * minusDM / tr
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}

// BollingerBandwidth returns (upper-lower)/middle*100 with bands at k
// population standard deviations around the SMA.
func BollingerBandwidth(values []float64, period int, k float64) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	means := SMA(values, period)
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean := means[i]
		if mean == 0 {
			continue
		}
		variance := 0.0
		for _, v := range window {
			d := v - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		out[i] = 2 * k * sd / mean * 100
	}
	return out
}

// Donchian returns the highest high and lowest low over the trailing period,
// current bar included.
func Donchian(candles []models.Candle, period int) (upper, lower []float64) {
	upper = nanSlice(len(candles))
	lower = nanSlice(len(candles))
	if period <= 0 || len(candles) < period {
		return upper, lower
	}
	for i := period - 1; i < len(candles); i++ {
		hi, lo := candles[i].High, candles[i].Low
		for j := i - period + 1; j < i; j++ {
			hi = math.Max(hi, candles[j].High)
			lo = math.Min(lo, candles[j].Low)
		}
		upper[i] = hi
		lower[i] = lo
	}
	return upper, lower
}

// HeikinAshi transforms candles into Heikin-Ashi bars.
func HeikinAshi(candles []models.Candle) []models.Candle {
	out := make([]models.Candle, len(candles))
	for i, c := range candles {
		haClose := (c.Open + c.High + c.Low + c.Close) / 4
		var haOpen float64
		if i == 0 {
			haOpen = (c.Open + c.Close) / 2
		} else {
			haOpen = (out[i-1].Open + out[i-1].Close) / 2
		}
		out[i] = models.Candle{
			Time:   c.Time,
			Open:   haOpen,
			High:   math.Max(c.High, math.Max(haOpen, haClose)),
			Low:    math.Min(c.Low, math.Min(haOpen, haClose)),
			Close:  haClose,
			Volume: c.Volume,
		}
	}
	return out
}

// RangePosition locates close within the trailing [low, high] range of
// lookback bars ending at idx: 0 at the range low, 1 at the range high.
func RangePosition(candles []models.Candle, idx, lookback int) float64 {
	if idx < 0 || idx >= len(candles) || lookback <= 0 {
		return math.NaN()
	}
	start := idx - lookback + 1
	if start < 0 {
		start = 0
	}
	hi, lo := candles[idx].High, candles[idx].Low
	for j := start; j < idx; j++ {
		hi = math.Max(hi, candles[j].High)
		lo = math.Min(lo, candles[j].Low)
	}
	if hi <= lo {
		return math.NaN()
	}
	return (candles[idx].Close - lo) / (hi - lo)
}
