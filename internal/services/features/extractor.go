// Package features precomputes the indicator series a candle set needs for
// signal generation and reads per-bar feature values from them.
package features

import (
	"math"

	"github.com/creasty/defaults"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/indicators"
)

type Config struct {
	EMAPeriod        int     `yaml:"ema_period" default:"50" validate:"gte=2"`
	ATRPeriod        int     `yaml:"atr_period" default:"14" validate:"gte=2"`
	ADXPeriod        int     `yaml:"adx_period" default:"14" validate:"gte=2"`
	BBPeriod         int     `yaml:"bb_period" default:"20" validate:"gte=2"`
	BBK              float64 `yaml:"bb_k" default:"2" validate:"gt=0"`
	DonchianPeriod   int     `yaml:"donchian_period" default:"20" validate:"gte=2"`
	EMASlopeLookback int     `yaml:"ema_slope_lookback" default:"5" validate:"gte=1"`
}

func DefaultConfig() Config {
	var c Config
	defaults.MustSet(&c)
	return c
}

// Series holds indicator outputs aligned with Candles.
type Series struct {
	Candles       []models.Candle
	EMA           []float64
	ATR           []float64
	ATRPct        []float64
	ADX           []float64
	BBBw          []float64
	DonchianUpper []float64
	DonchianLower []float64

	slopeLookback int
}

func Compute(candles []models.Candle, cfg Config) *Series {
	closes := models.Closes(candles)
	atr := indicators.ATR(candles, cfg.ATRPeriod)
	s := &Series{
		Candles:       candles,
		EMA:           indicators.EMA(closes, cfg.EMAPeriod),
		ATR:           atr,
		ATRPct:        ATRPercent(candles, atr),
		ADX:           indicators.ADX(candles, cfg.ADXPeriod),
		BBBw:          indicators.BollingerBandwidth(closes, cfg.BBPeriod, cfg.BBK),
		slopeLookback: cfg.EMASlopeLookback,
	}
	s.DonchianUpper, s.DonchianLower = indicators.Donchian(candles, cfg.DonchianPeriod)
	return s
}

// ATRPercent expresses ATR as a percentage of close.
func ATRPercent(candles []models.Candle, atr []float64) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		if i >= len(atr) || candles[i].Close == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = atr[i] / candles[i].Close * 100
	}
	return out
}

// Len is the number of bars.
func (s *Series) Len() int { return len(s.Candles) }

// EMASlope is the percentage change of the EMA over the slope lookback ending at i.
func (s *Series) EMASlope(i int) float64 {
	j := i - s.slopeLookback
	if j < 0 || i >= len(s.EMA) {
		return math.NaN()
	}
	prev := s.EMA[j]
	if !indicators.Valid(prev) || prev == 0 {
		return math.NaN()
	}
	return (s.EMA[i] - prev) / prev * 100
}

// At reads the market features of bar i. StopPct is left for the caller.
func (s *Series) At(i int, trend int) models.SignalFeatures {
	return models.SignalFeatures{
		ATRPct:   s.ATRPct[i],
		ADX:      s.ADX[i],
		BBBw:     s.BBBw[i],
		EMASlope: s.EMASlope(i),
		Trend:    trend,
	}
}
