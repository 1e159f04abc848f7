package signals

import (
	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/indicators"
)

// Bias is the higher-timeframe direction.
type Bias int

const (
	BiasShort   Bias = -1
	BiasNeutral Bias = 0
	BiasLong    Bias = 1
)

func (b Bias) String() string {
	switch b {
	case BiasLong:
		return "long"
	case BiasShort:
		return "short"
	}
	return "neutral"
}

// Side maps a directional bias to a trade side.
func (b Bias) Side() (models.Side, bool) {
	switch b {
	case BiasLong:
		return models.SideLong, true
	case BiasShort:
		return models.SideShort, true
	}
	return "", false
}

// ReferenceBias is long when every reference closes above its EMA and short
// when every reference closes below it. With withSlope the EMA must also be
// rising (long) or falling (short) on the last bar.
func ReferenceBias(refs [][]models.Candle, period int, withSlope bool) Bias {
	if len(refs) == 0 {
		return BiasNeutral
	}
	var agreed Bias
	for k, ref := range refs {
		b := seriesBias(ref, period, withSlope)
		if b == BiasNeutral || (k > 0 && b != agreed) {
			return BiasNeutral
		}
		agreed = b
	}
	return agreed
}

func seriesBias(candles []models.Candle, period int, withSlope bool) Bias {
	n := len(candles)
	if n < period+1 {
		return BiasNeutral
	}
	ema := indicators.EMA(models.Closes(candles), period)
	cur, prev := ema[n-1], ema[n-2]
	if !indicators.Valid(cur) || !indicators.Valid(prev) {
		return BiasNeutral
	}
	close := candles[n-1].Close
	switch {
	case close > cur && (!withSlope || cur >= prev):
		return BiasLong
	case close < cur && (!withSlope || cur <= prev):
		return BiasShort
	}
	return BiasNeutral
}
