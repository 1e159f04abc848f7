package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

func TestComputeAlignsSeries(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 80)
	for i := range candles {
		p := 100 + float64(i)
		candles[i] = models.Candle{Time: base.Add(time.Duration(i) * time.Hour), Open: p, High: p + 1, Low: p - 1, Close: p}
	}

	s := Compute(candles, DefaultConfig())
	require.Equal(t, len(candles), s.Len())
	for _, series := range [][]float64{s.EMA, s.ATR, s.ATRPct, s.ADX, s.BBBw, s.DonchianUpper, s.DonchianLower} {
		assert.Len(t, series, len(candles))
	}

	last := s.At(79, 1)
	assert.InDelta(t, s.ATR[79]/candles[79].Close*100, last.ATRPct, 1e-12)
	assert.Greater(t, last.EMASlope, 0.0)
	assert.Equal(t, 1, last.Trend)
	assert.True(t, math.IsNaN(s.EMASlope(2)))
}
