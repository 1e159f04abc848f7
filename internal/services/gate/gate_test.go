package gate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

func passing() Candidate {
	return Candidate{
		Side:          models.SideLong,
		Entry:         100,
		Stop:          99.5,
		RR:            2,
		Score:         80,
		ATRPct:        0.5,
		HasZone:       true,
		Fresh:         true,
		BarsSinceLast: -1,
	}
}

func TestCheck(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name   string
		mutate func(c *Candidate)
		pass   bool
	}{
		{"passes", func(c *Candidate) {}, true},
		{"wide stop", func(c *Candidate) { c.Stop = 98 }, false},
		{"low rr", func(c *Candidate) { c.RR = 1 }, false},
		{"atr too low", func(c *Candidate) { c.ATRPct = 0.01 }, false},
		{"atr too high", func(c *Candidate) { c.ATRPct = 5 }, false},
		{"stale zone", func(c *Candidate) { c.Fresh = false }, false},
		{"stale without zone", func(c *Candidate) { c.HasZone = false; c.Fresh = false }, true},
		{"cooldown", func(c *Candidate) { c.BarsSinceLast = 2 }, false},
		{"cooldown elapsed", func(c *Candidate) { c.BarsSinceLast = 6 }, true},
		{"low score", func(c *Candidate) { c.Score = 40 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := passing()
			tt.mutate(&c)
			d := Check(cfg, c)
			assert.Equal(t, tt.pass, d.Pass, d.Reasons)
			if !tt.pass {
				assert.NotEmpty(t, d.Reasons)
			}
		})
	}
}

func TestCheckCollectsAllFailures(t *testing.T) {
	c := passing()
	c.RR = 0.5
	c.Score = 10
	d := Check(DefaultConfig(), c)
	assert.False(t, d.Pass)
	assert.Len(t, d.Reasons, 2)
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAdjustInsufficientData(t *testing.T) {
	base := DefaultConfig()
	dc := DefaultDynamicConfig()

	series := constant(dc.MinSamples-1, 2.5)
	series = append(series, math.NaN(), math.NaN())
	got, adj := Adjust(base, series, dc)

	assert.Equal(t, base, got)
	assert.False(t, adj.Applied)
	assert.Equal(t, dc.MinSamples-1, adj.Samples)
}

func TestAdjustMedianAtMidpointIsIdentity(t *testing.T) {
	base := DefaultConfig()
	mid := (base.ATRPctMin + base.ATRPctMax) / 2

	got, adj := Adjust(base, constant(300, mid), DefaultDynamicConfig())

	require.True(t, adj.Applied)
	assert.Equal(t, 1.0, adj.Ratio)
	assert.Equal(t, 200, adj.Samples)
	assert.Equal(t, base, got)
}

func TestAdjustHighVolatility(t *testing.T) {
	base := DefaultConfig()
	mid := (base.ATRPctMin + base.ATRPctMax) / 2

	got, adj := Adjust(base, constant(100, mid*10), DefaultDynamicConfig())

	assert.Equal(t, 1.6, adj.Ratio)
	assert.InDelta(t, base.MaxStopPct*1.6, got.MaxStopPct, 1e-9)
	assert.InDelta(t, base.ATRPctMax*1.6, got.ATRPctMax, 1e-9)
	assert.InDelta(t, base.StopATRMult*1.6, got.StopATRMult, 1e-9)
	assert.InDelta(t, base.MinRR*0.95, got.MinRR, 1e-9)
	assert.Equal(t, base.ScoreMin, got.ScoreMin)
}

func TestAdjustLowVolatility(t *testing.T) {
	base := DefaultConfig()
	mid := (base.ATRPctMin + base.ATRPctMax) / 2

	got, adj := Adjust(base, constant(100, mid/10), DefaultDynamicConfig())

	assert.Equal(t, 0.6, adj.Ratio)
	assert.InDelta(t, base.MaxStopPct*0.6, got.MaxStopPct, 1e-9)
	assert.InDelta(t, base.MinRR*1.05, got.MinRR, 1e-9)
	assert.LessOrEqual(t, got.ATRPctMin, got.ATRPctMax)
}
