package signals

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/features"
	"FinSignal/internal/services/gate"
	"FinSignal/internal/services/zones"
)

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

type fakeHistory struct{ signals []models.Signal }

func (f *fakeHistory) HasNear(key models.SignalKey, ts time.Time, window time.Duration) bool {
	for _, s := range f.signals {
		d := s.Timestamp.Sub(ts)
		if d < 0 {
			d = -d
		}
		if s.Key() == key && d <= window {
			return true
		}
	}
	return false
}

func (f *fakeHistory) Latest(key models.SignalKey) (models.Signal, bool) {
	for i := len(f.signals) - 1; i >= 0; i-- {
		if f.signals[i].Key() == key {
			return f.signals[i], true
		}
	}
	return models.Signal{}, false
}

func (f *fakeHistory) LatestInStream(symbol, timeframe string) (models.Signal, bool) {
	for i := len(f.signals) - 1; i >= 0; i-- {
		if f.signals[i].Symbol == symbol && f.signals[i].Timeframe == timeframe {
			return f.signals[i], true
		}
	}
	return models.Signal{}, false
}

func at(i int) time.Time { return t0.Add(time.Duration(i) * 15 * time.Minute) }

func ohlc(rows [][4]float64) []models.Candle {
	out := make([]models.Candle, len(rows))
	for i, r := range rows {
		out[i] = models.Candle{Time: at(i), Open: r[0], High: r[1], Low: r[2], Close: r[3]}
	}
	return out
}

func ramp(n int, start, step float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := start + float64(i)*step
		out[i] = models.Candle{Time: t0.Add(time.Duration(i) * time.Hour), Open: c - step/2, High: c + 0.3, Low: c - 0.6, Close: c}
	}
	return out
}

// pullbackRows dips into a pivot low at bar 3, rallies, and returns to the
// resulting demand zone with a long lower wick on the last bar.
func pullbackRows() [][4]float64 {
	return [][4]float64{
		{110, 111, 109, 110},
		{108, 109, 107, 108},
		{106, 107, 105, 106},
		{103, 104, 100, 103},
		{105, 106, 104, 105},
		{107, 108, 106, 107},
		{109, 110, 108, 109},
		{108, 109, 107, 108},
		{103, 104, 100.5, 103.5},
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Features = features.Config{EMAPeriod: 5, ATRPeriod: 3, ADXPeriod: 3, BBPeriod: 5, BBK: 2, DonchianPeriod: 5, EMASlopeLookback: 1}
	cfg.Zones = zones.Config{Left: 2, Right: 2, ATRMult: 1, MitigationBuffer: 0.001}
	cfg.Squeeze.Enabled = false
	return cfg
}

func testGate() gate.Config {
	return gate.Config{MaxStopPct: 5, MinRR: 1.5, ATRPctMin: 0, ATRPctMax: 100, RequireFreshZone: true, CooldownBars: 0, ScoreMin: 50, StopATRMult: 0.1}
}

func newGen(cfg Config, g gate.Config) *Generator {
	n := 0
	return New(cfg, g, gate.DefaultDynamicConfig(), WithIDFunc(func() string {
		n++
		return fmt.Sprintf("sig-%d", n)
	}))
}

func uptrendRefs() [][]models.Candle  { return [][]models.Candle{ramp(80, 100, 1), ramp(80, 200, 2)} }
func downtrendRefs() [][]models.Candle { return [][]models.Candle{ramp(80, 300, -1), ramp(80, 400, -2)} }

func hasReason(rs []Rejection, sub string) bool {
	for _, r := range rs {
		for _, reason := range r.Reasons {
			if strings.Contains(reason, sub) {
				return true
			}
		}
	}
	return false
}

func TestReferenceBias(t *testing.T) {
	assert.Equal(t, BiasLong, ReferenceBias(uptrendRefs(), 50, true))
	assert.Equal(t, BiasShort, ReferenceBias(downtrendRefs(), 50, true))
	mixed := [][]models.Candle{ramp(80, 100, 1), ramp(80, 300, -1)}
	assert.Equal(t, BiasNeutral, ReferenceBias(mixed, 50, true))
	assert.Equal(t, BiasNeutral, ReferenceBias(nil, 50, true))
	assert.Equal(t, BiasNeutral, ReferenceBias([][]models.Candle{ramp(10, 100, 1)}, 50, true))
}

func TestScore(t *testing.T) {
	assert.Equal(t, 100.0, Score(true, 2, 0.3, 25))
	assert.Equal(t, 20.0, Score(false, 1.5, 1, 10))
	assert.Equal(t, 75.0, Score(true, 2, 1, 10))
}

func TestNeutralBiasEmitsNothing(t *testing.T) {
	res := newGen(testConfig(), testGate()).Evaluate(Input{Symbol: "BTCUSDT", Timeframe: "15m", Candles: ohlc(pullbackRows())})
	assert.Empty(t, res.Signals)
	assert.Equal(t, BiasNeutral, res.Bias)
	assert.True(t, hasReason(res.Rejected, "neutral"))
}

func TestTrendPullbackLong(t *testing.T) {
	in := Input{Symbol: "BTCUSDT", Timeframe: "15m", Candles: ohlc(pullbackRows()), References: uptrendRefs(), DataSource: "binance", GateMode: "static"}

	res := newGen(testConfig(), testGate()).Evaluate(in)

	require.Len(t, res.Signals, 1, res.Rejected)
	s := res.Signals[0]
	assert.Equal(t, "sig-1", s.ID)
	assert.Equal(t, models.SideLong, s.Side)
	assert.Equal(t, models.StrategyTrendPullback, s.Strategy)
	assert.Equal(t, models.ZoneDemand, s.ZoneType)
	assert.Equal(t, 103.5, s.Entry)
	assert.Less(t, s.Stop, 100.0)
	assert.InDelta(t, s.Entry+2*(s.Entry-s.Stop), s.TP1, 1e-9)
	assert.Equal(t, 2.0, s.RR)
	assert.GreaterOrEqual(t, s.Score, 75.0)
	assert.Equal(t, at(8), s.Timestamp)
	assert.Equal(t, 1, s.Features.Trend)
	assert.InDelta(t, (s.Entry-s.Stop)/s.Entry*100, s.Features.StopPct, 1e-9)
	assert.Equal(t, "binance", s.DataSource)
}

func TestTrendPullbackDedupe(t *testing.T) {
	h := &fakeHistory{signals: []models.Signal{{Symbol: "BTCUSDT", Timeframe: "15m", Side: models.SideLong, Timestamp: at(8).Add(-10 * time.Minute)}}}
	in := Input{Symbol: "BTCUSDT", Timeframe: "15m", Candles: ohlc(pullbackRows()), References: uptrendRefs(), History: h}

	res := newGen(testConfig(), testGate()).Evaluate(in)

	assert.Empty(t, res.Signals)
	assert.True(t, hasReason(res.Rejected, "duplicate"))
}

func TestTrendPullbackStaleZoneRejected(t *testing.T) {
	rows := pullbackRows()
	rows[6] = [4]float64{109, 110, 103, 109}
	in := Input{Symbol: "BTCUSDT", Timeframe: "15m", Candles: ohlc(rows), References: uptrendRefs()}

	res := newGen(testConfig(), testGate()).Evaluate(in)

	assert.Empty(t, res.Signals)
	assert.True(t, hasReason(res.Rejected, "zone not fresh"))
}

func TestCounterTrendNeedsRangeExtreme(t *testing.T) {
	in := Input{Symbol: "BTCUSDT", Timeframe: "15m", Candles: ohlc(pullbackRows()), References: downtrendRefs()}

	res := newGen(testConfig(), testGate()).Evaluate(in)
	assert.Empty(t, res.Signals)
	assert.True(t, hasReason(res.Rejected, "counter-trend"))

	cfg := testConfig()
	cfg.RangeLow = 0.35
	g := testGate()
	g.ScoreMin = 30
	res = newGen(cfg, g).Evaluate(in)
	require.Len(t, res.Signals, 1)
	assert.Equal(t, models.SideLong, res.Signals[0].Side)
	assert.LessOrEqual(t, res.Signals[0].Score, 45.0)
}

func TestSqueezeBreakout(t *testing.T) {
	tests := []struct {
		name  string
		last  [4]float64
		side  models.Side
		check func(t *testing.T, s models.Signal)
	}{
		{
			name: "long stop below the lower edge",
			last: [4]float64{100.1, 101.2, 100.5, 101},
			side: models.SideLong,
			check: func(t *testing.T, s models.Signal) {
				assert.LessOrEqual(t, s.Stop, 99.8)
				assert.Greater(t, s.TP1, s.Entry)
			},
		},
		{
			name: "short stop above the upper edge",
			last: [4]float64{99.9, 99.5, 98.8, 99},
			side: models.SideShort,
			check: func(t *testing.T, s models.Signal) {
				assert.GreaterOrEqual(t, s.Stop, 100.2)
				assert.Less(t, s.TP1, s.Entry)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rows [][4]float64
			for i := 0; i < 10; i++ {
				rows = append(rows, [4]float64{100, 100.2, 99.8, 100})
			}
			rows = append(rows, tt.last)
			cfg := testConfig()
			cfg.Squeeze.Enabled = true
			g := testGate()
			g.ScoreMin = 0

			res := newGen(cfg, g).Evaluate(Input{Symbol: "ETHUSDT", Timeframe: "15m", Candles: ohlc(rows)})

			require.Len(t, res.Signals, 1, res.Rejected)
			s := res.Signals[0]
			assert.Equal(t, models.StrategySqueezeBreakout, s.Strategy)
			assert.Equal(t, tt.side, s.Side)
			assert.Empty(t, s.ZoneType)
			assert.InDelta(t, s.RR, (s.TP1-s.Entry)/(s.Entry-s.Stop), 1e-9)
			tt.check(t, s)
		})
	}
}

func TestShortSeriesMarksMissingFeatures(t *testing.T) {
	var rows [][4]float64
	for i := 0; i < 10; i++ {
		rows = append(rows, [4]float64{100, 100.2, 99.8, 100})
	}
	rows = append(rows, [4]float64{100.1, 101.2, 100.5, 101})
	cfg := testConfig()
	cfg.Squeeze.Enabled = true
	cfg.Features.ADXPeriod = 14
	g := testGate()
	g.ScoreMin = 0

	res := newGen(cfg, g).Evaluate(Input{Symbol: "ETHUSDT", Timeframe: "15m", Candles: ohlc(rows)})

	require.Len(t, res.Signals, 1, res.Rejected)
	f := res.Signals[0].Features
	assert.Equal(t, []string{"adx"}, f.Missing)
	assert.Zero(t, f.ADX)
	assert.False(t, f.Has("adx"))
	assert.True(t, f.Has("atrPct"))
	assert.Greater(t, f.ATRPct, 0.0)
}

func trendModeSetup() (Config, gate.Config, []models.Candle) {
	cfg := testConfig()
	cfg.TrendMode.Enabled = true
	g := testGate()
	g.CooldownBars = 6
	g.MaxStopPct = 10
	candles := make([]models.Candle, 40)
	for i := range candles {
		c := 100 + float64(i)*0.5
		candles[i] = models.Candle{Time: at(i), Open: c - 0.25, High: c + 0.3, Low: c - 0.6, Close: c}
	}
	return cfg, g, candles
}

func TestTrendMode(t *testing.T) {
	cfg, g, candles := trendModeSetup()

	res := newGen(cfg, g).Evaluate(Input{Symbol: "BTCUSDT", Timeframe: "15m", Candles: candles, References: uptrendRefs()})

	require.Len(t, res.Signals, 1, res.Rejected)
	s := res.Signals[0]
	assert.Equal(t, models.StrategyTrendMode, s.Strategy)
	assert.Equal(t, models.SideLong, s.Side)
	assert.Equal(t, 2.0, s.RR)
	assert.InDelta(t, 2.2, (s.Entry-s.Stop)/(s.TP1-s.Entry)*4.4, 1e-9)
}

func TestTrendModeSuppression(t *testing.T) {
	cfg, g, candles := trendModeSetup()
	refs := uptrendRefs()

	t.Run("cooldown on any side", func(t *testing.T) {
		h := &fakeHistory{signals: []models.Signal{{Symbol: "BTCUSDT", Timeframe: "15m", Side: models.SideShort, Timestamp: at(37)}}}
		res := newGen(cfg, g).Evaluate(Input{Symbol: "BTCUSDT", Timeframe: "15m", Candles: candles, References: refs, History: h})
		assert.Empty(t, res.Signals)
		assert.True(t, hasReason(res.Rejected, "cooldown"))
	})

	t.Run("unresolved same direction", func(t *testing.T) {
		prev := models.Signal{Symbol: "BTCUSDT", Timeframe: "15m", Side: models.SideLong, Timestamp: at(20), Entry: 110, Stop: 10, TP1: 1000, RR: 1}
		h := &fakeHistory{signals: []models.Signal{prev}}
		res := newGen(cfg, g).Evaluate(Input{Symbol: "BTCUSDT", Timeframe: "15m", Candles: candles, References: refs, History: h})
		assert.Empty(t, res.Signals)
		assert.True(t, hasReason(res.Rejected, "unresolved"))
	})

	t.Run("resolved same direction", func(t *testing.T) {
		prev := models.Signal{Symbol: "BTCUSDT", Timeframe: "15m", Side: models.SideLong, Timestamp: at(20), Entry: 110, Stop: 10, TP1: 1000, RR: 1, Outcome: models.OutcomeTP1}
		h := &fakeHistory{signals: []models.Signal{prev}}
		res := newGen(cfg, g).Evaluate(Input{Symbol: "BTCUSDT", Timeframe: "15m", Candles: candles, References: refs, History: h})
		assert.Len(t, res.Signals, 1)
	})
}

func TestShortSeries(t *testing.T) {
	res := newGen(testConfig(), testGate()).Evaluate(Input{Symbol: "X", Timeframe: "15m", Candles: ohlc(pullbackRows()[:1])})
	assert.Empty(t, res.Signals)
}
