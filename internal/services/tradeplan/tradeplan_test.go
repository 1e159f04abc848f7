package tradeplan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func long() models.Signal {
	return models.Signal{Side: models.SideLong, Timeframe: "15m", Entry: 100, Stop: 98, TP1: 102, Timestamp: t0}
}

func bars(n int) []models.Candle {
	out := []models.Candle{{Time: t0, Open: 100, High: 100.5, Low: 99.5, Close: 100}}
	for i := 1; i <= n; i++ {
		out = append(out, models.Candle{Time: t0.Add(time.Duration(i) * 15 * time.Minute), Open: 100.5, High: 101, Low: 99, Close: 100.5})
	}
	return out
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestLadderFor(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []float64{1.5, 3, 5, 8}, cfg.LadderFor("1m"))
	assert.Equal(t, []float64{1.5, 3, 5, 8}, cfg.LadderFor("3m"))
	assert.Equal(t, []float64{1, 2, 3, 4}, cfg.LadderFor("5m"))
	assert.Equal(t, []float64{1, 2, 3, 4}, cfg.LadderFor("4h"))

	cfg.Ladder = []float64{1, 3}
	assert.Equal(t, []float64{1, 3}, cfg.LadderFor("1m"))
}

func TestSimulateCombinesTargetsOnOneBar(t *testing.T) {
	c := bars(5)
	c[2].High = 104.5 // TP1 102 and TP2 104

	res := Simulate(long(), c, nil, DefaultConfig())

	require.Len(t, res.Events, 1)
	assert.Equal(t, "TP1-TP2", res.Events[0].Label)
	assert.Equal(t, 2, res.TPsHit)
	assert.Equal(t, models.PlanOpen, res.Status)
	require.Len(t, res.Targets, 4)
	assert.InDelta(t, 108.0, res.Targets[3].Price, 1e-12)
}

func TestSimulateStopBeatsTargets(t *testing.T) {
	c := bars(5)
	c[1].High = 110
	c[1].Low = 97

	res := Simulate(long(), c, nil, DefaultConfig())

	assert.Equal(t, models.PlanStop, res.Status)
	require.Len(t, res.Events, 1)
	assert.Equal(t, models.PlanEventStop, res.Events[0].Type)
	assert.Equal(t, 0, res.TPsHit)
}

func TestSimulateExitNeedsTargetFirst(t *testing.T) {
	c := bars(8)
	ema := flat(len(c), 101) // every close sits below the EMA

	res := Simulate(long(), c, ema, DefaultConfig())
	assert.Equal(t, models.PlanOpen, res.Status)
	assert.Empty(t, res.Events)

	cfg := DefaultConfig()
	cfg.RequireTPForExit = false
	res = Simulate(long(), c, ema, cfg)
	require.Equal(t, models.PlanExit, res.Status)
	assert.Equal(t, 2, res.Events[0].Bar)
}

func TestSimulateExitAfterTarget(t *testing.T) {
	c := bars(8)
	c[2].High = 102.5
	ema := flat(len(c), 101)

	res := Simulate(long(), c, ema, DefaultConfig())

	require.Equal(t, models.PlanExit, res.Status)
	require.Len(t, res.Events, 2)
	assert.Equal(t, "TP1", res.Events[0].Label)
	exit := res.Events[1]
	assert.Equal(t, models.PlanEventExit, exit.Type)
	assert.Greater(t, exit.Bar, res.Events[0].Bar)
	assert.Equal(t, 3, exit.Bar)
	assert.InDelta(t, 0.25, exit.R, 1e-12)
}

func TestSimulateZeroRisk(t *testing.T) {
	s := long()
	s.Stop = s.Entry
	res := Simulate(s, bars(3), nil, DefaultConfig())
	assert.Empty(t, res.Targets)
	assert.Equal(t, models.PlanOpen, res.Status)
}

func TestSimulateShort(t *testing.T) {
	s := models.Signal{Side: models.SideShort, Timeframe: "1h", Entry: 100, Stop: 102, Timestamp: t0}
	c := bars(4)
	c[1].Low = 95.5 // TP1 98, TP2 96

	res := Simulate(s, c, nil, DefaultConfig())
	require.Len(t, res.Events, 1)
	assert.Equal(t, "TP1-TP2", res.Events[0].Label)
}
