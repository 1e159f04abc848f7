package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func sig(id string, side models.Side, minutes int) models.Signal {
	return models.Signal{
		ID: id, Symbol: "BTCUSDT", Timeframe: "15m", Side: side,
		Timestamp: t0.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestAddEvictsOldest(t *testing.T) {
	h := New(3)
	for i := 0; i < 5; i++ {
		h.Add(sig(string(rune('a'+i)), models.SideLong, i*15))
	}
	require.Equal(t, 3, h.Len())
	all := h.All()
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "e", all[2].ID)

	latest, ok := h.Latest(models.SignalKey{Symbol: "BTCUSDT", Timeframe: "15m", Side: models.SideLong})
	require.True(t, ok)
	assert.Equal(t, "e", latest.ID)
}

func TestHasNear(t *testing.T) {
	h := New(10)
	h.Add(sig("a", models.SideLong, 0))
	key := models.SignalKey{Symbol: "BTCUSDT", Timeframe: "15m", Side: models.SideLong}

	assert.True(t, h.HasNear(key, t0.Add(14*time.Minute), 15*time.Minute))
	assert.True(t, h.HasNear(key, t0.Add(15*time.Minute), 15*time.Minute))
	assert.False(t, h.HasNear(key, t0.Add(16*time.Minute), 15*time.Minute))

	short := key
	short.Side = models.SideShort
	assert.False(t, h.HasNear(short, t0, 15*time.Minute))
}

func TestResolveAndUnresolved(t *testing.T) {
	h := New(10)
	h.Add(sig("a", models.SideLong, 0))
	h.Add(sig("b", models.SideShort, 30))

	require.Len(t, h.Unresolved("BTCUSDT", "15m"), 2)
	ok := h.Resolve(models.EvaluatedTrade{SignalID: "a", Outcome: models.OutcomeStop, R: -1, BarsHeld: 3})
	require.True(t, ok)
	assert.False(t, h.Resolve(models.EvaluatedTrade{SignalID: "zzz"}))

	un := h.Unresolved("BTCUSDT", "15m")
	require.Len(t, un, 1)
	assert.Equal(t, "b", un[0].ID)

	latest, ok := h.LatestInStream("BTCUSDT", "15m")
	require.True(t, ok)
	assert.Equal(t, "b", latest.ID)
}

func TestReplaceSortsAndCaps(t *testing.T) {
	h := New(2)
	h.Replace([]models.Signal{sig("late", models.SideLong, 60), sig("early", models.SideLong, 0), sig("mid", models.SideLong, 30)})

	all := h.All()
	require.Len(t, all, 2)
	assert.Equal(t, "mid", all[0].ID)
	assert.Equal(t, "late", all[1].ID)
}

func TestRecentAndFilter(t *testing.T) {
	h := New(10)
	for i := 0; i < 4; i++ {
		h.Add(sig(string(rune('a'+i)), models.SideLong, i*15))
	}
	other := sig("x", models.SideLong, 0)
	other.Symbol = "ETHUSDT"
	h.Add(other)

	recent := h.Recent(models.StreamKey{Symbol: "BTCUSDT", Timeframe: "15m"}, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)

	assert.Len(t, h.Filter("", "", 0), 5)
	eth := h.Filter("ETHUSDT", "", 10)
	require.Len(t, eth, 1)
	assert.Equal(t, "x", eth[0].ID)
	newest := h.Filter("BTCUSDT", "15m", 1)
	assert.Equal(t, "d", newest[0].ID)
}
