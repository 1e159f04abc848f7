package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/services/automute"
	"FinSignal/internal/services/evaluation"
	"FinSignal/internal/services/features"
	"FinSignal/internal/services/gate"
	"FinSignal/internal/services/history"
	"FinSignal/internal/services/metamodel"
	"FinSignal/internal/services/signals"
	"FinSignal/internal/services/zones"
	"FinSignal/pkg/metrics"
)

var t0 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func at(i int) time.Time { return t0.Add(time.Duration(i) * 15 * time.Minute) }

func pullbackCandles() []models.Candle {
	rows := [][4]float64{
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

type fakeSource struct {
	mu     sync.Mutex
	frames map[string][]models.Candle
	fail   map[string]error
	calls  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		frames: map[string][]models.Candle{
			"15m": pullbackCandles(),
			"1h":  ramp(80, 100, 1),
			"4h":  ramp(80, 200, 2),
		},
		fail: map[string]error{},
	}
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Candles(_ context.Context, symbol, timeframe string, _ int) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := s.fail[symbol]; err != nil {
		return nil, err
	}
	return s.frames[timeframe], nil
}

type memStore struct {
	state   models.State
	saved   int
	saveErr error
	loadErr error
}

func (m *memStore) Load(context.Context) (models.State, error) {
	if m.loadErr != nil {
		return models.State{}, m.loadErr
	}
	return m.state, nil
}

func (m *memStore) Save(_ context.Context, st models.State) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved++
	m.state = st
	return nil
}

type recNotifier struct{ alerts []models.Alert }

func (n *recNotifier) Notify(_ context.Context, a models.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

func (n *recNotifier) Close() error { return nil }

type recMetrics struct {
	metrics.Nop
	filtered map[string]int
	cycles   []string
}

func (m *recMetrics) RecordFiltered(reason string) { m.filtered[reason]++ }

func (m *recMetrics) RecordCycle(status string, _ time.Duration) {
	m.cycles = append(m.cycles, status)
}

type harness struct {
	w        *Worker
	src      *fakeSource
	store    *memStore
	notifier *recNotifier
	metrics  *recMetrics
}

func newHarness(t *testing.T, symbols []string, loader *metamodel.Loader, mute automute.Config, tune ...func(*signals.Config)) *harness {
	t.Helper()
	cfg := signals.DefaultConfig()
	cfg.Features = features.Config{EMAPeriod: 5, ATRPeriod: 3, ADXPeriod: 3, BBPeriod: 5, BBK: 2, DonchianPeriod: 5, EMASlopeLookback: 1}
	cfg.Zones = zones.Config{Left: 2, Right: 2, ATRMult: 1, MitigationBuffer: 0.001}
	cfg.Squeeze.Enabled = false
	for _, f := range tune {
		f(&cfg)
	}
	g := gate.Config{MaxStopPct: 5, MinRR: 1.5, ATRPctMin: 0, ATRPctMax: 100, RequireFreshZone: true, ScoreMin: 50, StopATRMult: 0.1}
	n := 0
	gen := signals.New(cfg, g, gate.DefaultDynamicConfig(), signals.WithIDFunc(func() string {
		n++
		return fmt.Sprintf("sig-%d", n)
	}))

	h := &harness{
		src:      newFakeSource(),
		store:    &memStore{},
		notifier: &recNotifier{},
		metrics:  &recMetrics{filtered: map[string]int{}},
	}
	h.w = NewWorker(WorkerConfig{
		Symbols:       symbols,
		Timeframes:    []string{"15m"},
		References:    []string{"1h", "4h"},
		Limit:         500,
		SnapshotLimit: 100,
	}, WorkerDeps{
		Source:    h.src,
		Store:     h.store,
		Notifier:  h.notifier,
		Metrics:   h.metrics,
		Generator: gen,
		History:   history.New(100),
		Loader:    loader,
	}, evaluation.DefaultConfig(), mute)
	return h
}

func TestRunOnceEmitsRecordsAndNotifies(t *testing.T) {
	h := newHarness(t, []string{"BTCUSDT"}, nil, automute.DefaultConfig())

	var pushed []models.WorkerSnapshot
	h.w.OnSnapshot(func(s models.WorkerSnapshot) { pushed = append(pushed, s) })

	snap, ran := h.w.RunOnce(context.Background())
	require.True(t, ran)
	assert.Equal(t, models.RunOK, snap.Status)
	assert.Equal(t, 1, snap.Emitted)
	require.Len(t, snap.Signals, 1)
	s := snap.Signals[0]
	assert.Equal(t, "sig-1", s.ID)
	assert.Equal(t, "fake", s.DataSource)
	assert.Equal(t, "static", s.GateMode)
	assert.False(t, s.Muted)

	require.Len(t, h.notifier.alerts, 1)
	assert.Contains(t, h.notifier.alerts[0].Text, "LONG BTCUSDT 15m")
	assert.Equal(t, 1, h.store.saved)
	assert.Len(t, h.store.state.History, 1)
	assert.Len(t, pushed, 1)
	assert.Equal(t, 3, h.src.calls, "one fetch per distinct timeframe")

	require.Len(t, snap.Mutes, 1)
	assert.False(t, snap.Mutes[0].Muted)

	snap, ran = h.w.RunOnce(context.Background())
	require.True(t, ran)
	assert.Equal(t, 0, snap.Emitted, "same bar is deduplicated against history")
	assert.Len(t, h.w.Signals("BTCUSDT", "15m", 10), 1)
	assert.Empty(t, h.w.Signals("ETHUSDT", "", 10))
	assert.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, []string{"ok", "ok"}, h.metrics.cycles)
}

func TestRunOnceIsNotReentrant(t *testing.T) {
	h := newHarness(t, []string{"BTCUSDT"}, nil, automute.DefaultConfig())
	h.w.running.Store(true)

	snap, ran := h.w.RunOnce(context.Background())
	assert.False(t, ran)
	assert.Equal(t, 0, h.src.calls)
	assert.Equal(t, models.RunOK, snap.Status)
	assert.True(t, snap.LastRun.IsZero())
}

func TestUnitFailureIsIsolated(t *testing.T) {
	h := newHarness(t, []string{"BAD", "BTCUSDT"}, nil, automute.DefaultConfig())
	h.src.fail["BAD"] = errors.New("http 503")

	snap, ran := h.w.RunOnce(context.Background())
	require.True(t, ran)
	assert.Equal(t, models.RunOK, snap.Status)
	assert.Equal(t, 1, snap.Emitted)
	require.Contains(t, snap.UnitErrors, "BAD/15m")
	assert.Contains(t, snap.UnitErrors["BAD/15m"], "http 503")
}

func TestAllUnitsFailing(t *testing.T) {
	h := newHarness(t, []string{"BAD"}, nil, automute.DefaultConfig())
	h.src.fail["BAD"] = errors.New("timeout")

	snap, _ := h.w.RunOnce(context.Background())
	assert.Equal(t, models.RunError, snap.Status)
	assert.Equal(t, "all units failed", snap.Error)
}

func TestPersistFailureKeepsHistory(t *testing.T) {
	h := newHarness(t, []string{"BTCUSDT"}, nil, automute.DefaultConfig())
	h.store.saveErr = errors.New("disk full")

	snap, _ := h.w.RunOnce(context.Background())
	assert.Equal(t, models.RunError, snap.Status)
	assert.Contains(t, snap.Error, "disk full")
	assert.Len(t, h.w.History(), 1)
	assert.Len(t, h.notifier.alerts, 1)
	assert.Equal(t, []string{"error"}, h.metrics.cycles)
}

func TestMutedStreamRecordsWithoutNotifying(t *testing.T) {
	h := newHarness(t, []string{"BTCUSDT"}, nil, automute.Config{Enabled: true, Window: 20, MinTrades: 1})
	h.store.state = models.State{
		LastRun: at(-4),
		History: []models.Signal{{
			ID: "old", Symbol: "BTCUSDT", Timeframe: "15m", Side: models.SideShort,
			DataSource: "fake", GateMode: "static", Timestamp: at(-40),
			Entry: 100, Stop: 101, TP1: 98, RR: 2,
			Outcome: models.OutcomeStop, R: -1,
		}},
	}
	require.NoError(t, h.w.Init(context.Background()))
	assert.Equal(t, at(-4), h.w.Snapshot().LastRun)

	snap, _ := h.w.RunOnce(context.Background())
	require.Equal(t, 1, snap.Emitted)
	assert.True(t, snap.Signals[0].Muted)
	require.Len(t, snap.Mutes, 1)
	assert.True(t, snap.Mutes[0].Muted)
	assert.Empty(t, h.notifier.alerts)
	assert.Len(t, h.w.History(), 2)
}

func TestInitWithoutState(t *testing.T) {
	h := newHarness(t, []string{"BTCUSDT"}, nil, automute.DefaultConfig())
	h.store.loadErr = domrepo.ErrNoState
	assert.NoError(t, h.w.Init(context.Background()))

	h.store.loadErr = errors.New("permission denied")
	assert.Error(t, h.w.Init(context.Background()))
}

func writeModel(t *testing.T, bias float64) *metamodel.Loader {
	return writeModelOn(t, "score", bias)
}

func writeModelOn(t *testing.T, feature string, bias float64) *metamodel.Loader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	doc := fmt.Sprintf(`{"version":"fsd-meta-v1","features":[%q],"weights":[0],"bias":%v}`, feature, bias)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return metamodel.NewLoader(path)
}

func TestMetaFilter(t *testing.T) {
	t.Run("rejects", func(t *testing.T) {
		h := newHarness(t, []string{"BTCUSDT"}, writeModel(t, -5), automute.DefaultConfig())
		snap, _ := h.w.RunOnce(context.Background())
		assert.Equal(t, 0, snap.Emitted)
		assert.Equal(t, 1, h.metrics.filtered["meta"])
		assert.Empty(t, h.notifier.alerts)
	})

	t.Run("passes with prediction attached", func(t *testing.T) {
		h := newHarness(t, []string{"BTCUSDT"}, writeModel(t, 5), automute.DefaultConfig())
		snap, _ := h.w.RunOnce(context.Background())
		require.Equal(t, 1, snap.Emitted)
		require.NotNil(t, snap.Signals[0].Meta)
		assert.True(t, snap.Signals[0].Meta.Pass)
		assert.Greater(t, snap.Signals[0].Meta.Prob, 0.99)
	})

	t.Run("invalid model falls back to unfiltered", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "model.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version":"nope"}`), 0o644))
		h := newHarness(t, []string{"BTCUSDT"}, metamodel.NewLoader(path), automute.DefaultConfig())
		snap, _ := h.w.RunOnce(context.Background())
		assert.Equal(t, 1, snap.Emitted)
		assert.Nil(t, snap.Signals[0].Meta)
	})

	t.Run("uncomputed feature skips scoring", func(t *testing.T) {
		h := newHarness(t, []string{"BTCUSDT"}, writeModelOn(t, "adx", -5), automute.DefaultConfig(), func(c *signals.Config) {
			c.Features.ADXPeriod = 14
		})
		snap, _ := h.w.RunOnce(context.Background())
		require.Equal(t, 1, snap.Emitted)
		s := snap.Signals[0]
		assert.Nil(t, s.Meta)
		assert.Contains(t, s.Features.Missing, "adx")
		assert.Zero(t, h.metrics.filtered["meta"])
		assert.Len(t, h.notifier.alerts, 1)
	})
}

func TestPerformanceSummary(t *testing.T) {
	hist := []models.Signal{
		{ID: "a", Symbol: "BTCUSDT", Timeframe: "15m", Timestamp: at(0), Outcome: models.OutcomeTP1, R: 2},
		{ID: "b", Symbol: "BTCUSDT", Timeframe: "15m", Timestamp: at(1), Outcome: models.OutcomeStop, R: -1},
		{ID: "c", Symbol: "BTCUSDT", Timeframe: "1h", Timestamp: at(2)},
		{ID: "d", Symbol: "ETHUSDT", Timeframe: "15m", Timestamp: at(3), Outcome: models.OutcomeStop, R: -1},
	}
	p := NewPerformance(staticHistory(hist))

	s := p.Summary("BTCUSDT", "15m")
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 2, s.Resolved)
	require.NotNil(t, s.ExpectancyR)
	assert.InDelta(t, 0.5, *s.ExpectancyR, 1e-9)

	all := p.Summary("", "")
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, 1, all.Open)

	assert.Len(t, p.ByStream(), 3)
}

type staticHistory []models.Signal

func (s staticHistory) History() []models.Signal { return s }
