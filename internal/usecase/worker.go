package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/services/automute"
	"FinSignal/internal/services/evaluation"
	"FinSignal/internal/services/history"
	"FinSignal/internal/services/metamodel"
	"FinSignal/internal/services/signals"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
)

// WorkerConfig controls what one cycle scans.
type WorkerConfig struct {
	Symbols          []string
	Timeframes       []string
	References       []string
	Limit            int
	FetchConcurrency int
	SnapshotLimit    int
	UnitTimeout      time.Duration
	GateMode         string
}

// Worker runs the generate, filter, record and notify cycle. At most one
// cycle runs at a time; a trigger during a run is a no-op.
type Worker struct {
	cfg      WorkerConfig
	source   domrepo.CandleSource
	store    domrepo.StateStore
	notifier domrepo.Notifier
	metrics  domrepo.Metrics
	gen      *signals.Generator
	loader   *metamodel.Loader
	evalCfg  evaluation.Config
	muteCfg  automute.Config
	l        *applogger.Logger
	now      func() time.Time

	running atomic.Bool

	histMu sync.RWMutex
	hist   *history.History

	mu   sync.RWMutex
	snap models.WorkerSnapshot
	subs []func(models.WorkerSnapshot)
}

// WorkerDeps are the collaborators of a Worker. Loader and Notifier may be nil.
type WorkerDeps struct {
	Source    domrepo.CandleSource
	Store     domrepo.StateStore
	Notifier  domrepo.Notifier
	Metrics   domrepo.Metrics
	Generator *signals.Generator
	History   *history.History
	Loader    *metamodel.Loader
	Logger    *applogger.Logger
}

func NewWorker(cfg WorkerConfig, deps WorkerDeps, evalCfg evaluation.Config, muteCfg automute.Config) *Worker {
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 3
	}
	if cfg.GateMode == "" {
		cfg.GateMode = "static"
	}
	l := deps.Logger
	if l == nil {
		l = applogger.Nop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	hist := deps.History
	if hist == nil {
		hist = history.New(2000)
	}
	return &Worker{
		cfg:      cfg,
		source:   deps.Source,
		store:    deps.Store,
		notifier: deps.Notifier,
		metrics:  m,
		gen:      deps.Generator,
		loader:   deps.Loader,
		evalCfg:  evalCfg,
		muteCfg:  muteCfg,
		l:        l.With(applogger.String("component", "worker")),
		now:      func() time.Time { return time.Now().UTC() },
		hist:     hist,
		snap:     models.WorkerSnapshot{Status: models.RunOK, Signals: []models.Signal{}},
	}
}

// OnSnapshot registers fn to receive every completed cycle's snapshot.
func (w *Worker) OnSnapshot(fn func(models.WorkerSnapshot)) {
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	w.mu.Unlock()
}

// Snapshot returns the latest published snapshot.
func (w *Worker) Snapshot() models.WorkerSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snap
}

// Signals returns newest-first history filtered by symbol and timeframe.
func (w *Worker) Signals(symbol, timeframe string, limit int) []models.Signal {
	w.histMu.RLock()
	defer w.histMu.RUnlock()
	out := w.hist.Filter(symbol, timeframe, limit)
	if out == nil {
		out = []models.Signal{}
	}
	return out
}

// History returns a copy of the full history, oldest first.
func (w *Worker) History() []models.Signal {
	w.histMu.RLock()
	defer w.histMu.RUnlock()
	return w.hist.All()
}

// Running reports whether a cycle is in progress.
func (w *Worker) Running() bool { return w.running.Load() }

// Init restores persisted history.
func (w *Worker) Init(ctx context.Context) error {
	st, err := w.store.Load(ctx)
	if errors.Is(err, domrepo.ErrNoState) {
		w.l.Info("no persisted state, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	w.histMu.Lock()
	w.hist.Replace(st.History)
	n := w.hist.Len()
	recent := w.hist.Filter("", "", w.cfg.SnapshotLimit)
	w.histMu.Unlock()

	w.mu.Lock()
	w.snap.LastRun = st.LastRun
	if recent != nil {
		w.snap.Signals = recent
	}
	w.mu.Unlock()

	w.l.Info("state restored", applogger.Int("signals", n))
	return nil
}

// Start runs cycles every interval until ctx is done.
func (w *Worker) Start(ctx context.Context, interval time.Duration, runNow bool) {
	if runNow {
		w.RunOnce(ctx)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.RunOnce(ctx)
		}
	}
}

type fetched struct {
	candles []models.Candle
	source  string
	err     error
}

// RunOnce performs one cycle. ran is false when another cycle was already
// in progress, in which case the current snapshot is returned unchanged.
func (w *Worker) RunOnce(ctx context.Context) (snap models.WorkerSnapshot, ran bool) {
	if !w.running.CompareAndSwap(false, true) {
		return w.Snapshot(), false
	}
	defer w.running.Store(false)

	start := w.now()
	model := w.loadModel()
	frames := w.fetchAll(ctx)

	unitErrors := map[string]string{}
	var mutes []models.MuteState
	emitted := 0
	units := 0

	for si, symbol := range w.cfg.Symbols {
		for _, tf := range w.cfg.Timeframes {
			units++
			unit := symbol + "/" + tf
			out, err := w.runUnit(symbol, tf, frames[si], model)
			if err != nil {
				unitErrors[unit] = err.Error()
				w.metrics.RecordUnitError(symbol, tf)
				w.l.Warn("unit failed", applogger.String("unit", unit), applogger.Error(err))
				continue
			}
			mutes = append(mutes, out.mute)
			emitted += len(out.alerts)
			for _, a := range out.alerts {
				w.notify(ctx, a)
			}
		}
	}

	w.histMu.RLock()
	state := models.State{History: w.hist.All(), LastRun: start}
	recent := w.hist.Filter("", "", w.cfg.SnapshotLimit)
	w.histMu.RUnlock()

	snap = models.WorkerSnapshot{
		Signals: recent,
		Emitted: emitted,
		LastRun: start,
		Status:  models.RunOK,
		Mutes:   mutes,
	}
	if snap.Signals == nil {
		snap.Signals = []models.Signal{}
	}
	if len(unitErrors) > 0 {
		snap.UnitErrors = unitErrors
	}
	if units > 0 && len(unitErrors) == units {
		snap.Status = models.RunError
		snap.Error = "all units failed"
	}
	if err := w.store.Save(ctx, state); err != nil {
		w.l.Error("persist state failed", applogger.Error(err))
		snap.Status = models.RunError
		snap.Error = fmt.Sprintf("persist state: %v", err)
	}

	dur := w.now().Sub(start)
	snap.RunMs = dur.Milliseconds()
	w.metrics.RecordCycle(string(snap.Status), dur)

	w.mu.Lock()
	w.snap = snap
	subs := append(([]func(models.WorkerSnapshot))(nil), w.subs...)
	w.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}

	w.l.Info("cycle complete",
		applogger.String("status", string(snap.Status)),
		applogger.Int("emitted", emitted),
		applogger.Int("unit_errors", len(unitErrors)),
		applogger.Int64("run_ms", snap.RunMs),
	)
	return snap, true
}

func (w *Worker) loadModel() *metamodel.Model {
	if w.loader == nil {
		w.metrics.SetModelLoaded(false)
		return nil
	}
	m, err := w.loader.Load()
	if err != nil {
		w.l.Warn("meta model unavailable", applogger.String("path", w.loader.Path()), applogger.Error(err))
		m = nil
	}
	w.metrics.SetModelLoaded(m != nil)
	return m
}

func (w *Worker) frameNames() []string {
	seen := map[string]bool{}
	var names []string
	for _, tf := range append(append([]string(nil), w.cfg.Timeframes...), w.cfg.References...) {
		if !seen[tf] {
			seen[tf] = true
			names = append(names, tf)
		}
	}
	return names
}

// fetchAll retrieves every timeframe of every symbol with bounded
// concurrency. Results are indexed by symbol position.
func (w *Worker) fetchAll(ctx context.Context) []map[string]fetched {
	names := w.frameNames()
	out := make([]map[string]fetched, len(w.cfg.Symbols))
	var g errgroup.Group
	g.SetLimit(w.cfg.FetchConcurrency)
	for i, symbol := range w.cfg.Symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			frames := make(map[string]fetched, len(names))
			for _, tf := range names {
				fctx, cancel := w.unitContext(ctx)
				candles, source, err := domrepo.FetchCandles(fctx, w.source, symbol, tf, w.cfg.Limit)
				cancel()
				frames[tf] = fetched{candles: candles, source: source, err: err}
			}
			out[i] = frames
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (w *Worker) unitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.cfg.UnitTimeout > 0 {
		return context.WithTimeout(ctx, w.cfg.UnitTimeout)
	}
	return context.WithCancel(ctx)
}

type unitResult struct {
	mute   models.MuteState
	alerts []models.Alert
}

// runUnit resolves outcomes, generates, filters and records signals for
// one symbol and timeframe. Panics become unit errors.
func (w *Worker) runUnit(symbol, tf string, frames map[string]fetched, model *metamodel.Model) (res unitResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	main, ok := frames[tf]
	if !ok {
		return res, fmt.Errorf("no fetch result")
	}
	if main.err != nil {
		return res, fmt.Errorf("fetch candles: %w", main.err)
	}
	if len(main.candles) == 0 {
		return res, fmt.Errorf("no candles")
	}
	refs := make([][]models.Candle, 0, len(w.cfg.References))
	for _, rtf := range w.cfg.References {
		ref := frames[rtf]
		if ref.err != nil {
			return res, fmt.Errorf("fetch reference %s: %w", rtf, ref.err)
		}
		refs = append(refs, ref.candles)
	}

	w.histMu.Lock()
	defer w.histMu.Unlock()

	for _, s := range w.hist.Unresolved(symbol, tf) {
		if trade := evaluation.Evaluate(s, main.candles, w.evalCfg); trade.Outcome.Resolved() {
			w.hist.Resolve(trade)
		}
	}

	out := w.gen.Evaluate(signals.Input{
		Symbol:     symbol,
		Timeframe:  tf,
		Candles:    main.candles,
		References: refs,
		DataSource: main.source,
		GateMode:   w.cfg.GateMode,
		History:    w.hist,
	})
	for range out.Rejected {
		w.metrics.RecordFiltered("gate")
	}

	stream := models.StreamKey{Symbol: symbol, Timeframe: tf, DataSource: main.source, GateMode: w.cfg.GateMode}
	res.mute = automute.DecideFromSignals(stream, w.hist.Recent(stream, w.muteCfg.Window), main.candles, w.evalCfg, w.muteCfg)
	w.metrics.SetMuted(stream.String(), res.mute.Muted)

	sort.SliceStable(out.Signals, func(i, j int) bool { return out.Signals[i].Score > out.Signals[j].Score })
	for _, sig := range out.Signals {
		if model != nil {
			pred, err := model.ScoreSignal(sig)
			if err == nil {
				sig.Meta = &pred
				if !pred.Pass {
					w.metrics.RecordFiltered("meta")
					continue
				}
			} else {
				w.l.Debug("meta scoring skipped", applogger.String("id", sig.ID), applogger.Error(err))
			}
		}
		sig.Muted = res.mute.Muted
		w.hist.Add(sig)
		w.metrics.RecordSignal(symbol, tf, string(sig.Side), sig.Strategy)
		res.alerts = append(res.alerts, models.NewAlert(sig))
	}
	return res, nil
}

func (w *Worker) notify(ctx context.Context, a models.Alert) {
	if a.Signal.Muted || w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, a); err != nil {
		w.l.Warn("notify failed", applogger.String("id", a.Signal.ID), applogger.Error(err))
	}
}
