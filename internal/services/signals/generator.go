// Package signals turns a candle series and its reference timeframes into
// gated, deduplicated trade signals.
package signals

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/services/evaluation"
	"FinSignal/internal/services/features"
	"FinSignal/internal/services/gate"
	"FinSignal/internal/services/indicators"
	"FinSignal/internal/services/zones"
)

// History is the read side of the signal history the generator dedupes against.
type History interface {
	HasNear(key models.SignalKey, ts time.Time, window time.Duration) bool
	Latest(key models.SignalKey) (models.Signal, bool)
	LatestInStream(symbol, timeframe string) (models.Signal, bool)
}

type Input struct {
	Symbol     string
	Timeframe  string
	Candles    []models.Candle
	References [][]models.Candle
	DataSource string
	GateMode   string
	History    History
}

// Rejection records why a candidate did not become a signal.
type Rejection struct {
	Strategy string      `json:"strategy"`
	Side     models.Side `json:"side"`
	Reasons  []string    `json:"reasons"`
}

type Result struct {
	Signals    []models.Signal
	Rejected   []Rejection
	Bias       Bias
	Gate       gate.Config
	Adjustment gate.Adjustment
}

type Generator struct {
	cfg     Config
	gate    gate.Config
	dynamic gate.DynamicConfig
	newID   func() string
}

type Option func(*Generator)

// WithIDFunc overrides signal id generation.
func WithIDFunc(fn func() string) Option {
	return func(g *Generator) { g.newID = fn }
}

func New(cfg Config, gateCfg gate.Config, dynamic gate.DynamicConfig, opts ...Option) *Generator {
	g := &Generator{cfg: cfg, gate: gateCfg, dynamic: dynamic, newID: uuid.NewString}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// candidate is a proposal before gating.
type candidate struct {
	strategy string
	side     models.Side
	entry    float64
	stop     float64
	tp1      float64
	rr       float64
	aligned  bool
	zone     *models.Zone
	reasons  []string
}

type run struct {
	in      Input
	series  *features.Series
	gate    gate.Config
	bias    Bias
	barDur  time.Duration
	last    int
	emitted map[models.SignalKey][]time.Time
	res     *Result
}

// Evaluate inspects the last candle of in and returns the signals it emits.
func (g *Generator) Evaluate(in Input) Result {
	res := Result{Gate: g.gate, Adjustment: gate.Adjustment{Ratio: 1}}
	n := len(in.Candles)
	if n < 2 {
		return res
	}
	series := features.Compute(in.Candles, g.cfg.Features)
	if g.dynamic.Enabled {
		res.Gate, res.Adjustment = gate.Adjust(g.gate, series.ATRPct, g.dynamic)
	}

	r := &run{
		in:      in,
		series:  series,
		gate:    res.Gate,
		last:    n - 1,
		barDur:  barDuration(in),
		emitted: make(map[models.SignalKey][]time.Time),
		res:     &res,
	}
	if !indicators.Valid(series.ATR[r.last]) || series.ATR[r.last] <= 0 {
		return res
	}

	var cands []candidate
	if g.cfg.TrendMode.Enabled {
		r.bias = ReferenceBias(in.References, g.cfg.RefEMAPeriod, false)
		cands = append(cands, g.trendMode(r)...)
	} else {
		r.bias = ReferenceBias(in.References, g.cfg.RefEMAPeriod, true)
		cands = append(cands, g.pullbacks(r)...)
	}
	res.Bias = r.bias
	if g.cfg.Squeeze.Enabled {
		cands = append(cands, g.squeeze(r)...)
	}

	for _, c := range cands {
		g.admit(r, c)
	}
	return res
}

func barDuration(in Input) time.Duration {
	if d := repository.TimeframeDuration(in.Timeframe); d > 0 {
		return d
	}
	n := len(in.Candles)
	return in.Candles[n-1].Time.Sub(in.Candles[n-2].Time)
}

// pullbacks proposes entries at active zones touched by the last candle,
// rejected by a wick and either aligned with the bias or at a range extreme.
func (g *Generator) pullbacks(r *run) []candidate {
	if r.bias == BiasNeutral {
		r.res.Rejected = append(r.res.Rejected, Rejection{Strategy: models.StrategyTrendPullback, Reasons: []string{"neutral htf bias"}})
		return nil
	}
	candles := r.in.Candles
	lc := candles[r.last]
	rng := lc.High - lc.Low
	if rng <= 0 {
		return nil
	}
	atr := r.series.ATR[r.last]

	// zones come from the bars before the last one, which is the touch under test
	found := zones.Active(zones.Detect(candles[:r.last], r.series.ATR[:r.last], g.cfg.Zones))
	sort.SliceStable(found, func(i, j int) bool { return found[i].PivotIndex > found[j].PivotIndex })

	pos := indicators.RangePosition(candles, r.last, g.cfg.RangeLookback)
	var out []candidate
	for i := range found {
		z := found[i]
		if !z.Contains(lc.Low, lc.High) || zones.Mitigates(z, lc.Close, g.cfg.Zones.MitigationBuffer) {
			continue
		}
		var (
			side    models.Side
			wick    float64
			extreme bool
			stop    float64
		)
		if z.Type == models.ZoneDemand {
			side = models.SideLong
			wick = (math.Min(lc.Open, lc.Close) - lc.Low) / rng
			extreme = indicators.Valid(pos) && pos <= g.cfg.RangeLow
			stop = z.Bottom - atr*r.gate.StopATRMult
		} else {
			side = models.SideShort
			wick = (lc.High - math.Max(lc.Open, lc.Close)) / rng
			extreme = indicators.Valid(pos) && pos >= g.cfg.RangeHigh
			stop = z.Top + atr*r.gate.StopATRMult
		}
		biasSide, _ := r.bias.Side()
		aligned := side == biasSide
		if wick <= g.cfg.WickMin {
			r.reject(models.StrategyTrendPullback, side, fmt.Sprintf("wick %.2f <= %.2f", wick, g.cfg.WickMin))
			continue
		}
		if !aligned && !extreme {
			r.reject(models.StrategyTrendPullback, side, "counter-trend away from range extreme")
			continue
		}
		entry := lc.Close
		risk := (entry - stop) * side.Dir()
		if risk <= 0 {
			continue
		}
		reasons := []string{
			fmt.Sprintf("%s zone %.4f-%.4f", z.Type, z.Bottom, z.Top),
			fmt.Sprintf("rejection wick %.2f", wick),
		}
		if aligned {
			reasons = append(reasons, "htf bias "+r.bias.String())
		} else {
			reasons = append(reasons, fmt.Sprintf("range extreme %.2f", pos))
		}
		out = append(out, candidate{
			strategy: models.StrategyTrendPullback,
			side:     side,
			entry:    entry,
			stop:     stop,
			tp1:      entry + side.Dir()*g.cfg.TargetR*risk,
			rr:       g.cfg.TargetR,
			aligned:  aligned,
			zone:     &found[i],
			reasons:  reasons,
		})
	}
	return out
}

// squeeze proposes a breakout when the previous bar's Bollinger bandwidth is
// compressed and the last close leaves the previous Donchian channel.
func (g *Generator) squeeze(r *run) []candidate {
	prev := r.last - 1
	s := r.series
	bw, upper, lower := s.BBBw[prev], s.DonchianUpper[prev], s.DonchianLower[prev]
	if !indicators.Valid(bw) || !indicators.Valid(upper) || !indicators.Valid(lower) {
		return nil
	}
	if bw >= g.cfg.Squeeze.BBWidthMax {
		return nil
	}
	lc := r.in.Candles[r.last]
	atr := s.ATR[r.last]

	// The stop sits beyond the opposite edge of the broken channel.
	var side models.Side
	var stop float64
	switch {
	case lc.Close > upper:
		side = models.SideLong
		stop = lower - atr*r.gate.StopATRMult
	case lc.Close < lower:
		side = models.SideShort
		stop = upper + atr*r.gate.StopATRMult
	default:
		return nil
	}
	risk := (lc.Close - stop) * side.Dir()
	if risk <= 0 {
		return nil
	}
	biasSide, _ := r.bias.Side()
	return []candidate{{
		strategy: models.StrategySqueezeBreakout,
		side:     side,
		entry:    lc.Close,
		stop:     stop,
		tp1:      lc.Close + side.Dir()*g.cfg.TargetR*risk,
		rr:       g.cfg.TargetR,
		aligned:  side == biasSide,
		reasons:  []string{fmt.Sprintf("bb squeeze %.2f%%", bw), "donchian breakout " + string(side)},
	}}
}

// trendMode proposes an ATR-sized entry in the bias direction while ADX
// confirms a trend.
func (g *Generator) trendMode(r *run) []candidate {
	tm := g.cfg.TrendMode
	side, ok := r.bias.Side()
	if !ok {
		r.reject(models.StrategyTrendMode, "", "neutral htf bias")
		return nil
	}
	adx := r.series.ADX[r.last]
	if !indicators.Valid(adx) || adx < tm.ADXMin {
		r.reject(models.StrategyTrendMode, side, fmt.Sprintf("adx %.1f < %.1f", adx, tm.ADXMin))
		return nil
	}
	lc := r.in.Candles[r.last]
	if h := r.in.History; h != nil {
		if prev, ok := h.LatestInStream(r.in.Symbol, r.in.Timeframe); ok {
			if bars := r.barsSince(prev.Timestamp); bars < r.gate.CooldownBars {
				r.reject(models.StrategyTrendMode, side, fmt.Sprintf("cooldown %d/%d bars", bars, r.gate.CooldownBars))
				return nil
			}
		}
		key := models.SignalKey{Symbol: r.in.Symbol, Timeframe: r.in.Timeframe, Side: side}
		if prev, ok := h.Latest(key); ok && g.outstanding(prev, r.in.Candles) {
			r.reject(models.StrategyTrendMode, side, "unresolved signal in the same direction")
			return nil
		}
	}
	atr := r.series.ATR[r.last]
	dir := side.Dir()
	return []candidate{{
		strategy: models.StrategyTrendMode,
		side:     side,
		entry:    lc.Close,
		stop:     lc.Close - dir*atr*tm.StopATR,
		tp1:      lc.Close + dir*atr*tm.TargetATR,
		rr:       tm.TargetATR / tm.StopATR,
		aligned:  true,
		reasons:  []string{"htf bias " + r.bias.String(), fmt.Sprintf("adx %.1f", adx)},
	}}
}

// outstanding reports whether prev is still unresolved within the forward window.
func (g *Generator) outstanding(prev models.Signal, candles []models.Candle) bool {
	if prev.Outcome.Resolved() || len(candles) == 0 || prev.Timestamp.Before(candles[0].Time) {
		return false
	}
	tr := evaluation.Evaluate(prev, candles, evaluation.Config{MaxHoldBars: g.cfg.TrendMode.ForwardBars})
	return tr.Outcome == models.OutcomeOpen
}

func (r *run) barsSince(ts time.Time) int {
	if r.barDur <= 0 {
		return math.MaxInt32
	}
	return int(r.in.Candles[r.last].Time.Sub(ts) / r.barDur)
}

func (r *run) reject(strategy string, side models.Side, reasons ...string) {
	r.res.Rejected = append(r.res.Rejected, Rejection{Strategy: strategy, Side: side, Reasons: reasons})
}

func (r *run) duplicate(key models.SignalKey, ts time.Time, window time.Duration) bool {
	if r.in.History != nil && r.in.History.HasNear(key, ts, window) {
		return true
	}
	for _, prev := range r.emitted[key] {
		d := ts.Sub(prev)
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

// admit scores and gates c, then dedupes it against history and this run.
func (g *Generator) admit(r *run, c candidate) {
	lc := r.in.Candles[r.last]
	key := models.SignalKey{Symbol: r.in.Symbol, Timeframe: r.in.Timeframe, Side: c.side}
	rr := c.rr

	feat := r.series.At(r.last, int(r.bias))
	gc := gate.Candidate{
		Side:          c.side,
		Entry:         c.entry,
		Stop:          c.stop,
		RR:            rr,
		ATRPct:        feat.ATRPct,
		HasZone:       c.zone != nil,
		BarsSinceLast: -1,
	}
	if c.zone != nil {
		gc.Fresh = c.zone.Fresh
	}
	feat.StopPct = gc.StopPct()
	gc.Score = Score(c.aligned, rr, feat.StopPct, feat.ADX)
	if r.in.History != nil {
		if prev, ok := r.in.History.Latest(key); ok {
			gc.BarsSinceLast = r.barsSince(prev.Timestamp)
		}
	}

	decision := gate.Check(r.gate, gc)
	if !decision.Pass {
		r.reject(c.strategy, c.side, decision.Reasons...)
		return
	}
	if r.duplicate(key, lc.Time, g.cfg.DedupeWindow) {
		r.reject(c.strategy, c.side, "duplicate within dedupe window")
		return
	}

	reasons := append(append([]string(nil), c.reasons...), fmt.Sprintf("score %.0f", gc.Score))
	if feat.ADX > 20 && c.strategy != models.StrategyTrendMode {
		reasons = append(reasons, fmt.Sprintf("adx %.1f", feat.ADX))
	}
	sig := models.Signal{
		ID:         g.newID(),
		Symbol:     r.in.Symbol,
		Timeframe:  r.in.Timeframe,
		Side:       c.side,
		Strategy:   c.strategy,
		Entry:      c.entry,
		Stop:       c.stop,
		TP1:        c.tp1,
		RR:         rr,
		Score:      gc.Score,
		Reasons:    reasons,
		Timestamp:  lc.Time,
		DataSource: r.in.DataSource,
		GateMode:   r.in.GateMode,
		Features:   feat,
	}
	if c.zone != nil {
		sig.ZoneType = c.zone.Type
	}
	sig.Features = markMissing(sig.Features)
	r.emitted[key] = append(r.emitted[key], lc.Time)
	r.res.Signals = append(r.res.Signals, sig)
}

// markMissing records the features that were not computable on a short
// series and zeroes them so the signal stays JSON encodable.
func markMissing(f models.SignalFeatures) models.SignalFeatures {
	f.Missing = nil
	for _, v := range []struct {
		name string
		val  *float64
	}{
		{"stopPct", &f.StopPct},
		{"atrPct", &f.ATRPct},
		{"adx", &f.ADX},
		{"bbBw", &f.BBBw},
		{"emaSlope", &f.EMASlope},
	} {
		if !indicators.Valid(*v.val) {
			f.Missing = append(f.Missing, v.name)
			*v.val = 0
		}
	}
	return f
}
