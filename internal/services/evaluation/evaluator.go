// Package evaluation replays signals against later candles and aggregates
// the results into performance metrics.
package evaluation

import (
	"time"

	"github.com/creasty/defaults"

	"FinSignal/internal/domain/models"
)

type Config struct {
	MaxHoldBars int     `yaml:"max_hold_bars" json:"maxHoldBars" default:"96" validate:"gte=1"`
	FeeBps      float64 `yaml:"fee_bps" json:"feeBps" default:"4" validate:"gte=0"`
	SlippageBps float64 `yaml:"slippage_bps" json:"slippageBps" default:"2" validate:"gte=0"`
}

func DefaultConfig() Config {
	var c Config
	defaults.MustSet(&c)
	return c
}

// StartIndex is the first candle strictly after ts, or -1 when ts precedes
// the window or no later candle exists. The signal's own bar is excluded so
// its range cannot resolve the trade it produced.
func StartIndex(candles []models.Candle, ts time.Time) int {
	if len(candles) == 0 || ts.Before(candles[0].Time) {
		return -1
	}
	for i, c := range candles {
		if c.Time.After(ts) {
			return i
		}
	}
	return -1
}

// Evaluate replays sig on candles. Stop takes precedence when stop and tp1
// trade within the same bar. A signal whose holding window extends beyond
// the available candles without resolution stays open.
func Evaluate(sig models.Signal, candles []models.Candle, cfg Config) models.EvaluatedTrade {
	out := models.EvaluatedTrade{
		SignalID:  sig.ID,
		Symbol:    sig.Symbol,
		Timeframe: sig.Timeframe,
		Side:      sig.Side,
		Timestamp: sig.Timestamp,
		Outcome:   models.OutcomeOpen,
	}
	risk := sig.Risk()
	if risk <= 0 {
		return out
	}
	start := StartIndex(candles, sig.Timestamp)
	if start < 0 {
		return out
	}
	rr := sig.RR
	if rr <= 0 {
		rr = (sig.TP1 - sig.Entry) * sig.Side.Dir() / risk
	}
	long := sig.Side != models.SideShort

	end := start + cfg.MaxHoldBars
	if end > len(candles) {
		end = len(candles)
	}
	for i := start; i < end; i++ {
		c := candles[i]
		stopHit := (long && c.Low <= sig.Stop) || (!long && c.High >= sig.Stop)
		tpHit := (long && c.High >= sig.TP1) || (!long && c.Low <= sig.TP1)
		switch {
		case stopHit:
			return settle(out, sig, models.OutcomeStop, -1, sig.Stop, c, i-start+1, risk, cfg)
		case tpHit:
			return settle(out, sig, models.OutcomeTP1, rr, sig.TP1, c, i-start+1, risk, cfg)
		}
	}
	// A hold window that ends exactly on the last candle is complete.
	if start+cfg.MaxHoldBars > len(candles) {
		return out
	}
	last := candles[end-1]
	r := (last.Close - sig.Entry) * sig.Side.Dir() / risk
	return settle(out, sig, models.OutcomeTimeout, r, last.Close, last, end-start, risk, cfg)
}

func settle(out models.EvaluatedTrade, sig models.Signal, outcome models.Outcome, grossR, exit float64, c models.Candle, bars int, risk float64, cfg Config) models.EvaluatedTrade {
	cost := (cfg.FeeBps + cfg.SlippageBps) * (sig.Entry + exit) / 10000 / risk
	out.Outcome = outcome
	out.CostR = cost
	out.R = grossR - cost
	out.ExitPrice = exit
	out.ExitTime = c.Time
	out.BarsHeld = bars
	return out
}

// EvaluateAll evaluates each signal against the same candle window.
func EvaluateAll(signals []models.Signal, candles []models.Candle, cfg Config) []models.EvaluatedTrade {
	out := make([]models.EvaluatedTrade, len(signals))
	for i, s := range signals {
		out[i] = Evaluate(s, candles, cfg)
	}
	return out
}

// FromSignal rebuilds an evaluated trade from an already resolved signal.
func FromSignal(s models.Signal) models.EvaluatedTrade {
	outcome := s.Outcome
	if !outcome.Resolved() {
		outcome = models.OutcomeOpen
	}
	return models.EvaluatedTrade{
		SignalID:  s.ID,
		Symbol:    s.Symbol,
		Timeframe: s.Timeframe,
		Side:      s.Side,
		Timestamp: s.Timestamp,
		Outcome:   outcome,
		R:         s.R,
		BarsHeld:  s.BarsHeld,
		ExitTime:  s.OutcomeAt,
	}
}
