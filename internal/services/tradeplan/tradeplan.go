// Package tradeplan simulates multi-target trade management for a signal.
package tradeplan

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/services/evaluation"
	"FinSignal/internal/services/indicators"
)

type Config struct {
	Ladder           []float64 `yaml:"ladder" json:"ladder"`
	FastLadder       []float64 `yaml:"fast_ladder" json:"fastLadder" default:"[1.5,3,5,8]"`
	SlowLadder       []float64 `yaml:"slow_ladder" json:"slowLadder" default:"[1,2,3,4]"`
	FastBelow        string    `yaml:"fast_below" json:"fastBelow" default:"5m"`
	RequireTPForExit bool      `yaml:"require_tp_for_exit" json:"requireTpForExit" default:"true"`
	ConfirmBars      int       `yaml:"confirm_bars" json:"confirmBars" default:"2" validate:"gte=1"`
	MaxHoldBars      int       `yaml:"max_hold_bars" json:"maxHoldBars" default:"240" validate:"gte=1"`
	EMAPeriod        int       `yaml:"ema_period" json:"emaPeriod" default:"21" validate:"gte=2"`
}

func DefaultConfig() Config {
	var c Config
	defaults.MustSet(&c)
	return c
}

// LadderFor returns the configured ladder, or the default one for timeframe:
// the fast ladder under FastBelow, the slow ladder otherwise.
func (c Config) LadderFor(timeframe string) []float64 {
	if len(c.Ladder) > 0 {
		return c.Ladder
	}
	d := repository.TimeframeDuration(timeframe)
	if d > 0 && d < repository.TimeframeDuration(c.FastBelow) {
		return c.FastLadder
	}
	return c.SlowLadder
}

// Simulate manages sig over the candles after its timestamp. ema must be
// aligned with candles; pass nil to disable trend-flip exits.
func Simulate(sig models.Signal, candles []models.Candle, ema []float64, cfg Config) models.TradePlanResult {
	res := models.TradePlanResult{Status: models.PlanOpen}
	risk := sig.Risk()
	if risk <= 0 {
		return res
	}
	res.Risk = risk
	dir := sig.Side.Dir()
	for _, r := range cfg.LadderFor(sig.Timeframe) {
		res.Targets = append(res.Targets, models.PlanTarget{R: r, Price: sig.Entry + dir*r*risk})
	}

	start := evaluation.StartIndex(candles, sig.Timestamp)
	if start < 0 {
		return res
	}
	end := start + cfg.MaxHoldBars
	if end > len(candles) {
		end = len(candles)
	}

	lastTPBar := -1
	violations := 0
	for i := start; i < end; i++ {
		c := candles[i]
		res.BarsHeld = i - start + 1

		if (dir > 0 && c.Low <= sig.Stop) || (dir < 0 && c.High >= sig.Stop) {
			res.Status = models.PlanStop
			res.Events = append(res.Events, event(models.PlanEventStop, "STOP", i, c.Time, sig.Stop, res.TPsHit, -1))
			return res
		}

		hits := 0
		for _, tgt := range res.Targets[res.TPsHit:] {
			if (dir > 0 && c.High >= tgt.Price) || (dir < 0 && c.Low <= tgt.Price) {
				hits++
				continue
			}
			break
		}
		if hits > 0 {
			from, to := res.TPsHit+1, res.TPsHit+hits
			label := fmt.Sprintf("TP%d", from)
			if to > from {
				label = fmt.Sprintf("TP%d-TP%d", from, to)
			}
			top := res.Targets[to-1]
			res.TPsHit = to
			lastTPBar = i
			res.Events = append(res.Events, event(models.PlanEventTP, label, i, c.Time, top.Price, res.TPsHit, top.R))
		}

		if cfg.RequireTPForExit && res.TPsHit == 0 {
			continue
		}
		if i < len(ema) && indicators.Valid(ema[i]) && (c.Close-ema[i])*dir < 0 {
			violations++
		} else {
			violations = 0
		}
		if violations >= cfg.ConfirmBars && i > lastTPBar {
			res.Status = models.PlanExit
			r := (c.Close - sig.Entry) * dir / risk
			res.Events = append(res.Events, event(models.PlanEventExit, "EXIT", i, c.Time, c.Close, res.TPsHit, r))
			return res
		}
	}
	return res
}

func event(typ models.PlanEventType, label string, bar int, at time.Time, price float64, tps int, r float64) models.PlanEvent {
	return models.PlanEvent{Type: typ, Label: label, Bar: bar, Time: at, Price: price, TPsHit: tps, R: r}
}
