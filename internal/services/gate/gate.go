// Package gate filters candidate signals against quality thresholds.
package gate

import (
	"fmt"

	"github.com/creasty/defaults"

	"FinSignal/internal/domain/models"
)

type Config struct {
	MaxStopPct       float64 `yaml:"max_stop_pct" json:"maxStopPct" default:"1.2" validate:"gt=0"`
	MinRR            float64 `yaml:"min_rr" json:"minRR" default:"1.5" validate:"gt=0"`
	ATRPctMin        float64 `yaml:"atr_pct_min" json:"atrPctMin" default:"0.05" validate:"gte=0"`
	ATRPctMax        float64 `yaml:"atr_pct_max" json:"atrPctMax" default:"3" validate:"gt=0"`
	RequireFreshZone bool    `yaml:"require_fresh_zone" json:"requireFreshZone" default:"true"`
	CooldownBars     int     `yaml:"cooldown_bars" json:"cooldownBars" default:"6" validate:"gte=0"`
	ScoreMin         float64 `yaml:"score_min" json:"scoreMin" default:"55" validate:"gte=0,lte=100"`
	StopATRMult      float64 `yaml:"stop_atr_mult" json:"stopAtrMult" default:"0.3" validate:"gte=0"`
}

func DefaultConfig() Config {
	var c Config
	defaults.MustSet(&c)
	return c
}

// Candidate is a signal proposal with the context the gate needs.
type Candidate struct {
	Side    models.Side
	Entry   float64
	Stop    float64
	RR      float64
	Score   float64
	ATRPct  float64
	HasZone bool
	Fresh   bool
	// BarsSinceLast is the bar distance to the previous signal with the same
	// symbol, timeframe and side. Negative means there is none.
	BarsSinceLast int
}

// StopPct is the stop distance as a percentage of entry.
func (c Candidate) StopPct() float64 {
	if c.Entry == 0 {
		return 0
	}
	d := c.Entry - c.Stop
	if d < 0 {
		d = -d
	}
	return d / c.Entry * 100
}

type Decision struct {
	Pass    bool
	Reasons []string
}

// Check applies every rule and collects each failure.
func Check(cfg Config, c Candidate) Decision {
	var failed []string
	if sp := c.StopPct(); sp > cfg.MaxStopPct {
		failed = append(failed, fmt.Sprintf("stop %.2f%% > max %.2f%%", sp, cfg.MaxStopPct))
	}
	if c.RR < cfg.MinRR {
		failed = append(failed, fmt.Sprintf("rr %.2f < min %.2f", c.RR, cfg.MinRR))
	}
	if c.ATRPct < cfg.ATRPctMin || c.ATRPct > cfg.ATRPctMax {
		failed = append(failed, fmt.Sprintf("atr %.3f%% outside [%.3f, %.3f]", c.ATRPct, cfg.ATRPctMin, cfg.ATRPctMax))
	}
	if cfg.RequireFreshZone && c.HasZone && !c.Fresh {
		failed = append(failed, "zone not fresh")
	}
	if c.BarsSinceLast >= 0 && c.BarsSinceLast < cfg.CooldownBars {
		failed = append(failed, fmt.Sprintf("cooldown %d/%d bars", c.BarsSinceLast, cfg.CooldownBars))
	}
	if c.Score < cfg.ScoreMin {
		failed = append(failed, fmt.Sprintf("score %.0f < min %.0f", c.Score, cfg.ScoreMin))
	}
	return Decision{Pass: len(failed) == 0, Reasons: failed}
}
