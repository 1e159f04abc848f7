// Package automute decides whether a signal stream should stop alerting
// based on its recent realized expectancy.
package automute

import (
	"fmt"

	"github.com/creasty/defaults"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/evaluation"
)

type Config struct {
	Enabled   bool `yaml:"enabled" json:"enabled" default:"true"`
	Window    int  `yaml:"window" json:"window" default:"20" validate:"gte=1"`
	MinTrades int  `yaml:"min_trades" json:"minTrades" default:"20" validate:"gte=1"`
}

func DefaultConfig() Config {
	var c Config
	defaults.MustSet(&c)
	return c
}

// Decide mutes when at least MinTrades resolved trades are available and
// their mean R is negative. Open trades do not count.
func Decide(stream models.StreamKey, trades []models.EvaluatedTrade, cfg Config) models.MuteState {
	state := models.MuteState{Stream: stream}
	if !cfg.Enabled {
		state.Reason = "auto-mute disabled"
		return state
	}
	summary := evaluation.Aggregate(trades)
	state.Trades = summary.Resolved
	state.ExpectancyR = summary.ExpectancyR
	if summary.Resolved < cfg.MinTrades || summary.ExpectancyR == nil {
		state.Reason = fmt.Sprintf("insufficient data (%d/%d trades)", summary.Resolved, cfg.MinTrades)
		return state
	}
	exp := *summary.ExpectancyR
	state.Muted = exp < 0
	state.Reason = fmt.Sprintf("expectancy %.3fR over %d trades", exp, summary.Resolved)
	return state
}

// DecideFromSignals evaluates the most recent Window signals of a stream on
// candles and decides from the result. Signals already carrying an outcome
// reuse it.
func DecideFromSignals(stream models.StreamKey, recent []models.Signal, candles []models.Candle, evalCfg evaluation.Config, cfg Config) models.MuteState {
	if len(recent) > cfg.Window {
		recent = recent[len(recent)-cfg.Window:]
	}
	trades := make([]models.EvaluatedTrade, len(recent))
	for i, s := range recent {
		if s.Outcome.Resolved() {
			trades[i] = evaluation.FromSignal(s)
			continue
		}
		trades[i] = evaluation.Evaluate(s, candles, evalCfg)
	}
	return Decide(stream, trades, cfg)
}
