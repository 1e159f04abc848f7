package usecase

import (
	"context"
	"errors"
	"fmt"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/services/indicators"
	"FinSignal/internal/services/tradeplan"
)

var ErrSignalNotFound = errors.New("signal not found")

// Planner replays recorded signals through the multi-target trade plan.
type Planner struct {
	src    HistorySource
	source domrepo.CandleSource
	cfg    tradeplan.Config
	limit  int
}

func NewPlanner(src HistorySource, source domrepo.CandleSource, cfg tradeplan.Config, limit int) *Planner {
	if limit < 1 {
		limit = 500
	}
	return &Planner{src: src, source: source, cfg: cfg, limit: limit}
}

// Plan fetches the latest candles of the signal's stream and simulates it.
func (p *Planner) Plan(ctx context.Context, id string) (models.TradePlanResult, error) {
	sig, ok := p.find(id)
	if !ok {
		return models.TradePlanResult{}, ErrSignalNotFound
	}
	candles, err := p.source.Candles(ctx, sig.Symbol, sig.Timeframe, p.limit)
	if err != nil {
		return models.TradePlanResult{}, fmt.Errorf("fetch candles %s %s: %w", sig.Symbol, sig.Timeframe, err)
	}
	return Simulate(sig, candles, p.cfg), nil
}

func (p *Planner) find(id string) (models.Signal, bool) {
	hist := p.src.History()
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].ID == id {
			return hist[i], true
		}
	}
	return models.Signal{}, false
}

// Simulate runs the trade plan of sig with the close EMA of candles.
func Simulate(sig models.Signal, candles []models.Candle, cfg tradeplan.Config) models.TradePlanResult {
	ema := indicators.EMA(models.Closes(candles), cfg.EMAPeriod)
	return tradeplan.Simulate(sig, candles, ema, cfg)
}
