package usecase

import (
	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/evaluation"
)

// HistorySource supplies the signal history, oldest first.
type HistorySource interface {
	History() []models.Signal
}

// Performance aggregates recorded outcomes.
type Performance struct {
	src HistorySource
}

func NewPerformance(src HistorySource) *Performance {
	return &Performance{src: src}
}

// Summary aggregates history matching symbol and timeframe (empty matches any).
func (p *Performance) Summary(symbol, timeframe string) models.PerformanceSummary {
	return evaluation.Aggregate(Trades(p.src.History(), symbol, timeframe))
}

// ByStream aggregates each stream separately.
func (p *Performance) ByStream() map[string]models.PerformanceSummary {
	groups := map[string][]models.EvaluatedTrade{}
	for _, s := range p.src.History() {
		k := s.Stream().String()
		groups[k] = append(groups[k], evaluation.FromSignal(s))
	}
	out := make(map[string]models.PerformanceSummary, len(groups))
	for k, trades := range groups {
		out[k] = evaluation.Aggregate(trades)
	}
	return out
}

// Trades converts matching signals to evaluated trades using their recorded outcomes.
func Trades(history []models.Signal, symbol, timeframe string) []models.EvaluatedTrade {
	var out []models.EvaluatedTrade
	for _, s := range history {
		if symbol != "" && s.Symbol != symbol {
			continue
		}
		if timeframe != "" && s.Timeframe != timeframe {
			continue
		}
		out = append(out, evaluation.FromSignal(s))
	}
	return out
}
