package metamodel

import (
	"math"
	"sort"
	"time"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/evaluation"
)

// Row is one labeled training example.
type Row struct {
	SignalID string
	Time     time.Time
	X        []float64
	Label    float64
	R        float64
}

// SkippedRow records a signal that could not become a row.
type SkippedRow struct {
	SignalID string `json:"signalId"`
	Reason   string `json:"reason"`
}

type Dataset struct {
	Features []string
	Rows     []Row
}

// CandleLookup returns the candles available for a symbol and timeframe.
type CandleLookup func(symbol, timeframe string) []models.Candle

// BuildDataset labels each signal with 1 when it reached tp1 before its stop
// or timeout. Signals without a resolved outcome are skipped. Rows are sorted
// by signal time.
func BuildDataset(signals []models.Signal, candles CandleLookup, evalCfg evaluation.Config) (Dataset, []SkippedRow) {
	ds := Dataset{Features: append([]string(nil), FeatureNames...)}
	var skipped []SkippedRow
	for _, s := range signals {
		trade := evaluation.FromSignal(s)
		if !trade.Outcome.Resolved() && candles != nil {
			trade = evaluation.Evaluate(s, candles(s.Symbol, s.Timeframe), evalCfg)
		}
		if !trade.Outcome.Resolved() {
			skipped = append(skipped, SkippedRow{SignalID: s.ID, Reason: "unresolved outcome"})
			continue
		}
		x := Vector(s, ds.Features)
		if !finite(x) {
			skipped = append(skipped, SkippedRow{SignalID: s.ID, Reason: "non-finite feature"})
			continue
		}
		label := 0.0
		if trade.Outcome == models.OutcomeTP1 {
			label = 1
		}
		ds.Rows = append(ds.Rows, Row{SignalID: s.ID, Time: s.Timestamp, X: x, Label: label, R: trade.R})
	}
	sort.SliceStable(ds.Rows, func(i, j int) bool { return ds.Rows[i].Time.Before(ds.Rows[j].Time) })
	return ds, skipped
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
