package evaluation

import (
	"sort"

	"FinSignal/internal/domain/models"
)

// Aggregate summarizes trades. Open trades are counted but excluded from
// every rate and R metric.
func Aggregate(trades []models.EvaluatedTrade) models.PerformanceSummary {
	sum := models.PerformanceSummary{Total: len(trades)}

	resolved := make([]models.EvaluatedTrade, 0, len(trades))
	for _, t := range trades {
		switch t.Outcome {
		case models.OutcomeTP1:
			sum.TP1++
		case models.OutcomeStop:
			sum.Stop++
		case models.OutcomeTimeout:
			sum.Timeout++
		default:
			sum.Open++
			continue
		}
		resolved = append(resolved, t)
	}
	sum.Resolved = len(resolved)
	if sum.Resolved == 0 {
		return sum
	}

	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].Timestamp.Before(resolved[j].Timestamp) })

	var grossWin, grossLoss, cum, peak, bars float64
	for _, t := range resolved {
		if t.R > 0 {
			grossWin += t.R
		} else {
			grossLoss -= t.R
		}
		cum += t.R
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > sum.MaxDrawdownR {
			sum.MaxDrawdownR = dd
		}
		bars += float64(t.BarsHeld)
	}
	n := float64(sum.Resolved)
	winRate := float64(sum.TP1) / n
	expectancy := cum / n
	sum.WinRateTP1 = &winRate
	sum.ExpectancyR = &expectancy
	sum.TotalR = cum
	sum.AvgBarsHeld = bars / n
	if grossLoss > 0 {
		pf := grossWin / grossLoss
		sum.ProfitFactor = &pf
	}
	return sum
}
