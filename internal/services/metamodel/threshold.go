package metamodel

import "math"

// SuggestThreshold scans thresholds from 0.40 to 0.80 and returns the one
// whose passing rows have the best mean R, considering only thresholds that
// keep at least minTrades rows. It returns nil when none qualifies.
func SuggestThreshold(probs []float64, rows []Row, minTrades int) *float64 {
	var (
		best    float64
		bestExp = math.Inf(-1)
		found   bool
	)
	for step := 0; step <= 20; step++ {
		t := 0.40 + float64(step)*0.02
		n, sum := 0, 0.0
		for i, p := range probs {
			if p >= t {
				n++
				sum += rows[i].R
			}
		}
		if n < minTrades {
			continue
		}
		if exp := sum / float64(n); exp > bestExp {
			best, bestExp, found = t, exp, true
		}
	}
	if !found {
		return nil
	}
	best = math.Round(best*100) / 100
	return &best
}
