package signals

import "math"

// Score weights one candidate on a 0..100 scale.
func Score(aligned bool, rr, stopPct, adx float64) float64 {
	s := 20.0
	if aligned {
		s += 40
	}
	if rr >= 2 {
		s += 15
	}
	if stopPct < 0.4 {
		s += 15
	}
	if adx > 20 {
		s += 10
	}
	return math.Min(s, 100)
}
