package gate

import (
	"math"
	"sort"

	"github.com/creasty/defaults"

	"FinSignal/internal/services/indicators"
)

type DynamicConfig struct {
	Enabled    bool    `yaml:"enabled" json:"enabled" default:"false"`
	Lookback   int     `yaml:"lookback" json:"lookback" default:"200" validate:"gte=1"`
	MinSamples int     `yaml:"min_samples" json:"minSamples" default:"50" validate:"gte=1"`
	RatioMin   float64 `yaml:"ratio_min" json:"ratioMin" default:"0.6" validate:"gt=0"`
	RatioMax   float64 `yaml:"ratio_max" json:"ratioMax" default:"1.6" validate:"gt=0"`
	RRNudge    float64 `yaml:"rr_nudge" json:"rrNudge" default:"0.05" validate:"gte=0,lt=1"`
}

func DefaultDynamicConfig() DynamicConfig {
	var c DynamicConfig
	defaults.MustSet(&c)
	return c
}

// Adjustment describes how the base thresholds were rescaled.
type Adjustment struct {
	Applied bool    `json:"applied"`
	Samples int     `json:"samples"`
	Median  float64 `json:"median"`
	Ratio   float64 `json:"ratio"`
}

const (
	atrPctFloor, atrPctCeil     = 0.005, 10.0
	stopPctFloor, stopPctCeil   = 0.1, 10.0
	stopMultFloor, stopMultCeil = 0.05, 3.0
)

// Adjust rescales the volatility-sensitive thresholds of base by the ratio of
// the trailing median ATR% to the midpoint of [ATRPctMin, ATRPctMax]. With
// fewer than MinSamples usable values base is returned unchanged.
func Adjust(base Config, atrPct []float64, dc DynamicConfig) (Config, Adjustment) {
	start := len(atrPct) - dc.Lookback
	if start < 0 {
		start = 0
	}
	samples := make([]float64, 0, len(atrPct)-start)
	for _, v := range atrPct[start:] {
		if indicators.Valid(v) && v > 0 {
			samples = append(samples, v)
		}
	}
	adj := Adjustment{Samples: len(samples), Ratio: 1}
	if len(samples) < dc.MinSamples {
		return base, adj
	}
	adj.Median = median(samples)
	mid := (base.ATRPctMin + base.ATRPctMax) / 2
	if mid <= 0 {
		return base, adj
	}
	adj.Ratio = clamp(adj.Median/mid, dc.RatioMin, dc.RatioMax)
	adj.Applied = true
	if adj.Ratio == 1 {
		return base, adj
	}

	out := base
	out.ATRPctMin = clamp(base.ATRPctMin*adj.Ratio, atrPctFloor, atrPctCeil)
	out.ATRPctMax = clamp(base.ATRPctMax*adj.Ratio, atrPctFloor, atrPctCeil)
	if out.ATRPctMin > out.ATRPctMax {
		out.ATRPctMin = out.ATRPctMax
	}
	out.MaxStopPct = clamp(base.MaxStopPct*adj.Ratio, stopPctFloor, stopPctCeil)
	out.StopATRMult = clamp(base.StopATRMult*adj.Ratio, stopMultFloor, stopMultCeil)
	if adj.Ratio > 1 {
		out.MinRR = base.MinRR * (1 - dc.RRNudge)
	} else {
		out.MinRR = base.MinRR * (1 + dc.RRNudge)
	}
	return out, adj
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
