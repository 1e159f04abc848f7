// Package zones detects supply and demand zones from pivot highs and lows.
package zones

import (
	"github.com/creasty/defaults"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/services/indicators"
)

type Config struct {
	Left             int     `yaml:"left" default:"3" validate:"gte=1"`
	Right            int     `yaml:"right" default:"3" validate:"gte=1"`
	ATRMult          float64 `yaml:"atr_mult" default:"0.5" validate:"gt=0"`
	MitigationBuffer float64 `yaml:"mitigation_buffer" default:"0.001" validate:"gte=0"`
}

func DefaultConfig() Config {
	var c Config
	defaults.MustSet(&c)
	return c
}

// IsPivotHigh reports whether no bar within left bars before or right bars
// after i has a strictly greater high.
func IsPivotHigh(candles []models.Candle, i, left, right int) bool {
	if i-left < 0 || i+right >= len(candles) {
		return false
	}
	h := candles[i].High
	for j := i - left; j <= i+right; j++ {
		if j != i && candles[j].High > h {
			return false
		}
	}
	return true
}

// IsPivotLow is the mirror of IsPivotHigh on lows.
func IsPivotLow(candles []models.Candle, i, left, right int) bool {
	if i-left < 0 || i+right >= len(candles) {
		return false
	}
	l := candles[i].Low
	for j := i - left; j <= i+right; j++ {
		if j != i && candles[j].Low < l {
			return false
		}
	}
	return true
}

// Detect builds zones from every confirmed pivot and replays the candles
// after confirmation to update freshness and mitigation. atr must be aligned
// with candles; pivots without a usable ATR value are skipped.
func Detect(candles []models.Candle, atr []float64, cfg Config) []models.Zone {
	var out []models.Zone
	if len(atr) != len(candles) {
		return out
	}
	for i := cfg.Left; i+cfg.Right < len(candles); i++ {
		width := atr[i] * cfg.ATRMult
		if !indicators.Valid(width) || width <= 0 {
			continue
		}
		if IsPivotHigh(candles, i, cfg.Left, cfg.Right) {
			top := candles[i].High
			z := models.Zone{Type: models.ZoneSupply, Top: top, Bottom: top - width, PivotIndex: i, StartTime: candles[i].Time, Fresh: true}
			replay(&z, candles[i+cfg.Right+1:], cfg.MitigationBuffer)
			out = append(out, z)
		}
		if IsPivotLow(candles, i, cfg.Left, cfg.Right) {
			bottom := candles[i].Low
			z := models.Zone{Type: models.ZoneDemand, Top: bottom + width, Bottom: bottom, PivotIndex: i, StartTime: candles[i].Time, Fresh: true}
			replay(&z, candles[i+cfg.Right+1:], cfg.MitigationBuffer)
			out = append(out, z)
		}
	}
	return out
}

func replay(z *models.Zone, after []models.Candle, buffer float64) {
	for _, c := range after {
		if z.Contains(c.Low, c.High) {
			z.Fresh = false
			z.LastTouch = c.Time
		}
		if Mitigates(*z, c.Close, buffer) {
			z.Mitigated = true
			return
		}
	}
}

// Mitigates reports whether a close beyond the zone, by more than buffer,
// invalidates it.
func Mitigates(z models.Zone, close, buffer float64) bool {
	switch z.Type {
	case models.ZoneDemand:
		return close < z.Bottom*(1-buffer)
	case models.ZoneSupply:
		return close > z.Top*(1+buffer)
	}
	return false
}

// Active filters out mitigated zones.
func Active(zs []models.Zone) []models.Zone {
	out := make([]models.Zone, 0, len(zs))
	for _, z := range zs {
		if !z.Mitigated {
			out = append(out, z)
		}
	}
	return out
}
