package signals

import (
	"time"

	"github.com/creasty/defaults"

	"FinSignal/internal/services/features"
	"FinSignal/internal/services/zones"
)

type Config struct {
	Features features.Config `yaml:"features"`
	Zones    zones.Config    `yaml:"zones"`

	RefEMAPeriod  int           `yaml:"ref_ema_period" default:"50" validate:"gte=2"`
	RangeLookback int           `yaml:"range_lookback" default:"50" validate:"gte=2"`
	RangeLow      float64       `yaml:"range_low" default:"0.2" validate:"gte=0,lte=1"`
	RangeHigh     float64       `yaml:"range_high" default:"0.8" validate:"gte=0,lte=1"`
	WickMin       float64       `yaml:"wick_min" default:"0.35" validate:"gte=0,lt=1"`
	TargetR       float64       `yaml:"target_r" default:"2" validate:"gt=0"`
	DedupeWindow  time.Duration `yaml:"dedupe_window" default:"15m"`

	Squeeze   SqueezeConfig   `yaml:"squeeze"`
	TrendMode TrendModeConfig `yaml:"trend_mode"`
}

type SqueezeConfig struct {
	Enabled    bool    `yaml:"enabled" default:"true"`
	BBWidthMax float64 `yaml:"bb_width_max" default:"2.5" validate:"gt=0"`
}

// TrendModeConfig replaces the zone pullback strategy with ATR-based trend
// entries when enabled.
type TrendModeConfig struct {
	Enabled     bool    `yaml:"enabled" default:"false"`
	ADXMin      float64 `yaml:"adx_min" default:"12" validate:"gte=0"`
	StopATR     float64 `yaml:"stop_atr" default:"2.2" validate:"gt=0"`
	TargetATR   float64 `yaml:"target_atr" default:"4.4" validate:"gt=0"`
	ForwardBars int     `yaml:"forward_bars" default:"60" validate:"gte=1"`
}

func DefaultConfig() Config {
	var c Config
	defaults.MustSet(&c)
	return c
}
