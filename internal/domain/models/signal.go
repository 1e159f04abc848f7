package models

import (
	"strings"
	"time"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Dir returns +1 for long and -1 for short.
func (s Side) Dir() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

type Outcome string

const (
	OutcomeTP1     Outcome = "tp1"
	OutcomeStop    Outcome = "stop"
	OutcomeTimeout Outcome = "timeout"
	OutcomeOpen    Outcome = "open"
)

// Resolved reports whether the outcome is final.
func (o Outcome) Resolved() bool {
	return o == OutcomeTP1 || o == OutcomeStop || o == OutcomeTimeout
}

const (
	StrategyTrendPullback   = "trend_pullback"
	StrategySqueezeBreakout = "squeeze_breakout"
	StrategyTrendMode       = "trend_mode"
)

// SignalFeatures are the market features captured when the signal fired.
type SignalFeatures struct {
	StopPct  float64 `json:"stopPct"`
	ATRPct   float64 `json:"atrPct"`
	ADX      float64 `json:"adx"`
	BBBw     float64 `json:"bbBw"`
	EMASlope float64 `json:"emaSlope"`
	Trend    int     `json:"trend"`
	// Missing names the features the candle window was too short for.
	// Their values are stored as zero.
	Missing []string `json:"missing,omitempty"`
}

// Has reports whether the named feature was computed.
func (f SignalFeatures) Has(name string) bool {
	for _, m := range f.Missing {
		if m == name {
			return false
		}
	}
	return true
}

// MetaPrediction is the meta-model verdict attached to a signal.
type MetaPrediction struct {
	Prob float64 `json:"prob"`
	EV   float64 `json:"ev"`
	Pass bool    `json:"pass"`
}

type Signal struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Timeframe  string          `json:"timeframe"`
	Side       Side            `json:"side"`
	Strategy   string          `json:"strategy"`
	Entry      float64         `json:"entry"`
	Stop       float64         `json:"stop"`
	TP1        float64         `json:"tp1"`
	RR         float64         `json:"rr"`
	Score      float64         `json:"score"`
	Reasons    []string        `json:"reasons"`
	Timestamp  time.Time       `json:"timestamp"`
	ZoneType   ZoneType        `json:"zoneType,omitempty"`
	DataSource string          `json:"dataSource,omitempty"`
	GateMode   string          `json:"gateMode,omitempty"`
	Features   SignalFeatures  `json:"features"`
	Meta       *MetaPrediction `json:"meta,omitempty"`
	Muted      bool            `json:"muted,omitempty"`

	Outcome   Outcome   `json:"outcome,omitempty"`
	R         float64   `json:"r,omitempty"`
	BarsHeld  int       `json:"barsHeld,omitempty"`
	OutcomeAt time.Time `json:"outcomeAt,omitzero"`
}

// Key returns the dedupe key of the signal.
func (s Signal) Key() SignalKey {
	return SignalKey{Symbol: s.Symbol, Timeframe: s.Timeframe, Side: s.Side}
}

// Stream returns the auto-mute stream the signal belongs to.
func (s Signal) Stream() StreamKey {
	return StreamKey{Symbol: s.Symbol, Timeframe: s.Timeframe, DataSource: s.DataSource, GateMode: s.GateMode}
}

// Risk is the absolute distance between entry and stop.
func (s Signal) Risk() float64 {
	r := s.Entry - s.Stop
	if r < 0 {
		return -r
	}
	return r
}

// SignalKey groups signals for dedupe and cooldown.
type SignalKey struct {
	Symbol    string
	Timeframe string
	Side      Side
}

// StreamKey groups signals for auto-mute decisions.
type StreamKey struct {
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	DataSource string `json:"dataSource,omitempty"`
	GateMode   string `json:"gateMode,omitempty"`
}

func (k StreamKey) String() string {
	parts := []string{k.Symbol, k.Timeframe}
	if k.DataSource != "" {
		parts = append(parts, k.DataSource)
	}
	if k.GateMode != "" {
		parts = append(parts, k.GateMode)
	}
	return strings.Join(parts, "/")
}
