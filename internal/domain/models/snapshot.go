package models

import "time"

type RunStatus string

const (
	RunOK    RunStatus = "ok"
	RunError RunStatus = "error"
)

// MuteState is the auto-mute verdict for one stream.
type MuteState struct {
	Stream      StreamKey `json:"stream"`
	Muted       bool      `json:"muted"`
	Trades      int       `json:"trades"`
	ExpectancyR *float64  `json:"expectancyR"`
	Reason      string    `json:"reason"`
}

// WorkerSnapshot is the published result of the latest orchestration run.
type WorkerSnapshot struct {
	Signals    []Signal          `json:"signals"`
	Emitted    int               `json:"emitted"`
	LastRun    time.Time         `json:"lastRun"`
	RunMs      int64             `json:"runMs"`
	Status     RunStatus         `json:"status"`
	Error      string            `json:"error,omitempty"`
	UnitErrors map[string]string `json:"unitErrors,omitempty"`
	Mutes      []MuteState       `json:"mutes,omitempty"`
}

// State is the persisted engine state.
type State struct {
	History []Signal  `json:"history"`
	LastRun time.Time `json:"lastRun"`
}

// Alert is a rendered notification for an emitted signal.
type Alert struct {
	Signal Signal `json:"signal"`
	Text   string `json:"text"`
}

// EngineStatus echoes the static engine configuration.
type EngineStatus struct {
	Environment string   `json:"environment"`
	Symbols     []string `json:"symbols"`
	Timeframes  []string `json:"timeframes"`
	References  []string `json:"references"`
	Interval    string   `json:"interval"`
	Limit       int      `json:"limit"`
	GateMode    string   `json:"gateMode"`
	Sources     []string `json:"sources"`
	MetaModel   string   `json:"metaModel,omitempty"`
	AutoMute    bool     `json:"autoMute"`
	TrendMode   bool     `json:"trendMode"`
	Squeeze     bool     `json:"squeeze"`
}
