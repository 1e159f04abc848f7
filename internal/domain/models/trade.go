package models

import "time"

// EvaluatedTrade is the result of replaying a signal on later candles.
type EvaluatedTrade struct {
	SignalID  string    `json:"signalId"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Side      Side      `json:"side"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   Outcome   `json:"outcome"`
	R         float64   `json:"r"`
	CostR     float64   `json:"costR"`
	BarsHeld  int       `json:"barsHeld"`
	ExitPrice float64   `json:"exitPrice,omitempty"`
	ExitTime  time.Time `json:"exitTime,omitzero"`
}

// PerformanceSummary aggregates evaluated trades. Nil pointers are undefined metrics.
type PerformanceSummary struct {
	Total        int      `json:"total"`
	Resolved     int      `json:"resolved"`
	TP1          int      `json:"tp1"`
	Stop         int      `json:"stop"`
	Timeout      int      `json:"timeout"`
	Open         int      `json:"open"`
	WinRateTP1   *float64 `json:"winRateTp1"`
	ExpectancyR  *float64 `json:"expectancyR"`
	ProfitFactor *float64 `json:"profitFactor"`
	TotalR       float64  `json:"totalR"`
	MaxDrawdownR float64  `json:"maxDrawdownR"`
	AvgBarsHeld  float64  `json:"avgBarsHeld"`
}

type PlanStatus string

const (
	PlanOpen PlanStatus = "open"
	PlanStop PlanStatus = "stop"
	PlanExit PlanStatus = "exit"
)

type PlanEventType string

const (
	PlanEventTP   PlanEventType = "TP"
	PlanEventStop PlanEventType = "STOP"
	PlanEventExit PlanEventType = "EXIT"
)

type PlanTarget struct {
	R     float64 `json:"r"`
	Price float64 `json:"price"`
}

type PlanEvent struct {
	Type   PlanEventType `json:"type"`
	Label  string        `json:"label"`
	Bar    int           `json:"bar"`
	Time   time.Time     `json:"time"`
	Price  float64       `json:"price"`
	TPsHit int           `json:"tpsHit"`
	R      float64       `json:"r"`
}

// TradePlanResult is the multi-target management replay of a signal.
type TradePlanResult struct {
	Risk     float64      `json:"risk"`
	Targets  []PlanTarget `json:"targets"`
	TPsHit   int          `json:"tpsHit"`
	Status   PlanStatus   `json:"status"`
	Events   []PlanEvent  `json:"events"`
	BarsHeld int          `json:"barsHeld"`
}
