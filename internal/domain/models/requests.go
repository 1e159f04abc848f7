package models

// Requests for engine HTTP endpoints.

type SignalsRequest struct {
	Symbol    string `query:"symbol" json:"symbol"`
	Timeframe string `query:"timeframe" json:"timeframe"`
	Limit     int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=2000"`
}

type PerformanceRequest struct {
	Symbol    string `query:"symbol" json:"symbol"`
	Timeframe string `query:"timeframe" json:"timeframe"`
}
