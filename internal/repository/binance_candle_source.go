package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/service/ratelimit"
	xhttp "FinSignal/pkg/http"
	"FinSignal/pkg/util"
)

const binanceMaxLimit = 1000

// BinanceCandleSource reads klines from the Binance spot REST API.
type BinanceCandleSource struct {
	client  *xhttp.Client
	limiter *ratelimit.Limiter
}

func NewBinanceCandleSource(client *xhttp.Client, limiter *ratelimit.Limiter) *BinanceCandleSource {
	return &BinanceCandleSource{client: client, limiter: limiter}
}

func (s *BinanceCandleSource) Name() string { return "binance" }

func (s *BinanceCandleSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if !domrepo.IsValidTimeframe(domrepo.Timeframe(timeframe)) {
		return nil, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
	if limit <= 0 || limit > binanceMaxLimit {
		limit = binanceMaxLimit
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, s.Name()); err != nil {
			return nil, fmt.Errorf("binance rate limit: %w", err)
		}
	}

	var rows [][]json.RawMessage
	q := url.Values{
		"symbol":   {symbol},
		"interval": {timeframe},
		"limit":    {strconv.Itoa(limit)},
	}
	if err := s.client.GetJSON(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, timeframe, err)
	}
	return parseKlines(rows)
}

// parseKlines decodes [openTime, open, high, low, close, volume, ...] rows.
func parseKlines(rows [][]json.RawMessage) ([]models.Candle, error) {
	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("kline %d: want at least 6 fields, got %d", i, len(row))
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		var vals [5]float64
		for k := range vals {
			v, err := decimalField(row[k+1])
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, k+1, err)
			}
			vals[k] = v
		}
		out = append(out, models.Candle{
			Time:   util.FromMillis(openTime),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return out, nil
}

// decimalField accepts Binance's quoted decimals as well as bare numbers.
func decimalField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
