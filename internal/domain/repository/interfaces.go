package repository

import (
	"context"
	"errors"
	"time"

	"FinSignal/internal/domain/models"
)

// ErrNoState is returned by a StateStore that has nothing persisted yet.
var ErrNoState = errors.New("no persisted state")

// CandleSource fetches the latest OHLCV bars, oldest first.
type CandleSource interface {
	Name() string
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error)
}

type StateStore interface {
	Load(ctx context.Context) (models.State, error)
	Save(ctx context.Context, state models.State) error
}

type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
	Close() error
}

type Metrics interface {
	RecordCycle(status string, d time.Duration)
	RecordUnitError(symbol, timeframe string)
	RecordSignal(symbol, timeframe, side, strategy string)
	RecordFiltered(reason string)
	RecordFetch(source string, d time.Duration, err error)
	SetMuted(stream string, muted bool)
	SetModelLoaded(loaded bool)
	RecordAlert(result string)
}

// SourcedCandleSource reports which underlying source served a fetch.
type SourcedCandleSource interface {
	CandleSource
	CandlesFrom(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, string, error)
}

// FetchCandles fetches from src and names the source that answered.
func FetchCandles(ctx context.Context, src CandleSource, symbol, timeframe string, limit int) ([]models.Candle, string, error) {
	if s, ok := src.(SourcedCandleSource); ok {
		return s.CandlesFrom(ctx, symbol, timeframe, limit)
	}
	candles, err := src.Candles(ctx, symbol, timeframe, limit)
	return candles, src.Name(), err
}
