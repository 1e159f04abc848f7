package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/service/breaker"
	applogger "FinSignal/pkg/logger"
)

// BreakerCandleSource guards a source with its named circuit breaker and
// records fetch metrics.
type BreakerCandleSource struct {
	inner    domrepo.CandleSource
	breakers *breaker.Set
	metrics  domrepo.Metrics
}

func NewBreakerCandleSource(inner domrepo.CandleSource, breakers *breaker.Set, m domrepo.Metrics) *BreakerCandleSource {
	return &BreakerCandleSource{inner: inner, breakers: breakers, metrics: m}
}

func (s *BreakerCandleSource) Name() string { return s.inner.Name() }

func (s *BreakerCandleSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	start := time.Now()
	candles, err := breaker.Execute(s.breakers, s.inner.Name(), func() ([]models.Candle, error) {
		return s.inner.Candles(ctx, symbol, timeframe, limit)
	})
	if s.metrics != nil {
		s.metrics.RecordFetch(s.inner.Name(), time.Since(start), err)
	}
	return candles, err
}

// FailoverCandleSource tries each source in order. A source behind an open
// breaker fails fast with breaker.ErrOpen and the next one is tried, so a
// cache layered above the breaker still answers while it is open.
type FailoverCandleSource struct {
	sources []domrepo.CandleSource
	l       *applogger.Logger
}

func NewFailoverCandleSource(l *applogger.Logger, sources ...domrepo.CandleSource) *FailoverCandleSource {
	if l == nil {
		l = applogger.Nop()
	}
	return &FailoverCandleSource{sources: sources, l: l}
}

// Name is the primary source's name.
func (s *FailoverCandleSource) Name() string {
	if len(s.sources) == 0 {
		return "none"
	}
	return s.sources[0].Name()
}

func (s *FailoverCandleSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	candles, _, err := s.CandlesFrom(ctx, symbol, timeframe, limit)
	return candles, err
}

func (s *FailoverCandleSource) CandlesFrom(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, string, error) {
	var errs []error
	for i, src := range s.sources {
		candles, err := src.Candles(ctx, symbol, timeframe, limit)
		if err == nil {
			if i > 0 {
				s.l.Warn("candles served by fallback source",
					applogger.String("source", src.Name()),
					applogger.String("symbol", symbol),
					applogger.String("timeframe", timeframe),
				)
			}
			return candles, src.Name(), nil
		}
		if errors.Is(err, breaker.ErrOpen) {
			s.l.Debug("candle source skipped", applogger.String("source", src.Name()), applogger.String("reason", "breaker open"))
		}
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, "", errors.New("no candle source configured")
	}
	return nil, "", errors.Join(errs...)
}
