package repository

import (
	"context"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/cache"
)

// CachedCandleSource memoizes fetches for a fraction of the bar duration.
type CachedCandleSource struct {
	inner  domrepo.CandleSource
	cache  cache.Service
	factor float64
}

func NewCachedCandleSource(inner domrepo.CandleSource, c cache.Service) *CachedCandleSource {
	return &CachedCandleSource{inner: inner, cache: c, factor: 0.75}
}

func (s *CachedCandleSource) Name() string { return s.inner.Name() }

func (s *CachedCandleSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	ttl := time.Duration(float64(domrepo.TimeframeDuration(timeframe)) * s.factor)
	if ttl <= 0 {
		return s.inner.Candles(ctx, symbol, timeframe, limit)
	}
	key := cache.GenerateKeyWithParams("candles", s.inner.Name(), symbol, timeframe, limit)
	candles, _, err := cache.Fetch(ctx, s.cache, key, ttl, func(ctx context.Context) ([]models.Candle, error) {
		return s.inner.Candles(ctx, symbol, timeframe, limit)
	})
	return candles, err
}
