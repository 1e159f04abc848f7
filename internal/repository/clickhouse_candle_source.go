package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgch "FinSignal/pkg/clickhouse"
	applogger "FinSignal/pkg/logger"
)

// ClickHouseCandleSource reads bars from per-timeframe candle tables such
// as rt_candles_15m.
type ClickHouseCandleSource struct {
	db     *sql.DB
	prefix string
	l      *applogger.Logger
}

func NewClickHouseCandleSource(ch *pkgch.Client, tablePrefix string, l *applogger.Logger) *ClickHouseCandleSource {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseCandleSource{db: ch.DB(), prefix: tablePrefix, l: l}
}

func (s *ClickHouseCandleSource) Name() string { return "clickhouse" }

// Candles returns the latest limit bars, oldest first.
func (s *ClickHouseCandleSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	start := time.Now()
	table, err := tableFor(s.prefix, timeframe)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT bucket, open, high, low, close, vol
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), symbol, limit)
	if err != nil {
		s.l.Error("clickhouse candles query error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, limit)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Time = c.Time.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverse(out)

	s.l.Debug("clickhouse candles ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)),
	)
	return out, nil
}

func tableFor(prefix, timeframe string) (string, error) {
	if !domrepo.IsValidTimeframe(domrepo.Timeframe(timeframe)) {
		return "", fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
	return prefix + timeframe, nil
}

func reverse(cs []models.Candle) {
	for i, j := 0, len(cs)-1; i < j; i, j = i+1, j-1 {
		cs[i], cs[j] = cs[j], cs[i]
	}
}
