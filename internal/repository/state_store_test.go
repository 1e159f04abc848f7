package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

func sampleState(n int) models.State {
	st := models.State{LastRun: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	for i := 0; i < n; i++ {
		st.History = append(st.History, models.Signal{
			ID:        string(rune('a' + i)),
			Symbol:    "BTCUSDT",
			Timeframe: "15m",
			Side:      models.SideLong,
			Timestamp: st.LastRun.Add(time.Duration(i) * 15 * time.Minute),
		})
	}
	return st
}

func TestFileStateStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewFileStateStore(path, 3)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domrepo.ErrNoState)

	require.NoError(t, store.Save(context.Background(), sampleState(5)))
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got.History, 3, "history is capped on save")
	assert.Equal(t, "c", got.History[0].ID)
	assert.Equal(t, "e", got.History[2].ID)
	assert.True(t, got.LastRun.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStateStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileStateStore(path, 10).Load(context.Background())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domrepo.ErrNoState)
}

func TestRedisStateStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	key := "finsignal:test:" + t.Name()
	defer client.Del(context.Background(), key)

	store := NewRedisStateStore(client, key, 2)
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domrepo.ErrNoState)

	require.NoError(t, store.Save(context.Background(), sampleState(4)))
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got.History, 2)
}
