package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

// FileStateStore persists state as one JSON document, replaced atomically.
type FileStateStore struct {
	path string
	max  int
}

func NewFileStateStore(path string, maxHistory int) *FileStateStore {
	return &FileStateStore{path: path, max: maxHistory}
}

func (s *FileStateStore) Load(_ context.Context) (models.State, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.State{}, domrepo.ErrNoState
	}
	if err != nil {
		return models.State{}, fmt.Errorf("read state: %w", err)
	}
	return decodeState(b)
}

func (s *FileStateStore) Save(_ context.Context, state models.State) error {
	b, err := encodeState(state, s.max)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// RedisStateStore persists state under a single key.
type RedisStateStore struct {
	client redis.UniversalClient
	key    string
	max    int
}

func NewRedisStateStore(client redis.UniversalClient, key string, maxHistory int) *RedisStateStore {
	return &RedisStateStore{client: client, key: key, max: maxHistory}
}

func (s *RedisStateStore) Load(ctx context.Context) (models.State, error) {
	b, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.State{}, domrepo.ErrNoState
	}
	if err != nil {
		return models.State{}, fmt.Errorf("redis get state: %w", err)
	}
	return decodeState(b)
}

func (s *RedisStateStore) Save(ctx context.Context, state models.State) error {
	b, err := encodeState(state, s.max)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set state: %w", err)
	}
	return nil
}

// encodeState keeps the newest max history entries.
func encodeState(state models.State, max int) ([]byte, error) {
	if max > 0 && len(state.History) > max {
		state.History = state.History[len(state.History)-max:]
	}
	if state.History == nil {
		state.History = []models.Signal{}
	}
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}

func decodeState(b []byte) (models.State, error) {
	var st models.State
	if err := json.Unmarshal(b, &st); err != nil {
		return models.State{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}
