package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	internalrepo "FinSignal/internal/repository"
	"FinSignal/internal/services/metamodel"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// writeHistory persists n resolved signals whose outcome follows the score.
func writeHistory(t *testing.T, n int) string {
	t.Helper()
	hist := make([]models.Signal, n)
	for i := range hist {
		win := i%3 != 0
		s := models.Signal{
			ID:        fmt.Sprintf("s%02d", i),
			Symbol:    "BTCUSDT",
			Timeframe: "15m",
			Side:      models.SideLong,
			Score:     50 + float64(i%7)*5,
			RR:        2 + float64(i%4)*0.1,
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Features: models.SignalFeatures{
				StopPct: 0.3 + float64(i%5)*0.05, ATRPct: 0.5 + float64(i%3)*0.1,
				ADX: 15 + float64(i%6), BBBw: 2 + float64(i%4)*0.2, EMASlope: float64(i%5) - 2, Trend: i%3 - 1,
			},
			Outcome: models.OutcomeStop,
			R:       -1,
		}
		if win {
			s.Score += 10
			s.Outcome, s.R = models.OutcomeTP1, s.RR
		}
		hist[i] = s
	}
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, internalrepo.NewFileStateStore(path, 0).Save(context.Background(), models.State{History: hist}))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrainWritesLoadableModel(t *testing.T) {
	state := writeHistory(t, 40)
	model := filepath.Join(t.TempDir(), "models", "meta.json")

	out, err := run(t, "train", "--state", state, "--out", model, "--iterations", "300", "--threshold", "0.55")
	require.NoError(t, err)

	var rep struct {
		Rows int    `json:"rows"`
		Out  string `json:"out"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 40, rep.Rows)
	assert.Equal(t, model, rep.Out)

	m, err := metamodel.NewLoader(model).Load()
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 0.55, m.ThresholdOrDefault())
}

func TestTrainSinceLeavesTooFewRows(t *testing.T) {
	state := writeHistory(t, 40)
	_, err := run(t, "train", "--state", state, "--out", filepath.Join(t.TempDir(), "m.json"),
		"--since", t0.Add(35*time.Hour).Format(time.RFC3339))
	assert.ErrorIs(t, err, metamodel.ErrNotEnoughRows)
}

func TestEvaluatePrintsStreams(t *testing.T) {
	state := writeHistory(t, 12)
	out, err := run(t, "evaluate", "--state", state)
	require.NoError(t, err)

	var byStream map[string]models.PerformanceSummary
	require.NoError(t, json.Unmarshal([]byte(out), &byStream))
	require.Len(t, byStream, 1)
	for _, s := range byStream {
		assert.Equal(t, 12, s.Total)
	}
}

func TestReadCandlesMissingFile(t *testing.T) {
	cs, err := readCandles(filepath.Join(t.TempDir(), "BTCUSDT_15m.json"))
	require.NoError(t, err)
	assert.Empty(t, cs)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = readCandles(bad)
	assert.Error(t, err)
}
