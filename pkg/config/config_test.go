package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, []string{"1h", "4h"}, c.Worker.References)
	assert.Equal(t, 3, c.Worker.FetchConcurrency)
	assert.Equal(t, 15*time.Minute, c.Engine.Signals.DedupeWindow)
	assert.Equal(t, 240, c.Engine.TradePlan.MaxHoldBars)
	assert.Equal(t, 2000, c.Engine.Training.Iterations)
	assert.Equal(t, "static", c.GateMode())
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
worker:
  symbols: [SOLUSDT]
  interval: 30s
engine:
  gate:
    min_rr: 2.5
  dynamic_gate:
    enabled: true
  automute:
    enabled: false
`))
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, []string{"SOLUSDT"}, c.Worker.Symbols)
	assert.Equal(t, 30*time.Second, c.Worker.Interval)
	assert.Equal(t, 2.5, c.Engine.Gate.MinRR)
	assert.Equal(t, 1.2, c.Engine.Gate.MaxStopPct, "untouched keys keep defaults")
	assert.False(t, c.Engine.AutoMute.Enabled)
	assert.Equal(t, "dynamic", c.GateMode())
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"timeframe": "worker:\n  timeframes: [7m]\n",
		"atr range": "engine:\n  gate:\n    atr_pct_min: 5\n    atr_pct_max: 1\n",
		"backend":   "state:\n  backend: s3\n",
		"refs":      "worker:\n  references: [1h]\n",
		"fallback":  "sources:\n  primary: binance\n  fallback: binance\n",
		"yaml":      "worker: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: test\n"), 0o644))
	t.Setenv("SYMBOLS", "BTCUSDT, ADAUSDT")
	t.Setenv("STATE_PATH", "/tmp/state.json")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ADAUSDT"}, c.Worker.Symbols)
	assert.Equal(t, "/tmp/state.json", c.State.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}
