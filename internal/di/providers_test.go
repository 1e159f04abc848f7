package di

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalrepo "FinSignal/internal/repository"
	"FinSignal/pkg/cache"
	"FinSignal/pkg/config"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.State.Path = filepath.Join(t.TempDir(), "state.json")
	cfg.Metrics.Enabled = false
	return cfg
}

func TestProvideCandleSource(t *testing.T) {
	cfg := testConfig(t)
	l := applogger.Nop()
	breakers := ProvideBreakers(cfg, l)

	src, err := ProvideCandleSource(cfg, l, ProvideBinanceSource(cfg), nil, cache.NewMemoryCache(), breakers, metrics.Nop{})
	require.NoError(t, err)
	assert.IsType(t, &internalrepo.FailoverCandleSource{}, src)
	assert.Equal(t, "binance", src.Name())

	cfg.Sources.Fallback = "clickhouse"
	_, err = ProvideCandleSource(cfg, l, ProvideBinanceSource(cfg), nil, nil, breakers, metrics.Nop{})
	assert.Error(t, err, "clickhouse fallback without a client")
}

func TestProvideStateStoreAndCache(t *testing.T) {
	cfg := testConfig(t)

	store, err := ProvideStateStore(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &internalrepo.FileStateStore{}, store)

	cfg.State.Backend = "redis"
	_, err = ProvideStateStore(cfg, nil)
	assert.Error(t, err)

	assert.Nil(t, ProvideRedisClient(testConfig(t)))
	assert.IsType(t, &cache.MemoryCache{}, ProvideCache(cfg, nil))

	cfg.Cache.Enabled = false
	assert.Nil(t, ProvideCache(cfg, nil))
}

func TestProvideEngineStatus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.Fallback = "clickhouse"
	cfg.Engine.DynamicGate.Enabled = true

	st := ProvideEngineStatus(cfg)
	assert.Equal(t, []string{"binance", "clickhouse"}, st.Sources)
	assert.Equal(t, "dynamic", st.GateMode)
	assert.Equal(t, "1m0s", st.Interval)
	assert.Equal(t, cfg.Engine.MetaModel.Path, st.MetaModel)
}

func TestInitializeApp(t *testing.T) {
	app, err := InitializeApp(testConfig(t))
	require.NoError(t, err)
	assert.NotNil(t, app)
}
