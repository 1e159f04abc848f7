package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/handler/api"
	"FinSignal/internal/handler/ws"
	mid "FinSignal/internal/middleware"
	internalrepo "FinSignal/internal/repository"
	"FinSignal/internal/service/breaker"
	"FinSignal/internal/service/ratelimit"
	"FinSignal/internal/services/history"
	"FinSignal/internal/services/metamodel"
	"FinSignal/internal/services/signals"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/cache"
	pkgch "FinSignal/pkg/clickhouse"
	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
	pkgkafka "FinSignal/pkg/kafka"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
	"FinSignal/pkg/server"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideRedisClient returns the shared client, or nil when neither the
// cache nor the state store uses redis.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !(cfg.Cache.Enabled && cfg.Cache.Redis.Enabled) && cfg.State.Backend != "redis" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
}

// ProvideCache returns the candle cache: memory, or memory over redis.
// It is nil when caching is disabled.
func ProvideCache(cfg *config.Config, rc *redis.Client) cache.Service {
	if !cfg.Cache.Enabled {
		return nil
	}
	mem := cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize)
	if cfg.Cache.Redis.Enabled && rc != nil {
		return cache.NewLayeredCache(cache.NewRedisCacheFromClient(rc, cfg.Cache.Redis.Prefix), mem)
	}
	return cache.NewMemoryCache(mem)
}

// ProvideBreakers creates the per-source circuit breakers.
func ProvideBreakers(cfg *config.Config, l *applogger.Logger) *breaker.Set {
	bc := breaker.Config{
		FailureThreshold: cfg.Sources.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Sources.Breaker.OpenTimeout,
		Interval:         cfg.Sources.Breaker.Interval,
	}
	return breaker.NewSet(bc, func(name, from, to string) {
		l.Warn("breaker state change",
			applogger.String("source", name),
			applogger.String("from", from),
			applogger.String("to", to),
		)
	})
}

// ProvideBinanceSource creates the rate limited Binance klines source.
func ProvideBinanceSource(cfg *config.Config) *internalrepo.BinanceCandleSource {
	client := xhttp.NewClient(
		xhttp.WithBaseURL(cfg.Sources.Binance.BaseURL),
		xhttp.WithTimeout(cfg.Sources.Binance.Timeout),
	)
	limiter := ratelimit.New(cfg.Sources.Binance.RateLimit, cfg.Sources.Binance.Burst)
	return internalrepo.NewBinanceCandleSource(client, limiter)
}

// ProvideClickHouseClient connects only when a source names clickhouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Sources.Primary != "clickhouse" && cfg.Sources.Fallback != "clickhouse" {
		return nil, nil
	}
	ch := cfg.Sources.ClickHouse
	ctx, cancel := context.WithTimeout(context.Background(), ch.DialTimeout+5*time.Second)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(ch.UseHTTP),
		pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideCandleSource composes primary and fallback: each source is cached,
// then guarded by its breaker, then tried in order.
func ProvideCandleSource(
	cfg *config.Config,
	l *applogger.Logger,
	bin *internalrepo.BinanceCandleSource,
	ch *pkgch.Client,
	c cache.Service,
	breakers *breaker.Set,
	m repository.Metrics,
) (repository.CandleSource, error) {
	named := func(name string) (repository.CandleSource, error) {
		var src repository.CandleSource
		switch name {
		case "binance":
			src = bin
		case "clickhouse":
			if ch == nil {
				return nil, fmt.Errorf("clickhouse source requires a client")
			}
			src = internalrepo.NewClickHouseCandleSource(ch, cfg.Sources.ClickHouse.TablePrefix, l)
		default:
			return nil, fmt.Errorf("unknown candle source %q", name)
		}
		src = internalrepo.NewBreakerCandleSource(src, breakers, m)
		if c != nil {
			src = internalrepo.NewCachedCandleSource(src, c)
		}
		return src, nil
	}

	primary, err := named(cfg.Sources.Primary)
	if err != nil {
		return nil, err
	}
	sources := []repository.CandleSource{primary}
	if cfg.Sources.Fallback != "" {
		fallback, err := named(cfg.Sources.Fallback)
		if err != nil {
			return nil, err
		}
		sources = append(sources, fallback)
	}
	return internalrepo.NewFailoverCandleSource(l, sources...), nil
}

// ProvideStateStore selects the file or redis state backend.
func ProvideStateStore(cfg *config.Config, rc *redis.Client) (repository.StateStore, error) {
	switch cfg.State.Backend {
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("redis state backend requires a redis client")
		}
		return internalrepo.NewRedisStateStore(rc, cfg.State.RedisKey, cfg.Worker.HistoryMax), nil
	default:
		return internalrepo.NewFileStateStore(cfg.State.Path, cfg.Worker.HistoryMax), nil
	}
}

// ProvideNotifier publishes alerts to Kafka when enabled, else logs them.
// Delivery goes through the throttling and retry pipeline.
func ProvideNotifier(cfg *config.Config, l *applogger.Logger, m repository.Metrics) (repository.Notifier, error) {
	var next repository.Notifier
	k := cfg.Notify.Kafka
	if k.Enabled {
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(k.Brokers),
			pkgkafka.WithTopic(k.Topic),
			pkgkafka.WithRequiredAcks(k.RequiredAcks),
			pkgkafka.WithCompression(k.Compression),
			pkgkafka.WithMaxAttempts(k.MaxAttempts),
			pkgkafka.WithWriteTimeout(k.WriteTimeout),
			pkgkafka.WithAsync(k.Async),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		next = internalrepo.NewKafkaNotifier(producer)
	} else {
		next = internalrepo.NewLogNotifier(l)
	}
	return mid.NewAlertPipeline(next, m,
		mid.WithMaxPerMinute(cfg.Notify.MaxPerMin),
		mid.WithBufferSize(cfg.Notify.BufferSize),
		mid.WithPipelineLogger(l.With(applogger.String("component", "alerts"))),
	), nil
}

func ProvideGenerator(cfg *config.Config) *signals.Generator {
	return signals.New(cfg.Engine.Signals, cfg.Engine.Gate, cfg.Engine.DynamicGate)
}

func ProvideHistory(cfg *config.Config) *history.History {
	return history.New(cfg.Worker.HistoryMax)
}

// ProvideModelLoader returns nil when the meta filter is disabled.
func ProvideModelLoader(cfg *config.Config) *metamodel.Loader {
	if !cfg.Engine.MetaModel.Enabled {
		return nil
	}
	return metamodel.NewLoader(cfg.Engine.MetaModel.Path)
}

// ProvideWorker creates the orchestration worker.
func ProvideWorker(
	cfg *config.Config,
	l *applogger.Logger,
	src repository.CandleSource,
	store repository.StateStore,
	notifier repository.Notifier,
	m repository.Metrics,
	gen *signals.Generator,
	hist *history.History,
	loader *metamodel.Loader,
) *usecase.Worker {
	wc := usecase.WorkerConfig{
		Symbols:          cfg.Worker.Symbols,
		Timeframes:       cfg.Worker.Timeframes,
		References:       cfg.Worker.References,
		Limit:            cfg.Worker.Limit,
		FetchConcurrency: cfg.Worker.FetchConcurrency,
		SnapshotLimit:    cfg.Worker.SnapshotLimit,
		UnitTimeout:      cfg.Worker.UnitTimeout,
		GateMode:         cfg.GateMode(),
	}
	deps := usecase.WorkerDeps{
		Source:    src,
		Store:     store,
		Notifier:  notifier,
		Metrics:   m,
		Generator: gen,
		History:   hist,
		Loader:    loader,
		Logger:    l,
	}
	return usecase.NewWorker(wc, deps, cfg.Engine.Evaluation, cfg.Engine.AutoMute)
}

func ProvidePerformance(w *usecase.Worker) *usecase.Performance {
	return usecase.NewPerformance(w)
}

func ProvidePlanner(cfg *config.Config, w *usecase.Worker, src repository.CandleSource) *usecase.Planner {
	return usecase.NewPlanner(w, src, cfg.Engine.TradePlan, cfg.Worker.Limit)
}

// ProvideHub creates the websocket hub and subscribes it to the worker.
func ProvideHub(l *applogger.Logger, w *usecase.Worker) *ws.Hub {
	hub := ws.NewHub(l.With(applogger.String("component", "ws")), w.Snapshot)
	w.OnSnapshot(hub.Broadcast)
	return hub
}

// ProvideEngineStatus echoes the static configuration.
func ProvideEngineStatus(cfg *config.Config) models.EngineStatus {
	sources := []string{cfg.Sources.Primary}
	if cfg.Sources.Fallback != "" {
		sources = append(sources, cfg.Sources.Fallback)
	}
	st := models.EngineStatus{
		Environment: cfg.Environment,
		Symbols:     cfg.Worker.Symbols,
		Timeframes:  cfg.Worker.Timeframes,
		References:  cfg.Worker.References,
		Interval:    cfg.Worker.Interval.String(),
		Limit:       cfg.Worker.Limit,
		GateMode:    cfg.GateMode(),
		Sources:     sources,
		AutoMute:    cfg.Engine.AutoMute.Enabled,
		TrendMode:   cfg.Engine.Signals.TrendMode.Enabled,
		Squeeze:     cfg.Engine.Signals.Squeeze.Enabled,
	}
	if cfg.Engine.MetaModel.Enabled {
		st.MetaModel = cfg.Engine.MetaModel.Path
	}
	return st
}

func ProvideEngineHandler(
	cfg *config.Config,
	l *applogger.Logger,
	w *usecase.Worker,
	perf *usecase.Performance,
	planner *usecase.Planner,
	status models.EngineStatus,
) *api.EngineHandler {
	limiter := ratelimit.PerMinute(cfg.Server.RefreshPerMin, 1)
	return api.NewEngineHandler(l.With(applogger.String("component", "api")), w, perf, planner, status, limiter)
}

// ProvideHTTPServer creates the echo server with every route group.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, eh *api.EngineHandler, hub *ws.Hub) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{eh, hub},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true, cfg.Server.AllowOrigins...),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(l),
	)
}

// ProvideApp creates the application server. Resources close in reverse
// dependency order.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	w *usecase.Worker,
	srv *xhttp.Server,
	hub *ws.Hub,
	notifier repository.Notifier,
	c cache.Service,
	ch *pkgch.Client,
	rc *redis.Client,
) *server.App {
	closers := []server.Closer{
		{Name: "ws", Close: func() error { return hub.Close(context.Background()) }},
		{Name: "notifier", Close: notifier.Close},
	}
	if c != nil {
		closers = append(closers, server.Closer{Name: "cache", Close: c.Close})
	}
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	if rc != nil && (c == nil || !cfg.Cache.Redis.Enabled) {
		closers = append(closers, server.Closer{Name: "redis", Close: rc.Close})
	}
	loop := server.LoopConfig{Interval: cfg.Worker.Interval, RunOnStart: cfg.Worker.RunOnStart}
	return server.New(loop, l, w, srv, closers...)
}
