//go:build wireinject
// +build wireinject

package di

import (
	"FinSignal/pkg/config"
	"FinSignal/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideBreakers,

		// Repositories
		ProvideBinanceSource,
		ProvideCandleSource,
		ProvideStateStore,
		ProvideNotifier,

		// Engine
		ProvideGenerator,
		ProvideHistory,
		ProvideModelLoader,
		ProvideWorker,
		ProvidePerformance,
		ProvidePlanner,

		// Transport
		ProvideHub,
		ProvideEngineStatus,
		ProvideEngineHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
