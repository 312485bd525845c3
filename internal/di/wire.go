//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"AnomalyReplay/pkg/config"
	"AnomalyReplay/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideRedisCache,
		ProvideClickHouseClient,

		// Repositories
		ProvideDataset,
		ProvideSessionStore,
		ProvideAlertStore,

		// Playback
		ProvideSession,
		ProvideHub,
		ProvidePipeline,
		ProvideDriver,
		ProvideControlConsumer,

		// HTTP
		ProvideChartRenderer,
		ProvideLimiter,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
