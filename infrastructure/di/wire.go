//go:build wireinject
// +build wireinject

package di

import (
	"context"

	appconfig "stratus-backend/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideStore,
	ProvidePublisher,
	ProvideSource,
	ProvideAgents,
	ProvideDispatcher,
	ProvideScheduler,
	ProvideReadService,
	ProvideCollector,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *appconfig.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
