//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"linkgraph/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainConfig,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideMetrics,
	ProvideMetricsPublisher,
	ProvideTracer,
	ProvideLinkRepository,
	ProvideCache,
	ProvideEventPublisher,
	ProvideRateLimiter,
	ProvideHookManager,
	ProvideRuleRegistry,
	ProvideExistenceRouter,
	ProvidePermissionChecker,
	ProvideLinkValidator,
	ProvideLinkService,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The returned cleanup
// closes storage and cache handles.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
