package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/application/services"
	domainconfig "linkgraph/domain/config"
	"linkgraph/domain/core/rules"
	"linkgraph/domain/core/validators"
	"linkgraph/infrastructure/cache"
	"linkgraph/infrastructure/config"
	"linkgraph/infrastructure/messaging/eventbridge"
	"linkgraph/infrastructure/persistence/decorators"
	"linkgraph/infrastructure/persistence/dynamodb"
	"linkgraph/infrastructure/persistence/memory"
	"linkgraph/infrastructure/persistence/sqlstore"
	"linkgraph/pkg/extensions"
	"linkgraph/pkg/observability"
	"linkgraph/pkg/ratelimit"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		zcfg.Level = level
	}

	return zcfg.Build()
}

// ProvideDomainConfig selects the business bounds for the environment.
func ProvideDomainConfig(cfg *config.Config) (*domainconfig.DomainConfig, error) {
	dc := domainconfig.LoadDomainConfig(cfg.Environment)
	if err := dc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid domain config: %w", err)
	}
	return dc, nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideMetrics creates the metrics registry, or nil when metrics are disabled.
func ProvideMetrics(cfg *config.Config) *observability.Metrics {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewMetrics(cfg.MetricsNamespace)
}

// ProvideMetricsPublisher creates the CloudWatch exporter, or nil when it is not configured.
func ProvideMetricsPublisher(cfg *config.Config, client *awscloudwatch.Client, metrics *observability.Metrics, logger *zap.Logger) *observability.CloudWatchPublisher {
	if !cfg.PublishToCloudWatch || metrics == nil {
		return nil
	}
	namespace := fmt.Sprintf("LinkGraph/%s", cfg.Environment)
	return observability.NewCloudWatchPublisher(client, metrics.Registry(), namespace, logger)
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("linkgraph", cfg.EnableTracing)
}

// ProvideLinkRepository opens the configured storage backend and guards it
// with a circuit breaker.
func ProvideLinkRepository(
	ctx context.Context,
	cfg *config.Config,
	client *awsdynamodb.Client,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (ports.LinkRepository, func(), error) {
	var (
		repo    ports.LinkRepository
		cleanup = func() {}
	)

	switch cfg.Storage {
	case config.StorageMemory:
		repo = memory.NewLinkRepository()
	case config.StorageSQLite, config.StoragePostgres:
		dialect, err := sqlstore.ParseDialect(cfg.Storage)
		if err != nil {
			return nil, nil, err
		}
		sqlRepo, err := sqlstore.Open(ctx, dialect, cfg.SQLDSN, logger)
		if err != nil {
			return nil, nil, err
		}
		repo = sqlRepo
		cleanup = func() {
			if err := sqlRepo.Close(); err != nil {
				logger.Warn("Failed to close database", zap.Error(err))
			}
		}
	case config.StorageDynamoDB:
		repo = dynamodb.NewLinkRepository(client, cfg.DynamoDBTable, logger).
			WithIndexNames(cfg.IndexName, cfg.GSI2IndexName)
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}

	logger.Info("Link storage ready", zap.String("backend", cfg.Storage))

	if !cfg.EnableCircuitBreaker {
		return repo, cleanup, nil
	}
	breaker := decorators.DefaultBreakerConfig("link-repository")
	breaker.MinRequests = cfg.BreakerMinRequests
	breaker.Timeout = cfg.BreakerOpenTimeout
	return decorators.NewResilientRepository(repo, breaker, metrics, logger), cleanup, nil
}

// ProvideCache creates the configured read cache.
func ProvideCache(cfg *config.Config, logger *zap.Logger) (ports.Cache, func(), error) {
	switch cfg.Cache {
	case config.CacheNone:
		return cache.NewNoopCache(), func() {}, nil
	case config.CacheBadger:
		bc, err := cache.NewBadgerCache(cache.BadgerConfig{
			Path:     cfg.BadgerDir,
			InMemory: cfg.BadgerDir == "",
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return bc, func() {
			if err := bc.Close(); err != nil {
				logger.Warn("Failed to close badger cache", zap.Error(err))
			}
		}, nil
	default:
		mc := cache.NewMemoryCache(cfg.CacheSweepEvery)
		return mc, func() { _ = mc.Close() }, nil
	}
}

// ProvideEventPublisher publishes to EventBridge when a bus is configured and
// to the log otherwise.
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		return eventbridge.NewLogPublisher(logger)
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, cfg.EventSource, logger)
}

// ProvideRateLimiter creates the per-tenant write limiter. The distributed
// limiter shares its counters with every instance through the link table.
func ProvideRateLimiter(cfg *config.Config, client *awsdynamodb.Client) ports.RateLimiter {
	switch {
	case cfg.WriteRatePerSecond <= 0:
		return ratelimit.Unlimited{}
	case cfg.DistributedRateLimit:
		return ratelimit.NewWindowLimiter(client, cfg.DynamoDBTable, cfg.WriteRatePerSecond, cfg.RateLimitWindow)
	default:
		return ratelimit.NewKeyedLimiter(cfg.WriteRatePerSecond, cfg.WriteBurst, 0)
	}
}

// ProvideHookManager creates an empty hook manager for callers to register on.
func ProvideHookManager() *extensions.HookManager {
	return extensions.NewHookManager()
}

// ProvideRuleRegistry returns the built-in rule table.
func ProvideRuleRegistry() *rules.Registry {
	return rules.DefaultRegistry()
}

// ProvideExistenceRouter treats every entity as existing until checkers are registered.
func ProvideExistenceRouter() *ports.ExistenceRouter {
	return ports.NewExistenceRouter(nil)
}

// ProvidePermissionChecker allows every link; authorization happens upstream.
func ProvidePermissionChecker() ports.PermissionChecker {
	return ports.AllowAllPermissions
}

// ProvideLinkValidator creates the validator. The service installs itself as
// the cycle checker.
func ProvideLinkValidator(registry *rules.Registry, existence *ports.ExistenceRouter, permissions ports.PermissionChecker) *validators.LinkValidator {
	return validators.NewLinkValidator(registry, existence, permissions, nil)
}

// ProvideLinkService creates the link service
func ProvideLinkService(
	repo ports.LinkRepository,
	validator *validators.LinkValidator,
	linkCache ports.Cache,
	domainCfg *domainconfig.DomainConfig,
	publisher ports.EventPublisher,
	hooks *extensions.HookManager,
	limiter ports.RateLimiter,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	logger *zap.Logger,
) *services.LinkService {
	return services.NewLinkService(repo, validator, linkCache, domainCfg, logger,
		services.WithEventPublisher(publisher),
		services.WithHooks(hooks),
		services.WithRateLimiter(limiter),
		services.WithMetrics(metrics),
		services.WithTracer(tracer),
	)
}
