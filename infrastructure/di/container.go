package di

import (
	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/application/services"
	domainconfig "linkgraph/domain/config"
	"linkgraph/infrastructure/config"
	"linkgraph/pkg/extensions"
	"linkgraph/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config           *config.Config
	DomainConfig     *domainconfig.DomainConfig
	Logger           *zap.Logger
	Repository       ports.LinkRepository
	Cache            ports.Cache
	Publisher        ports.EventPublisher
	Existence        *ports.ExistenceRouter
	Hooks            *extensions.HookManager
	Metrics          *observability.Metrics
	MetricsPublisher *observability.CloudWatchPublisher
	Tracer           *observability.Tracer
	LinkService      *services.LinkService
}
