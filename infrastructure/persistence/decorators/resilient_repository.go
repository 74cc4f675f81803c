package decorators

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/domain/core/entities"
	pkgerrors "linkgraph/pkg/errors"
	"linkgraph/pkg/observability"
)

// BreakerConfig holds configuration for the storage circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the default configuration
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// ResilientRepository guards a LinkRepository with a circuit breaker and
// records call latency.
type ResilientRepository struct {
	inner   ports.LinkRepository
	cb      *gobreaker.CircuitBreaker
	metrics *observability.Metrics
	logger  *zap.Logger
}

var _ ports.LinkRepository = (*ResilientRepository)(nil)

// NewResilientRepository wraps inner.
func NewResilientRepository(inner ports.LinkRepository, cfg BreakerConfig, metrics *observability.Metrics, logger *zap.Logger) *ResilientRepository {
	logger = logger.Named("repository_breaker")
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about storage health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &ResilientRepository{inner: inner, cb: cb, metrics: metrics, logger: logger}
}

// State exposes the breaker state.
func (r *ResilientRepository) State() gobreaker.State {
	return r.cb.State()
}

func (r *ResilientRepository) call(operation string, fn func() (interface{}, error)) (interface{}, error) {
	started := time.Now()
	out, err := r.cb.Execute(fn)
	r.metrics.ObserveRepository(operation, started, err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		r.logger.Warn("Repository call rejected", zap.String("operation", operation), zap.Error(err))
		return nil, pkgerrors.NewValidationFailed("link storage temporarily unavailable").
			WithCause(err).
			WithRetryable(true)
	}
	return out, err
}

func (r *ResilientRepository) Create(ctx context.Context, link *entities.EntityLink) error {
	_, err := r.call("create", func() (interface{}, error) {
		return nil, r.inner.Create(ctx, link)
	})
	return err
}

func (r *ResilientRepository) Update(ctx context.Context, id, tenantID string, patch entities.LinkPatch) (*entities.EntityLink, error) {
	out, err := r.call("update", func() (interface{}, error) {
		return r.inner.Update(ctx, id, tenantID, patch)
	})
	link, _ := out.(*entities.EntityLink)
	return link, err
}

func (r *ResilientRepository) Delete(ctx context.Context, id, tenantID string) error {
	_, err := r.call("delete", func() (interface{}, error) {
		return nil, r.inner.Delete(ctx, id, tenantID)
	})
	return err
}

func (r *ResilientRepository) FindByID(ctx context.Context, id, tenantID string) (*entities.EntityLink, error) {
	out, err := r.call("find_by_id", func() (interface{}, error) {
		return r.inner.FindByID(ctx, id, tenantID)
	})
	link, _ := out.(*entities.EntityLink)
	return link, err
}

func (r *ResilientRepository) FindByEntity(ctx context.Context, ref entities.EntityRef, query ports.EntityLinkQuery) ([]*entities.EntityLinkWithDetails, error) {
	out, err := r.call("find_by_entity", func() (interface{}, error) {
		return r.inner.FindByEntity(ctx, ref, query)
	})
	links, _ := out.([]*entities.EntityLinkWithDetails)
	return links, err
}

func (r *ResilientRepository) FindByCriteria(ctx context.Context, criteria ports.LinkCriteria) ([]*entities.EntityLink, error) {
	out, err := r.call("find_by_criteria", func() (interface{}, error) {
		return r.inner.FindByCriteria(ctx, criteria)
	})
	links, _ := out.([]*entities.EntityLink)
	return links, err
}

func (r *ResilientRepository) LinkExists(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error) {
	out, err := r.call("link_exists", func() (interface{}, error) {
		return r.inner.LinkExists(ctx, from, to, kind)
	})
	exists, _ := out.(bool)
	return exists, err
}

func (r *ResilientRepository) CreateMany(ctx context.Context, links []*entities.EntityLink) error {
	_, err := r.call("create_many", func() (interface{}, error) {
		return nil, r.inner.CreateMany(ctx, links)
	})
	return err
}

func (r *ResilientRepository) DeleteMany(ctx context.Context, ids []string, tenantID string) (int, error) {
	out, err := r.call("delete_many", func() (interface{}, error) {
		return r.inner.DeleteMany(ctx, ids, tenantID)
	})
	n, _ := out.(int)
	return n, err
}

// UpsertEntitySummary forwards to the wrapped store when it keeps summaries.
func (r *ResilientRepository) UpsertEntitySummary(ctx context.Context, tenantID string, summary entities.EntitySummary) error {
	store, ok := r.inner.(ports.EntitySummaryStore)
	if !ok {
		return nil
	}
	_, err := r.call("upsert_summary", func() (interface{}, error) {
		return nil, store.UpsertEntitySummary(ctx, tenantID, summary)
	})
	return err
}
