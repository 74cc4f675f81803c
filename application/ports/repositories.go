package ports

import (
	"context"

	"linkgraph/domain/core/entities"
	"linkgraph/domain/events"
)

// EntityLinkQuery narrows a findByEntity lookup.
type EntityLinkQuery struct {
	Kinds           []entities.LinkKind
	IncludeInactive bool
	Direction       entities.Direction // empty means both
}

// LinkCriteria is a tenant-scoped filter for findByCriteria. Zero-valued fields match anything.
type LinkCriteria struct {
	TenantID string
	FromType entities.EntityType
	ToType   entities.EntityType
	Kind     entities.LinkKind
	Active   *bool
	Limit    int
}

// LinkRepository is the sole gateway to durable link storage.
// Lookups return nil or empty results for "not found"; errors are reserved for
// transport and storage failures.
type LinkRepository interface {
	// Create persists a new link
	Create(ctx context.Context, link *entities.EntityLink) error

	// Update applies patch to the link and returns the stored result, or nil when absent
	Update(ctx context.Context, id, tenantID string, patch entities.LinkPatch) (*entities.EntityLink, error)

	// Delete removes a link permanently
	Delete(ctx context.Context, id, tenantID string) error

	// FindByID retrieves a link, active or not
	FindByID(ctx context.Context, id, tenantID string) (*entities.EntityLink, error)

	// FindByEntity lists links touching ref with endpoint display data
	FindByEntity(ctx context.Context, ref entities.EntityRef, query EntityLinkQuery) ([]*entities.EntityLinkWithDetails, error)

	// FindByCriteria lists links matching criteria
	FindByCriteria(ctx context.Context, criteria LinkCriteria) ([]*entities.EntityLink, error)

	// LinkExists reports whether an active (from, to, kind) link exists
	LinkExists(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error)

	// CreateMany persists several links
	CreateMany(ctx context.Context, links []*entities.EntityLink) error

	// DeleteMany removes links permanently and returns how many were removed
	DeleteMany(ctx context.Context, ids []string, tenantID string) (int, error)
}

// EntitySummaryStore is implemented by repositories that keep endpoint display data.
type EntitySummaryStore interface {
	UpsertEntitySummary(ctx context.Context, tenantID string, summary entities.EntitySummary) error
}

// EntityExistenceChecker reports whether a referenced business record exists.
type EntityExistenceChecker interface {
	EntityExists(ctx context.Context, ref entities.EntityRef) (bool, error)
}

// PermissionChecker decides whether the caller in ctx may create the link.
type PermissionChecker interface {
	HasLinkPermission(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error)
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// RateLimiter throttles writes per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Cache defines the interface for caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL in seconds
	Set(ctx context.Context, key string, value interface{}, ttl int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from cache
	Clear(ctx context.Context) error
}
