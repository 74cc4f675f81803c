package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/domain/config"
	"linkgraph/domain/core/entities"
	"linkgraph/domain/core/validators"
	"linkgraph/domain/core/valueobjects"
	"linkgraph/domain/events"
	"linkgraph/pkg/common"
	pkgerrors "linkgraph/pkg/errors"
	"linkgraph/pkg/extensions"
	"linkgraph/pkg/observability"
	"linkgraph/pkg/utils"
)

// CreateLinkOptions configures CreateLink.
type CreateLinkOptions struct {
	Note     string
	Metadata map[string]interface{}
	// UserID is recorded as createdBy; the context user is used when empty.
	UserID          string
	AllowDuplicates bool
	SkipValidation  bool
	Validation      validators.Options
}

// EntityLinksOptions narrows GetEntityLinks.
type EntityLinksOptions struct {
	Kinds           []entities.LinkKind
	IncludeInactive bool
	Direction       entities.Direction // empty means both
}

// FindOptions configures FindLinks.
type FindOptions struct {
	IncludeInactive bool
	Limit           int
}

// LinkService is the public API of the link subsystem. It orchestrates the
// validator and the repository and owns the read cache.
type LinkService struct {
	repo      ports.LinkRepository
	validator *validators.LinkValidator
	cache     ports.Cache
	config    *config.DomainConfig
	logger    *zap.Logger

	publisher ports.EventPublisher
	hooks     *extensions.HookManager
	limiter   ports.RateLimiter
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	now       utils.Clock

	indexMu    sync.Mutex
	keyIndex   map[string]map[string]struct{} // entity -> query cache keys
	inflight   map[string]int
	generation map[string]uint64
}

// Option configures optional LinkService collaborators.
type Option func(*LinkService)

// WithEventPublisher publishes link events after successful writes.
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(s *LinkService) { s.publisher = p }
}

// WithHooks runs lifecycle hooks.
func WithHooks(h *extensions.HookManager) Option {
	return func(s *LinkService) { s.hooks = h }
}

// WithRateLimiter throttles writes per tenant.
func WithRateLimiter(l ports.RateLimiter) Option {
	return func(s *LinkService) { s.limiter = l }
}

// WithMetrics records prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *LinkService) { s.metrics = m }
}

// WithTracer wraps operations in X-Ray subsegments.
func WithTracer(t *observability.Tracer) Option {
	return func(s *LinkService) { s.tracer = t }
}

// WithClock replaces the time source.
func WithClock(c utils.Clock) Option {
	return func(s *LinkService) { s.now = c }
}

// NewLinkService creates the service and installs it as the validator's cycle checker.
func NewLinkService(
	repo ports.LinkRepository,
	validator *validators.LinkValidator,
	cache ports.Cache,
	cfg *config.DomainConfig,
	logger *zap.Logger,
	opts ...Option,
) *LinkService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if validator == nil {
		validator = validators.NewLinkValidator(nil, nil, nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &LinkService{
		repo:       repo,
		validator:  validator,
		cache:      cache,
		config:     cfg,
		logger:     logger.Named("link_service"),
		now:        utils.UTCNow,
		keyIndex:   make(map[string]map[string]struct{}),
		inflight:   make(map[string]int),
		generation: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	validator.SetCycleChecker(s)

	return s
}

// CreateLink validates and persists a new link from -> to.
func (s *LinkService) CreateLink(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind, opts CreateLinkOptions) (link *entities.EntityLink, err error) {
	ctx, end := s.tracer.Start(ctx, "CreateLink")
	defer func() { end(err) }()

	if err := s.throttle(ctx, from.TenantID); err != nil {
		return nil, err
	}
	if err := s.checkFields(&opts.Note, opts.Metadata); err != nil {
		return nil, err
	}

	if !opts.SkipValidation {
		result := s.validator.ValidateLink(ctx, from, to, kind, opts.Validation)
		if !result.Valid {
			return nil, s.rejected("create", result.Err())
		}
	}

	createdBy := opts.UserID
	if createdBy == "" {
		createdBy, _ = common.GetUserID(ctx)
	}

	if s.hooks.Has(extensions.HookBeforeLinkCreate) {
		err := s.hooks.Execute(ctx, extensions.HookBeforeLinkCreate, extensions.HookData{
			TenantID:  from.TenantID,
			Operation: "create",
			UserID:    createdBy,
			After:     entities.LinkRequest{From: from, To: to, Kind: kind, Note: opts.Note, Metadata: opts.Metadata},
		})
		if err != nil {
			return nil, s.rejected("create", pkgerrors.NewValidationFailed("link rejected by hook").
				WithDetail("reason", "hook").
				WithCause(err))
		}
	}

	if !opts.AllowDuplicates {
		if err := s.ensureUnique(ctx, from, to, kind); err != nil {
			return nil, err
		}
	}

	link = entities.NewEntityLink(valueobjects.NewLinkID().String(), from, to, kind, opts.Note, opts.Metadata, createdBy, s.now())
	if err := s.repo.Create(ctx, link); err != nil {
		s.logger.Error("Failed to create link",
			zap.String("tenantID", from.TenantID),
			zap.String("from", from.Key()),
			zap.String("to", to.Key()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return nil, pkgerrors.Wrap(err, "failed to create link")
	}

	s.afterWrite(ctx, link)
	s.storeLink(ctx, link)
	s.metrics.RecordLinkWrite("create", string(kind))

	s.logger.Info("Link created",
		zap.String("linkID", link.ID),
		zap.String("tenantID", link.TenantID),
		zap.String("from", from.Key()),
		zap.String("to", to.Key()),
		zap.String("kind", string(kind)),
	)

	s.publish(ctx, events.NewLinkCreated(link, link.CreatedAt))
	s.hooks.ExecuteAsync(ctx, extensions.HookAfterLinkCreate, extensions.HookData{
		TenantID:  link.TenantID,
		LinkID:    link.ID,
		Operation: "create",
		UserID:    createdBy,
		After:     link.Clone(),
	})

	return link.Clone(), nil
}

// UpdateLink applies patch to an existing link. A kind change, or reactivating a
// soft-deleted link, is validated like a new link.
func (s *LinkService) UpdateLink(ctx context.Context, id string, patch entities.LinkPatch, tenantID string) (updated *entities.EntityLink, err error) {
	ctx, end := s.tracer.Start(ctx, "UpdateLink")
	defer func() { end(err) }()

	if err := s.throttle(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(patch); err != nil {
		return nil, pkgerrors.NewValidationFailed(err.Error()).WithCause(err)
	}
	if err := s.checkFields(patch.Note, patch.Metadata); err != nil {
		return nil, err
	}
	if patch.Kind != nil && !patch.Kind.IsValid() {
		return nil, s.rejected("update", pkgerrors.NewInvalidLinkKind(fmt.Sprintf("unknown link kind %q", *patch.Kind)).
			WithDetail("kind", *patch.Kind))
	}

	existing, err := s.repo.FindByID(ctx, id, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load link")
	}
	if existing == nil {
		return nil, pkgerrors.NewEntityNotFound("link", id)
	}

	kind := existing.Kind
	if patch.Kind != nil {
		kind = *patch.Kind
	}
	kindChanged := kind != existing.Kind
	reactivating := patch.Active != nil && *patch.Active && !existing.Active

	if kindChanged || reactivating {
		result := s.validator.ValidateLink(ctx, existing.From(), existing.To(), kind, validators.Options{IgnoreLinkID: id})
		if !result.Valid {
			return nil, s.rejected("update", result.Err())
		}
		if err := s.ensureUnique(ctx, existing.From(), existing.To(), kind); err != nil {
			return nil, err
		}
	}

	updated, err = s.repo.Update(ctx, id, tenantID, patch)
	if err != nil {
		s.logger.Error("Failed to update link",
			zap.String("linkID", id),
			zap.String("tenantID", tenantID),
			zap.Error(err),
		)
		return nil, pkgerrors.Wrap(err, "failed to update link")
	}
	if updated == nil {
		return nil, pkgerrors.NewEntityNotFound("link", id)
	}

	s.afterWrite(ctx, updated)
	s.refreshLink(ctx, updated)
	s.metrics.RecordLinkWrite("update", string(updated.Kind))

	s.logger.Info("Link updated",
		zap.String("linkID", id),
		zap.String("tenantID", tenantID),
		zap.String("kind", string(updated.Kind)),
		zap.Bool("active", updated.Active),
	)

	s.publish(ctx, events.NewLinkUpdated(existing, updated, updated.UpdatedAt))
	s.hooks.ExecuteAsync(ctx, extensions.HookAfterLinkUpdate, extensions.HookData{
		TenantID:  tenantID,
		LinkID:    id,
		Operation: "update",
		Before:    existing,
		After:     updated.Clone(),
	})

	return updated.Clone(), nil
}

// DeleteLink removes a link. Soft deletion marks it inactive; hard deletion
// removes the record.
func (s *LinkService) DeleteLink(ctx context.Context, id, tenantID string, soft bool) (err error) {
	ctx, end := s.tracer.Start(ctx, "DeleteLink")
	defer func() { end(err) }()

	if err := s.throttle(ctx, tenantID); err != nil {
		return err
	}

	existing, err := s.repo.FindByID(ctx, id, tenantID)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to load link")
	}
	if existing == nil {
		return pkgerrors.NewEntityNotFound("link", id)
	}

	if soft {
		updated, err := s.repo.Update(ctx, id, tenantID, entities.LinkPatch{Active: boolPtr(false)})
		if err != nil {
			return pkgerrors.Wrap(err, "failed to deactivate link")
		}
		if updated == nil {
			return pkgerrors.NewEntityNotFound("link", id)
		}
	} else if err := s.repo.Delete(ctx, id, tenantID); err != nil {
		s.logger.Error("Failed to delete link",
			zap.String("linkID", id),
			zap.String("tenantID", tenantID),
			zap.Error(err),
		)
		return pkgerrors.Wrap(err, "failed to delete link")
	}

	s.afterWrite(ctx, existing)
	s.dropLink(ctx, tenantID, id)
	s.metrics.RecordLinkWrite(deleteOperation(soft), string(existing.Kind))

	s.logger.Info("Link deleted",
		zap.String("linkID", id),
		zap.String("tenantID", tenantID),
		zap.Bool("soft", soft),
	)

	s.publish(ctx, events.NewLinkDeleted(existing, soft, s.now()))
	s.hooks.ExecuteAsync(ctx, extensions.HookAfterLinkDelete, extensions.HookData{
		TenantID:  tenantID,
		LinkID:    id,
		Operation: deleteOperation(soft),
		Before:    existing,
	})

	return nil
}

// GetLink returns the link with id, or nil when it does not exist.
func (s *LinkService) GetLink(ctx context.Context, id, tenantID string) (link *entities.EntityLink, err error) {
	ctx, end := s.tracer.Start(ctx, "GetLink")
	defer func() { end(err) }()

	if id == "" || tenantID == "" {
		return nil, nil
	}

	key := linkCacheKey(tenantID, id)
	if cached, ok := s.cacheGet(ctx, key, tenantID); ok {
		if link, ok := cached.(*entities.EntityLink); ok {
			return link.Clone(), nil
		}
	}

	link, err = s.fetchLink(ctx, id, tenantID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get link")
	}
	if link == nil {
		return nil, nil
	}
	return link.Clone(), nil
}

// GetEntityLinks lists the links touching ref, reading through the cache.
func (s *LinkService) GetEntityLinks(ctx context.Context, ref entities.EntityRef, opts EntityLinksOptions) (links []*entities.EntityLinkWithDetails, err error) {
	ctx, end := s.tracer.Start(ctx, "GetEntityLinks")
	defer func() { end(err) }()

	if err := checkRef("entity", ref); err != nil {
		return nil, err
	}
	if opts.Direction != "" && !opts.Direction.IsValid() {
		return nil, pkgerrors.NewValidationFailed(fmt.Sprintf("unknown direction %q", opts.Direction))
	}

	key := entityLinksCacheKey(ref, s.entityVersion(ctx, ref), opts)
	if cached, ok := s.cacheGet(ctx, key, ref.TenantID); ok {
		if links, ok := cached.([]*entities.EntityLinkWithDetails); ok {
			return cloneDetails(links), nil
		}
	}

	links, err = s.fetchEntityLinks(ctx, ref, key, func() ([]*entities.EntityLinkWithDetails, error) {
		found, err := s.repo.FindByEntity(ctx, ref, ports.EntityLinkQuery{
			Kinds:           opts.Kinds,
			IncludeInactive: opts.IncludeInactive,
			Direction:       opts.Direction.OrDefault(entities.DirectionBoth),
		})
		if found == nil && err == nil {
			found = []*entities.EntityLinkWithDetails{}
		}
		return found, err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get entity links")
	}
	return cloneDetails(links), nil
}

// FindLinks queries links by endpoint types and kind. Results are not cached.
func (s *LinkService) FindLinks(ctx context.Context, fromType, toType entities.EntityType, kind entities.LinkKind, tenantID string, opts FindOptions) (links []*entities.EntityLink, err error) {
	ctx, end := s.tracer.Start(ctx, "FindLinks")
	defer func() { end(err) }()

	if tenantID == "" {
		return nil, pkgerrors.NewInvalidEntityType("tenantId", tenantID)
	}

	criteria := ports.LinkCriteria{
		TenantID: tenantID,
		FromType: fromType,
		ToType:   toType,
		Kind:     kind,
		Limit:    opts.Limit,
	}
	if !opts.IncludeInactive {
		criteria.Active = boolPtr(true)
	}

	links, err = s.repo.FindByCriteria(ctx, criteria)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to find links")
	}
	if links == nil {
		links = []*entities.EntityLink{}
	}
	return links, nil
}

// DeleteEntityLinks removes every link touching ref and returns how many were affected.
func (s *LinkService) DeleteEntityLinks(ctx context.Context, ref entities.EntityRef, soft bool) (count int, err error) {
	ctx, end := s.tracer.Start(ctx, "DeleteEntityLinks")
	defer func() { end(err) }()

	if err := checkRef("entity", ref); err != nil {
		return 0, err
	}

	links, err := s.repo.FindByEntity(ctx, ref, ports.EntityLinkQuery{
		IncludeInactive: !soft,
		Direction:       entities.DirectionBoth,
	})
	if err != nil {
		return 0, pkgerrors.Wrap(err, "failed to load entity links")
	}

	if soft {
		for _, link := range links {
			if err := ctx.Err(); err != nil {
				return count, pkgerrors.Wrap(err, "entity link purge interrupted")
			}
			updated, err := s.repo.Update(ctx, link.ID, ref.TenantID, entities.LinkPatch{Active: boolPtr(false)})
			if err != nil {
				s.invalidateEntity(ctx, ref)
				return count, pkgerrors.Wrap(err, "failed to deactivate entity link")
			}
			if updated != nil {
				count++
			}
		}
	} else if len(links) > 0 {
		ids := make([]string, 0, len(links))
		for _, link := range links {
			ids = append(ids, link.ID)
		}
		count, err = s.repo.DeleteMany(ctx, ids, ref.TenantID)
		if err != nil {
			s.invalidateEntity(ctx, ref)
			return 0, pkgerrors.Wrap(err, "failed to delete entity links")
		}
	}

	s.invalidateEntity(ctx, ref)
	for _, link := range links {
		s.invalidateEntity(ctx, link.Other(ref))
		s.dropLink(ctx, ref.TenantID, link.ID)
	}

	s.logger.Info("Entity links purged",
		zap.String("tenantID", ref.TenantID),
		zap.String("entity", ref.Key()),
		zap.Int("count", count),
		zap.Bool("soft", soft),
	)
	s.publish(ctx, events.NewEntityLinksPurged(ref, count, soft, s.now()))

	return count, nil
}

// Validator exposes the validator used by the service.
func (s *LinkService) Validator() *validators.LinkValidator {
	return s.validator
}

func (s *LinkService) ensureUnique(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) error {
	exists, err := s.repo.LinkExists(ctx, from, to, kind)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to check for duplicate link")
	}
	if exists {
		return s.rejected("create", pkgerrors.NewDuplicateLink(from.Key(), to.Key(), string(kind)))
	}
	return nil
}

func (s *LinkService) throttle(ctx context.Context, tenantID string) error {
	if s.limiter == nil {
		return nil
	}
	key := "tenant:" + tenantID
	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		// Limiter outages do not block writes.
		s.logger.Warn("Rate limiter failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if !allowed {
		return s.rejected("throttle", pkgerrors.NewRateLimitExceeded(key))
	}
	return nil
}

func (s *LinkService) checkFields(note *string, metadata map[string]interface{}) error {
	if note != nil && s.config.MaxNoteLength > 0 {
		if err := utils.ValidateVar("note", *note, fmt.Sprintf("max=%d", s.config.MaxNoteLength)); err != nil {
			return pkgerrors.NewValidationFailed(err.Error()).
				WithDetail("field", "note").
				WithDetail("max", s.config.MaxNoteLength)
		}
	}
	if s.config.MaxMetadataKeys > 0 && len(metadata) > s.config.MaxMetadataKeys {
		return pkgerrors.NewValidationFailed(fmt.Sprintf("metadata may hold at most %d keys", s.config.MaxMetadataKeys)).
			WithDetail("field", "metadata").
			WithDetail("max", s.config.MaxMetadataKeys)
	}
	return nil
}

// rejected records a validation failure and returns err unchanged.
func (s *LinkService) rejected(operation string, err error) error {
	code := pkgerrors.CodeOf(err)
	s.metrics.RecordValidationFailure(string(code))
	s.logger.Debug("Link write rejected",
		zap.String("operation", operation),
		zap.String("code", string(code)),
		zap.Error(err),
	)
	return err
}

func (s *LinkService) publish(ctx context.Context, evs ...events.DomainEvent) {
	if s.publisher == nil || len(evs) == 0 {
		return
	}
	var err error
	if len(evs) == 1 {
		err = s.publisher.Publish(ctx, evs[0])
	} else {
		err = s.publisher.PublishBatch(ctx, evs)
	}
	if err != nil {
		s.logger.Warn("Failed to publish link events",
			zap.Int("count", len(evs)),
			zap.String("eventType", evs[0].GetEventType()),
			zap.Error(err),
		)
	}
}

func checkRef(name string, ref entities.EntityRef) error {
	switch {
	case !ref.Type.IsValid():
		return pkgerrors.NewInvalidEntityType(name+".type", ref.Type)
	case ref.ID == "":
		return pkgerrors.NewInvalidEntityType(name+".id", ref.ID)
	case ref.TenantID == "":
		return pkgerrors.NewInvalidEntityType(name+".tenantId", ref.TenantID)
	}
	return nil
}

func deleteOperation(soft bool) string {
	if soft {
		return "soft_delete"
	}
	return "hard_delete"
}

func boolPtr(b bool) *bool { return &b }
