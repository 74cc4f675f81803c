package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"linkgraph/domain/core/entities"
	"linkgraph/domain/core/validators"
	"linkgraph/domain/core/valueobjects"
	"linkgraph/domain/events"
	"linkgraph/pkg/common"
	pkgerrors "linkgraph/pkg/errors"
	"linkgraph/pkg/extensions"
)

// BulkCreateOptions configures CreateBulkLinks.
type BulkCreateOptions struct {
	// AllowPartialFailure keeps going past invalid items and failed writes.
	AllowPartialFailure bool
	// BatchSize is the number of links per repository call; 1 writes one at a time.
	BatchSize int
	// Concurrency bounds the batches written at once.
	Concurrency     int
	UserID          string
	AllowDuplicates bool
	SkipValidation  bool
	Validation      validators.Options
}

// BulkDeleteOptions configures DeleteBulkLinks.
type BulkDeleteOptions struct {
	Concurrency int
}

// BulkFailure reports one item that was not written.
type BulkFailure struct {
	Index   int            `json:"index"`
	ID      string         `json:"id,omitempty"`
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
}

func newBulkFailure(index int, id string, err error) BulkFailure {
	return BulkFailure{
		Index:   index,
		ID:      id,
		Code:    pkgerrors.CodeOf(err),
		Message: err.Error(),
		Err:     err,
	}
}

// BulkCreateResult lists the created links and the rejected items, both in input order.
type BulkCreateResult struct {
	Created  []*entities.EntityLink `json:"created"`
	Failures []BulkFailure          `json:"failures,omitempty"`
}

// BulkDeleteResult lists the deleted link ids and the rejected ids, both in input order.
type BulkDeleteResult struct {
	Deleted  []string      `json:"deleted"`
	Failures []BulkFailure `json:"failures,omitempty"`
}

// CreateBulkLinks validates and persists links. Without AllowPartialFailure an
// invalid batch fails before any write and the first failed write aborts the rest.
func (s *LinkService) CreateBulkLinks(ctx context.Context, links []entities.LinkRequest, tenantID string, opts BulkCreateOptions) (result *BulkCreateResult, err error) {
	ctx, end := s.tracer.Start(ctx, "CreateBulkLinks")
	defer func() { end(err) }()

	if tenantID == "" {
		return nil, pkgerrors.NewInvalidEntityType("tenantId", tenantID)
	}
	if err := s.throttle(ctx, tenantID); err != nil {
		return nil, err
	}
	if limit := s.config.MaxBulkItems; limit > 0 && len(links) > limit {
		return nil, pkgerrors.NewValidationFailed(fmt.Sprintf("bulk requests may hold at most %d links", limit)).
			WithDetail("count", len(links)).
			WithDetail("max", limit)
	}

	result = &BulkCreateResult{Created: []*entities.EntityLink{}}
	if len(links) == 0 {
		return result, nil
	}

	itemErrs := make([]error, len(links))
	for i, req := range links {
		if req.From.TenantID != tenantID || req.To.TenantID != tenantID {
			itemErrs[i] = pkgerrors.NewTenantMismatch(req.From.TenantID, req.To.TenantID).
				WithDetail("tenantId", tenantID)
			continue
		}
		note := req.Note
		if err := s.checkFields(&note, req.Metadata); err != nil {
			itemErrs[i] = err
		}
	}
	if !opts.AllowPartialFailure {
		if err := batchRejected(itemErrs); err != nil {
			return nil, s.rejected("bulk_create", err)
		}
	}

	if !opts.SkipValidation {
		validation := s.validator.ValidateBulkLinks(ctx, links, validators.BulkOptions{
			Options:          opts.Validation,
			StopOnFirstError: !opts.AllowPartialFailure,
		})
		for i, res := range validation.Results {
			if !res.Valid && itemErrs[i] == nil {
				itemErrs[i] = res.Err()
			}
		}
		if !validation.Valid && !opts.AllowPartialFailure {
			return nil, s.rejected("bulk_create", batchRejected(itemErrs))
		}
	}

	createdBy := opts.UserID
	if createdBy == "" {
		createdBy, _ = common.GetUserID(ctx)
	}

	seen := make(map[string]bool, len(links))
	for i, req := range links {
		if itemErrs[i] != nil {
			continue
		}
		if err := s.beforeCreate(ctx, req, createdBy); err != nil {
			itemErrs[i] = err
		} else if !opts.AllowDuplicates {
			itemErrs[i] = s.checkBulkDuplicate(ctx, req, seen)
		}
		if itemErrs[i] != nil && !opts.AllowPartialFailure {
			return nil, itemErrs[i]
		}
	}

	now := s.now()
	pending := make(map[int]*entities.EntityLink, len(links))
	order := make([]int, 0, len(links))
	for i, req := range links {
		if itemErrs[i] != nil {
			continue
		}
		pending[i] = entities.NewEntityLink(valueobjects.NewLinkID().String(), req.From, req.To, req.Kind, req.Note, req.Metadata, createdBy, now)
		order = append(order, i)
	}

	written, writeErr := s.writeBatches(ctx, order, pending, itemErrs, opts)

	created := make([]*entities.EntityLink, 0, len(written))
	evs := make([]events.DomainEvent, 0, len(written))
	for _, i := range order {
		link, ok := written[i]
		if !ok {
			continue
		}
		created = append(created, link)
		s.afterWrite(ctx, link)
		s.metrics.RecordLinkWrite("create", string(link.Kind))
		evs = append(evs, events.NewLinkCreated(link, link.CreatedAt))
		s.hooks.ExecuteAsync(ctx, extensions.HookAfterLinkCreate, extensions.HookData{
			TenantID:  tenantID,
			LinkID:    link.ID,
			Operation: "bulk_create",
			UserID:    createdBy,
			After:     link.Clone(),
		})
	}
	s.publish(ctx, evs...)

	if writeErr != nil {
		s.logger.Error("Bulk link creation aborted",
			zap.String("tenantID", tenantID),
			zap.Int("requested", len(links)),
			zap.Int("created", len(created)),
			zap.Error(writeErr),
		)
		return nil, pkgerrors.Wrap(writeErr, "failed to create links")
	}

	for _, link := range created {
		result.Created = append(result.Created, link.Clone())
	}
	for i, err := range itemErrs {
		if err != nil {
			result.Failures = append(result.Failures, newBulkFailure(i, "", err))
		}
	}

	s.logger.Info("Bulk links created",
		zap.String("tenantID", tenantID),
		zap.Int("requested", len(links)),
		zap.Int("created", len(result.Created)),
		zap.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// writeBatches persists pending links in chunks and returns what was stored,
// keyed by input index. Failed items are recorded in itemErrs; without partial
// failure the first error stops the remaining chunks and is returned.
func (s *LinkService) writeBatches(ctx context.Context, order []int, pending map[int]*entities.EntityLink, itemErrs []error, opts BulkCreateOptions) (map[int]*entities.EntityLink, error) {
	size := opts.BatchSize
	if size <= 0 {
		size = s.config.DefaultBatchSize
	}
	if size <= 0 {
		size = 1
	}

	var (
		mu      sync.Mutex
		written = make(map[int]*entities.EntityLink, len(order))
	)
	record := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			itemErrs[i] = pkgerrors.Wrap(err, "failed to create link")
			return
		}
		written[i] = pending[i]
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(opts.Concurrency, s.config.BulkConcurrency))
	for start := 0; start < len(order); start += size {
		chunk := order[start:min(start+size, len(order))]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			if len(chunk) > 1 {
				batch := make([]*entities.EntityLink, 0, len(chunk))
				for _, i := range chunk {
					batch = append(batch, pending[i])
				}
				err := s.repo.CreateMany(gctx, batch)
				if err == nil {
					for _, i := range chunk {
						record(i, nil)
					}
					return nil
				}
				if !opts.AllowPartialFailure {
					return err
				}
				s.logger.Warn("Batch write failed, retrying links one at a time",
					zap.Int("size", len(chunk)),
					zap.Error(err),
				)
			}

			for _, i := range chunk {
				err := s.repo.Create(gctx, pending[i])
				if err != nil && !opts.AllowPartialFailure {
					return err
				}
				record(i, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return written, err
}

// DeleteBulkLinks soft or hard deletes links by id. Ids that are malformed or
// unknown are reported as failures.
func (s *LinkService) DeleteBulkLinks(ctx context.Context, ids []string, tenantID string, soft bool, opts BulkDeleteOptions) (result *BulkDeleteResult, err error) {
	ctx, end := s.tracer.Start(ctx, "DeleteBulkLinks")
	defer func() { end(err) }()

	if tenantID == "" {
		return nil, pkgerrors.NewInvalidEntityType("tenantId", tenantID)
	}
	if err := s.throttle(ctx, tenantID); err != nil {
		return nil, err
	}
	if limit := s.config.MaxBulkItems; limit > 0 && len(ids) > limit {
		return nil, pkgerrors.NewValidationFailed(fmt.Sprintf("bulk requests may hold at most %d links", limit)).
			WithDetail("count", len(ids)).
			WithDetail("max", limit)
	}

	result = &BulkDeleteResult{Deleted: []string{}}
	if len(ids) == 0 {
		return result, nil
	}

	itemErrs := make([]error, len(ids))
	var targets []int
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		switch {
		case !valueobjects.IsValidLinkID(id):
			itemErrs[i] = pkgerrors.NewValidationFailed("malformed link id").WithDetail("id", id)
		case seen[id]:
			// repeated ids are handled once
		default:
			seen[id] = true
			targets = append(targets, i)
		}
	}

	existing := make([]*entities.EntityLink, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(opts.Concurrency, s.config.BulkConcurrency))
	for _, i := range targets {
		g.Go(func() error {
			link, err := s.repo.FindByID(gctx, ids[i], tenantID)
			switch {
			case err != nil:
				itemErrs[i] = pkgerrors.Wrap(err, "failed to load link")
			case link == nil:
				itemErrs[i] = pkgerrors.NewEntityNotFound("link", ids[i])
			case soft:
				updated, err := s.repo.Update(gctx, ids[i], tenantID, entities.LinkPatch{Active: boolPtr(false)})
				if err != nil {
					itemErrs[i] = pkgerrors.Wrap(err, "failed to deactivate link")
				} else if updated == nil {
					itemErrs[i] = pkgerrors.NewEntityNotFound("link", ids[i])
				} else {
					existing[i] = link
				}
			default:
				existing[i] = link
			}
			return nil
		})
	}
	_ = g.Wait()

	if !soft {
		var found []string
		for _, i := range targets {
			if existing[i] != nil {
				found = append(found, ids[i])
			}
		}
		if len(found) > 0 {
			if _, err := s.repo.DeleteMany(ctx, found, tenantID); err != nil {
				// Some rows may be gone; cached views can no longer be trusted.
				if clearErr := s.InvalidateCache(ctx, nil); clearErr != nil {
					s.logger.Warn("Failed to clear cache after bulk delete failure", zap.Error(clearErr))
				}
				s.logger.Error("Bulk link deletion failed",
					zap.String("tenantID", tenantID),
					zap.Int("count", len(found)),
					zap.Error(err),
				)
				return nil, pkgerrors.Wrap(err, "failed to delete links")
			}
		}
	}

	evs := make([]events.DomainEvent, 0, len(targets))
	now := s.now()
	for _, i := range targets {
		link := existing[i]
		if link == nil {
			continue
		}
		result.Deleted = append(result.Deleted, link.ID)
		s.afterWrite(ctx, link)
		s.dropLink(ctx, tenantID, link.ID)
		s.metrics.RecordLinkWrite(deleteOperation(soft), string(link.Kind))
		evs = append(evs, events.NewLinkDeleted(link, soft, now))
		s.hooks.ExecuteAsync(ctx, extensions.HookAfterLinkDelete, extensions.HookData{
			TenantID:  tenantID,
			LinkID:    link.ID,
			Operation: deleteOperation(soft),
			Before:    link,
		})
	}
	s.publish(ctx, evs...)

	for i, err := range itemErrs {
		if err != nil {
			result.Failures = append(result.Failures, newBulkFailure(i, ids[i], err))
		}
	}

	s.logger.Info("Bulk links deleted",
		zap.String("tenantID", tenantID),
		zap.Int("requested", len(ids)),
		zap.Int("deleted", len(result.Deleted)),
		zap.Int("failed", len(result.Failures)),
		zap.Bool("soft", soft),
	)
	return result, nil
}

func (s *LinkService) beforeCreate(ctx context.Context, req entities.LinkRequest, userID string) error {
	if !s.hooks.Has(extensions.HookBeforeLinkCreate) {
		return nil
	}
	err := s.hooks.Execute(ctx, extensions.HookBeforeLinkCreate, extensions.HookData{
		TenantID:  req.From.TenantID,
		Operation: "bulk_create",
		UserID:    userID,
		After:     req,
	})
	if err != nil {
		return s.rejected("bulk_create", pkgerrors.NewValidationFailed("link rejected by hook").
			WithDetail("reason", "hook").
			WithCause(err))
	}
	return nil
}

// checkBulkDuplicate rejects a request matching a stored link or an earlier item of the batch.
func (s *LinkService) checkBulkDuplicate(ctx context.Context, req entities.LinkRequest, seen map[string]bool) error {
	key := req.From.Key() + ">" + req.To.Key() + "|" + string(req.Kind)
	if seen[key] {
		return s.rejected("bulk_create", pkgerrors.NewDuplicateLink(req.From.Key(), req.To.Key(), string(req.Kind)).
			WithDetail("reason", "repeated_in_batch"))
	}
	if err := s.ensureUnique(ctx, req.From, req.To, req.Kind); err != nil {
		return err
	}
	seen[key] = true
	return nil
}

// batchRejected folds per-item errors into one VALIDATION_FAILED, or nil when
// every item passed.
func batchRejected(itemErrs []error) error {
	var (
		first    error
		failures []map[string]interface{}
	)
	for i, err := range itemErrs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		failures = append(failures, map[string]interface{}{
			"index":   i,
			"code":    string(pkgerrors.CodeOf(err)),
			"message": err.Error(),
		})
	}
	if first == nil {
		return nil
	}
	return pkgerrors.NewValidationFailed(fmt.Sprintf("%d of %d links failed validation", len(failures), len(itemErrs))).
		WithDetail("failures", failures).
		WithCause(first)
}

// workers picks a positive pool size.
func workers(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	if requested <= 0 {
		return 1
	}
	return requested
}
