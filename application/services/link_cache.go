package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"linkgraph/domain/core/entities"
	pkgerrors "linkgraph/pkg/errors"
	"linkgraph/pkg/extensions"
)

// Cache layout:
//
//	link:<tenant>:<id>                                    -> *entities.EntityLink
//	linkver:<tenant>:<type>:<id>                          -> string
//	links:<tenant>:<type>:<id>|v=<version>|<query options> -> []*entities.EntityLinkWithDetails
//
// Every write to an entity replaces its version in the cache, so query keys
// built before the write are never read again, even by another process
// sharing a persistent store. Query keys are also indexed in process so the
// superseded entries are dropped eagerly. A read that overlaps an
// invalidation of the same entity does not store its result.

func linkCacheKey(tenantID, id string) string {
	return fmt.Sprintf("link:%s:%s", tenantID, id)
}

func entityVersionKey(ref entities.EntityRef) string {
	return fmt.Sprintf("linkver:%s:%s", ref.TenantID, ref.Key())
}

func entityLinksCacheKey(ref entities.EntityRef, version string, opts EntityLinksOptions) string {
	kinds := make([]string, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	return fmt.Sprintf("links:%s:%s|v=%s|dir=%s|inactive=%t|kinds=%s",
		ref.TenantID, ref.Key(), version,
		opts.Direction.OrDefault(entities.DirectionBoth),
		opts.IncludeInactive,
		strings.Join(kinds, ","),
	)
}

func entityIndexKey(ref entities.EntityRef) string {
	return ref.TenantID + "|" + ref.Key()
}

func linkIndexKey(tenantID, id string) string {
	return "link|" + tenantID + "|" + id
}

// InvalidateCache drops the cached views of ref, or the whole cache when ref is nil.
func (s *LinkService) InvalidateCache(ctx context.Context, ref *entities.EntityRef) error {
	if ref != nil {
		s.invalidateEntity(ctx, *ref)
		return nil
	}

	s.indexMu.Lock()
	s.keyIndex = make(map[string]map[string]struct{})
	for k := range s.inflight {
		s.generation[k]++
	}
	s.indexMu.Unlock()

	if s.cache == nil {
		return nil
	}
	if err := s.cache.Clear(ctx); err != nil {
		return pkgerrors.Wrap(err, "failed to clear link cache")
	}
	s.logger.Debug("Link cache cleared")
	s.hooks.ExecuteAsync(ctx, extensions.HookCacheInvalidation, extensions.HookData{Operation: "clear"})
	return nil
}

// WarmCache loads the default link view of every ref into the cache. It keeps
// going after a failure and returns how many refs were loaded plus the first error.
func (s *LinkService) WarmCache(ctx context.Context, refs []entities.EntityRef) (int, error) {
	if s.cache == nil || len(refs) == 0 {
		return 0, nil
	}

	errs := make([]error, len(refs))
	var g errgroup.Group
	g.SetLimit(workers(s.config.BulkConcurrency, 0))
	for i, ref := range refs {
		g.Go(func() error {
			_, errs[i] = s.GetEntityLinks(ctx, ref, EntityLinksOptions{})
			return nil
		})
	}
	_ = g.Wait()

	warmed := 0
	var first error
	for i, err := range errs {
		if err == nil {
			warmed++
			continue
		}
		if first == nil {
			first = err
		}
		s.logger.Warn("Failed to warm link cache",
			zap.String("entity", refs[i].String()),
			zap.Error(err),
		)
	}

	s.logger.Debug("Link cache warmed", zap.Int("requested", len(refs)), zap.Int("warmed", warmed))
	return warmed, first
}

func (s *LinkService) cacheGet(ctx context.Context, key, tenantID string) (interface{}, bool) {
	if s.cache == nil {
		return nil, false
	}
	value, ok := s.cache.Get(ctx, key)
	if ok {
		s.metrics.RecordCacheHit()
		s.logger.Debug("Cache hit", zap.String("key", key))
		s.hooks.ExecuteAsync(ctx, extensions.HookCacheHit, extensions.HookData{TenantID: tenantID, Operation: "get", CacheKey: key})
	} else {
		s.metrics.RecordCacheMiss()
		s.hooks.ExecuteAsync(ctx, extensions.HookCacheMiss, extensions.HookData{TenantID: tenantID, Operation: "get", CacheKey: key})
	}
	return value, ok
}

func (s *LinkService) cacheSet(ctx context.Context, key string, value interface{}) {
	if err := s.cache.Set(ctx, key, value, s.config.CacheTTLSeconds()); err != nil {
		s.logger.Warn("Failed to populate cache", zap.String("key", key), zap.Error(err))
	}
}

// entityVersion returns the cached view version of ref, empty when unset.
func (s *LinkService) entityVersion(ctx context.Context, ref entities.EntityRef) string {
	if s.cache == nil {
		return ""
	}
	value, ok := s.cache.Get(ctx, entityVersionKey(ref))
	if !ok {
		return ""
	}
	version, _ := value.(string)
	return version
}

// rotateVersion retires every cached view of ref. The version outlives the
// entries stored under it.
func (s *LinkService) rotateVersion(ctx context.Context, ref entities.EntityRef) {
	key := entityVersionKey(ref)
	if err := s.cache.Set(ctx, key, uuid.NewString(), 2*s.config.CacheTTLSeconds()); err != nil {
		s.logger.Warn("Failed to rotate cache version", zap.String("key", key), zap.Error(err))
	}
}

func (s *LinkService) cacheDelete(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to evict cache entry", zap.String("key", key), zap.Error(err))
	}
}

// beginRead marks an in-flight read of index key k and returns its generation.
func (s *LinkService) beginRead(k string) uint64 {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	s.inflight[k]++
	return s.generation[k]
}

// endRead reports whether k was not invalidated since the matching beginRead.
func (s *LinkService) endRead(k string, gen uint64) bool {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	fresh := s.generation[k] == gen
	s.inflight[k]--
	if s.inflight[k] <= 0 {
		delete(s.inflight, k)
		delete(s.generation, k)
	}
	return fresh
}

// bump invalidates in-flight reads of k. Callers hold indexMu.
func (s *LinkService) bump(k string) {
	if s.inflight[k] > 0 {
		s.generation[k]++
	}
}

// fetchLink reads a link from the repository; the result is cached only when
// no write touched it meanwhile.
func (s *LinkService) fetchLink(ctx context.Context, id, tenantID string) (*entities.EntityLink, error) {
	k := linkIndexKey(tenantID, id)
	gen := s.beginRead(k)
	link, err := s.repo.FindByID(ctx, id, tenantID)
	fresh := s.endRead(k, gen)
	if err == nil && link != nil && fresh {
		s.storeLink(ctx, link)
	}
	return link, err
}

func (s *LinkService) fetchEntityLinks(ctx context.Context, ref entities.EntityRef, key string, fetch func() ([]*entities.EntityLinkWithDetails, error)) ([]*entities.EntityLinkWithDetails, error) {
	k := entityIndexKey(ref)
	gen := s.beginRead(k)
	links, err := fetch()
	fresh := s.endRead(k, gen)
	if err != nil || s.cache == nil || !fresh {
		return links, err
	}

	s.indexMu.Lock()
	keys := s.keyIndex[k]
	if keys == nil {
		keys = make(map[string]struct{})
		s.keyIndex[k] = keys
	}
	keys[key] = struct{}{}
	s.indexMu.Unlock()

	s.cacheSet(ctx, key, cloneDetails(links))
	return links, nil
}

func (s *LinkService) storeLink(ctx context.Context, link *entities.EntityLink) {
	if s.cache == nil {
		return
	}
	s.cacheSet(ctx, linkCacheKey(link.TenantID, link.ID), link.Clone())
}

// refreshLink replaces the cached copy of link if one is present.
func (s *LinkService) refreshLink(ctx context.Context, link *entities.EntityLink) {
	s.indexMu.Lock()
	s.bump(linkIndexKey(link.TenantID, link.ID))
	s.indexMu.Unlock()

	if s.cache == nil {
		return
	}
	key := linkCacheKey(link.TenantID, link.ID)
	if _, ok := s.cache.Get(ctx, key); ok {
		s.cacheSet(ctx, key, link.Clone())
	}
}

func (s *LinkService) dropLink(ctx context.Context, tenantID, id string) {
	s.indexMu.Lock()
	s.bump(linkIndexKey(tenantID, id))
	s.indexMu.Unlock()

	if s.cache == nil {
		return
	}
	s.cacheDelete(ctx, linkCacheKey(tenantID, id))
}

// afterWrite drops the cached link views of both endpoints of link.
func (s *LinkService) afterWrite(ctx context.Context, link *entities.EntityLink) {
	s.invalidateEntity(ctx, link.From())
	s.invalidateEntity(ctx, link.To())
}

func (s *LinkService) invalidateEntity(ctx context.Context, ref entities.EntityRef) {
	k := entityIndexKey(ref)

	s.indexMu.Lock()
	keys := s.keyIndex[k]
	delete(s.keyIndex, k)
	s.bump(k)
	s.indexMu.Unlock()

	if s.cache == nil {
		return
	}
	s.rotateVersion(ctx, ref)
	for key := range keys {
		s.cacheDelete(ctx, key)
	}
	s.logger.Debug("Entity cache invalidated", zap.String("entity", ref.String()), zap.Int("keys", len(keys)))
	s.hooks.ExecuteAsync(ctx, extensions.HookCacheInvalidation, extensions.HookData{
		TenantID:  ref.TenantID,
		Operation: "invalidate",
		Metadata:  map[string]interface{}{"entity": ref.Key()},
	})
}

func cloneDetails(in []*entities.EntityLinkWithDetails) []*entities.EntityLinkWithDetails {
	out := make([]*entities.EntityLinkWithDetails, 0, len(in))
	for _, l := range in {
		c := *l
		c.Metadata = l.EntityLink.Clone().Metadata
		if l.FromEntity != nil {
			from := *l.FromEntity
			c.FromEntity = &from
		}
		if l.ToEntity != nil {
			to := *l.ToEntity
			c.ToEntity = &to
		}
		out = append(out, &c)
	}
	return out
}
