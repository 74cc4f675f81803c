package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"linkgraph/application/ports"
	"linkgraph/domain/core/entities"
)

// LinkRepository keeps links in process memory. It is used by tests and by
// the CLI when no durable backend is configured.
type LinkRepository struct {
	mu        sync.RWMutex
	links     map[string]map[string]*entities.EntityLink // tenant -> id -> link
	summaries map[string]map[string]entities.EntitySummary
	now       func() time.Time
}

// NewLinkRepository creates an empty repository.
func NewLinkRepository() *LinkRepository {
	return &LinkRepository{
		links:     make(map[string]map[string]*entities.EntityLink),
		summaries: make(map[string]map[string]entities.EntitySummary),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var (
	_ ports.LinkRepository     = (*LinkRepository)(nil)
	_ ports.EntitySummaryStore = (*LinkRepository)(nil)
)

func (r *LinkRepository) Create(ctx context.Context, link *entities.EntityLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insert(link)
}

func (r *LinkRepository) insert(link *entities.EntityLink) error {
	tenant := r.links[link.TenantID]
	if tenant == nil {
		tenant = make(map[string]*entities.EntityLink)
		r.links[link.TenantID] = tenant
	}
	if _, exists := tenant[link.ID]; exists {
		return fmt.Errorf("link %s already exists", link.ID)
	}
	tenant[link.ID] = link.Clone()
	return nil
}

func (r *LinkRepository) Update(ctx context.Context, id, tenantID string, patch entities.LinkPatch) (*entities.EntityLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[tenantID][id]
	if !ok {
		return nil, nil
	}
	link.Apply(patch, r.now())
	return link.Clone(), nil
}

func (r *LinkRepository) Delete(ctx context.Context, id, tenantID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.links[tenantID], id)
	return nil
}

func (r *LinkRepository) FindByID(ctx context.Context, id, tenantID string) (*entities.EntityLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.links[tenantID][id].Clone(), nil
}

func (r *LinkRepository) FindByEntity(ctx context.Context, ref entities.EntityRef, query ports.EntityLinkQuery) ([]*entities.EntityLinkWithDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	direction := query.Direction.OrDefault(entities.DirectionBoth)
	kinds := kindSet(query.Kinds)

	var out []*entities.EntityLinkWithDetails
	for _, link := range r.sorted(ref.TenantID) {
		if !query.IncludeInactive && !link.Active {
			continue
		}
		if kinds != nil && !kinds[link.Kind] {
			continue
		}
		outgoing := link.From().SameEntity(ref)
		incoming := link.To().SameEntity(ref)
		switch direction {
		case entities.DirectionOutgoing:
			if !outgoing {
				continue
			}
		case entities.DirectionIncoming:
			if !incoming {
				continue
			}
		default:
			if !outgoing && !incoming {
				continue
			}
		}
		out = append(out, r.withDetails(link))
	}
	return out, nil
}

func (r *LinkRepository) FindByCriteria(ctx context.Context, criteria ports.LinkCriteria) ([]*entities.EntityLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entities.EntityLink
	for _, link := range r.sorted(criteria.TenantID) {
		if criteria.FromType != "" && link.FromType != criteria.FromType {
			continue
		}
		if criteria.ToType != "" && link.ToType != criteria.ToType {
			continue
		}
		if criteria.Kind != "" && link.Kind != criteria.Kind {
			continue
		}
		if criteria.Active != nil && link.Active != *criteria.Active {
			continue
		}
		out = append(out, link.Clone())
		if criteria.Limit > 0 && len(out) == criteria.Limit {
			break
		}
	}
	return out, nil
}

func (r *LinkRepository) LinkExists(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, link := range r.links[from.TenantID] {
		if link.Active && link.Kind == kind && link.From().SameEntity(from) && link.To().SameEntity(to) {
			return true, nil
		}
	}
	return false, nil
}

// CreateMany inserts all links or none.
func (r *LinkRepository) CreateMany(ctx context.Context, links []*entities.EntityLink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(links))
	for _, link := range links {
		key := link.TenantID + "/" + link.ID
		if _, exists := r.links[link.TenantID][link.ID]; exists || seen[key] {
			return fmt.Errorf("link %s already exists", link.ID)
		}
		seen[key] = true
	}
	for _, link := range links {
		if err := r.insert(link); err != nil {
			return err
		}
	}
	return nil
}

func (r *LinkRepository) DeleteMany(ctx context.Context, ids []string, tenantID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	tenant := r.links[tenantID]
	for _, id := range ids {
		if _, ok := tenant[id]; ok {
			delete(tenant, id)
			removed++
		}
	}
	return removed, nil
}

// UpsertEntitySummary records display data used by FindByEntity.
func (r *LinkRepository) UpsertEntitySummary(ctx context.Context, tenantID string, summary entities.EntitySummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tenant := r.summaries[tenantID]
	if tenant == nil {
		tenant = make(map[string]entities.EntitySummary)
		r.summaries[tenantID] = tenant
	}
	tenant[entities.NewEntityRef(summary.Type, summary.ID, tenantID).Key()] = summary
	return nil
}

// Len reports how many links are stored across tenants.
func (r *LinkRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, tenant := range r.links {
		n += len(tenant)
	}
	return n
}

// sorted returns the tenant's links by creation time, then id. Callers hold the lock.
func (r *LinkRepository) sorted(tenantID string) []*entities.EntityLink {
	tenant := r.links[tenantID]
	out := make([]*entities.EntityLink, 0, len(tenant))
	for _, link := range tenant {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *LinkRepository) withDetails(link *entities.EntityLink) *entities.EntityLinkWithDetails {
	details := entities.WithMinimalDetails(link)
	if s, ok := r.summaries[link.TenantID][link.From().Key()]; ok {
		details.FromEntity = &s
	}
	if s, ok := r.summaries[link.TenantID][link.To().Key()]; ok {
		details.ToEntity = &s
	}
	return details
}

func kindSet(kinds []entities.LinkKind) map[entities.LinkKind]bool {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[entities.LinkKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}
