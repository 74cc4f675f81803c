package ports

import (
	"context"

	"linkgraph/domain/core/entities"
)

// ExistenceFunc adapts a function to EntityExistenceChecker.
type ExistenceFunc func(ctx context.Context, ref entities.EntityRef) (bool, error)

func (f ExistenceFunc) EntityExists(ctx context.Context, ref entities.EntityRef) (bool, error) {
	return f(ctx, ref)
}

// PermissionFunc adapts a function to PermissionChecker.
type PermissionFunc func(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error)

func (f PermissionFunc) HasLinkPermission(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error) {
	return f(ctx, from, to, kind)
}

// AllowAllExistence treats every entity as existing.
var AllowAllExistence EntityExistenceChecker = ExistenceFunc(func(context.Context, entities.EntityRef) (bool, error) {
	return true, nil
})

// AllowAllPermissions grants every link.
var AllowAllPermissions PermissionChecker = PermissionFunc(func(context.Context, entities.EntityRef, entities.EntityRef, entities.LinkKind) (bool, error) {
	return true, nil
})

// ExistenceRouter delegates existence checks to a checker registered per entity type.
type ExistenceRouter struct {
	checkers map[entities.EntityType]EntityExistenceChecker
	fallback EntityExistenceChecker
}

// NewExistenceRouter creates a router; types without a checker use fallback,
// or are treated as existing when fallback is nil.
func NewExistenceRouter(fallback EntityExistenceChecker) *ExistenceRouter {
	if fallback == nil {
		fallback = AllowAllExistence
	}
	return &ExistenceRouter{
		checkers: make(map[entities.EntityType]EntityExistenceChecker),
		fallback: fallback,
	}
}

// Register sets the checker for entityType. Not safe to call concurrently with EntityExists.
func (r *ExistenceRouter) Register(entityType entities.EntityType, checker EntityExistenceChecker) *ExistenceRouter {
	r.checkers[entityType] = checker
	return r
}

func (r *ExistenceRouter) EntityExists(ctx context.Context, ref entities.EntityRef) (bool, error) {
	if checker, ok := r.checkers[ref.Type]; ok {
		return checker.EntityExists(ctx, ref)
	}
	return r.fallback.EntityExists(ctx, ref)
}
