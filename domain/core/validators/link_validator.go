package validators

import (
	"context"
	"fmt"

	"linkgraph/domain/core/entities"
	"linkgraph/domain/core/rules"
	"linkgraph/pkg/errors"
)

// ExistenceChecker reports whether a referenced business record exists.
type ExistenceChecker interface {
	EntityExists(ctx context.Context, ref entities.EntityRef) (bool, error)
}

// PermissionChecker decides whether the caller in ctx may create the link.
type PermissionChecker interface {
	HasLinkPermission(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (bool, error)
}

// CycleScope adjusts the link set a cycle check runs against.
type CycleScope struct {
	// IgnoreLinkID excludes a stored link, typically the one being updated.
	IgnoreLinkID string
	// Pending adds links that are validated but not yet stored.
	Pending []entities.LinkRequest
}

// CycleChecker reports whether adding from->to with kind keeps the dependency graph acyclic.
type CycleChecker interface {
	CheckNoCycle(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind, scope CycleScope) (bool, error)
}

// Options toggles the optional validation stages.
type Options struct {
	SkipExistenceCheck  bool
	SkipCircularCheck   bool
	SkipPermissionCheck bool
	IgnoreLinkID        string
}

// ValidationResult is the outcome of validating one link.
type ValidationResult struct {
	Valid  bool                `json:"valid"`
	Errors []*errors.LinkError `json:"errors,omitempty"`
}

// Err collapses a failed result into a single LinkError, or nil when valid.
func (r *ValidationResult) Err() error {
	if r == nil || r.Valid {
		return nil
	}
	verrs := &errors.ValidationErrors{Errors: r.Errors}
	return verrs.ToLinkError()
}

// Has reports whether the result carries a violation with code.
func (r *ValidationResult) Has(code errors.Code) bool {
	for _, err := range r.Errors {
		if err.Code == code {
			return true
		}
	}
	return false
}

func newResult(verrs *errors.ValidationErrors) *ValidationResult {
	return &ValidationResult{Valid: !verrs.HasErrors(), Errors: verrs.Errors}
}

func failedResult(err *errors.LinkError) *ValidationResult {
	return &ValidationResult{Valid: false, Errors: []*errors.LinkError{err}}
}

// LinkValidator runs the link validation pipeline: structure, rule table, tenant,
// self-link, existence, cycle and permission, in that order.
type LinkValidator struct {
	registry    *rules.Registry
	existence   ExistenceChecker
	permissions PermissionChecker
	cycles      CycleChecker
}

// NewLinkValidator creates a validator. Nil collaborators disable their stage.
func NewLinkValidator(registry *rules.Registry, existence ExistenceChecker, permissions PermissionChecker, cycles CycleChecker) *LinkValidator {
	if registry == nil {
		registry = rules.DefaultRegistry()
	}
	return &LinkValidator{
		registry:    registry,
		existence:   existence,
		permissions: permissions,
		cycles:      cycles,
	}
}

// SetCycleChecker installs the cycle checker after construction.
func (v *LinkValidator) SetCycleChecker(cycles CycleChecker) {
	v.cycles = cycles
}

// Registry returns the rule registry the validator consults.
func (v *LinkValidator) Registry() *rules.Registry {
	return v.registry
}

// ValidateLink validates one proposed link. Expected violations become result
// errors; collaborator failures and panics become a single VALIDATION_FAILED.
func (v *LinkValidator) ValidateLink(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind, opts Options) *ValidationResult {
	return v.validate(ctx, from, to, kind, opts, nil)
}

func (v *LinkValidator) validate(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind, opts Options, pending []entities.LinkRequest) (result *ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failedResult(errors.NewValidationFailed("link validation aborted").
				WithDetail("panic", fmt.Sprint(r)))
		}
	}()

	verrs := errors.NewValidationErrors()

	// 1. structure
	structural := v.checkStructure(verrs, from, to, kind)

	// 2. rule table
	if from.Type.IsValid() && to.Type.IsValid() && kind.IsValid() {
		if !v.registry.CanLink(from.Type, to.Type, kind) {
			verrs.Add(errors.NewInvalidLinkKind(
				fmt.Sprintf("%s cannot be linked to %s with %s", from.Type, to.Type, kind)).
				WithDetail("fromType", from.Type).
				WithDetail("toType", to.Type).
				WithDetail("kind", kind).
				WithDetail("allowedTargets", v.registry.AllowedTargets(from.Type, kind)))
		}
	}

	// 3. tenant
	tenantOK := from.TenantID == to.TenantID
	if !tenantOK {
		verrs.Add(errors.NewTenantMismatch(from.TenantID, to.TenantID))
	}

	// 4. self-link
	selfLink := from.ID != "" && from.SameEntity(to)
	if selfLink {
		verrs.Add(errors.NewValidationFailed("an entity cannot be linked to itself").
			WithDetail("reason", "self_link").
			WithDetail("entity", from.Key()))
	}

	if !structural {
		return newResult(verrs)
	}

	// 5. existence
	if !opts.SkipExistenceCheck && v.existence != nil {
		for _, ref := range []entities.EntityRef{from, to} {
			exists, err := v.entityExists(ctx, ref)
			if err != nil {
				return collaboratorFailure("existence", err)
			}
			if !exists {
				verrs.Add(errors.NewEntityNotFound(string(ref.Type), ref.ID).
					WithDetail("entity", ref.Key()))
			}
		}
	}

	// 6. cycle
	if !opts.SkipCircularCheck && v.cycles != nil && kind.IsDependencyClass() && tenantOK && !selfLink {
		scope := CycleScope{IgnoreLinkID: opts.IgnoreLinkID, Pending: pending}
		ok, err := v.noCycle(ctx, from, to, kind, scope)
		if err != nil {
			return collaboratorFailure("cycle", err)
		}
		if !ok {
			verrs.Add(errors.NewCircularDependency(from.Key(), to.Key(), string(kind)).
				WithDetail("kind", kind))
		}
	}

	// 7. permission
	if !opts.SkipPermissionCheck && v.permissions != nil {
		allowed, err := v.hasPermission(ctx, from, to, kind)
		if err != nil {
			return collaboratorFailure("permission", err)
		}
		if !allowed {
			verrs.Add(errors.NewPermissionDenied(
				fmt.Sprintf("not allowed to link %s to %s", from.Key(), to.Key())).
				WithDetail("kind", kind))
		}
	}

	return newResult(verrs)
}

func (v *LinkValidator) checkStructure(verrs *errors.ValidationErrors, from, to entities.EntityRef, kind entities.LinkKind) bool {
	ok := true
	for _, side := range []struct {
		name string
		ref  entities.EntityRef
	}{{"from", from}, {"to", to}} {
		switch {
		case !side.ref.Type.IsValid():
			verrs.Add(errors.NewInvalidEntityType(side.name+".type", side.ref.Type))
			ok = false
		case side.ref.ID == "":
			verrs.Add(errors.NewInvalidEntityType(side.name+".id", side.ref.ID))
			ok = false
		case side.ref.TenantID == "":
			verrs.Add(errors.NewInvalidEntityType(side.name+".tenantId", side.ref.TenantID))
			ok = false
		}
	}
	if !kind.IsValid() {
		verrs.Add(errors.NewInvalidLinkKind(fmt.Sprintf("unknown link kind %q", kind)).
			WithDetail("kind", kind))
		ok = false
	}
	return ok
}

func (v *LinkValidator) entityExists(ctx context.Context, ref entities.EntityRef) (exists bool, err error) {
	defer recoverInto(&err)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return v.existence.EntityExists(ctx, ref)
}

func (v *LinkValidator) noCycle(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind, scope CycleScope) (ok bool, err error) {
	defer recoverInto(&err)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return v.cycles.CheckNoCycle(ctx, from, to, kind, scope)
}

func (v *LinkValidator) hasPermission(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (allowed bool, err error) {
	defer recoverInto(&err)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return v.permissions.HasLinkPermission(ctx, from, to, kind)
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("collaborator panicked: %v", r)
	}
}

func collaboratorFailure(stage string, cause error) *ValidationResult {
	return failedResult(errors.NewValidationFailed(fmt.Sprintf("%s check failed", stage)).
		WithDetail("stage", stage).
		WithCause(cause).
		WithRetryable(errors.IsRetryable(cause)))
}
