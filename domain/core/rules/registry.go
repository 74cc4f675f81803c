// Package rules holds the catalog of which entity types may be linked through which kinds.
package rules

import (
	"sort"

	"linkgraph/domain/core/entities"
)

// anyType marks a rule whose target may be any known entity type.
const anyType entities.EntityType = "*"

type targetSet map[entities.EntityType]struct{}

// Registry answers canLink queries from a table precomputed at construction.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	allowed map[entities.EntityType]map[entities.LinkKind]targetSet
}

// Rule declares the allowed targets of one (fromType, kind) pair.
type Rule struct {
	From    entities.EntityType
	Kind    entities.LinkKind
	Targets []entities.EntityType
}

// NewRegistry builds a registry from rules. The relates kind is always allowed
// between any two known types.
func NewRegistry(rules []Rule) *Registry {
	r := &Registry{allowed: make(map[entities.EntityType]map[entities.LinkKind]targetSet)}
	for _, t := range entities.AllEntityTypes() {
		r.allowed[t] = map[entities.LinkKind]targetSet{
			entities.LinkKindRelates: {anyType: {}},
		}
	}
	for _, rule := range rules {
		kinds, ok := r.allowed[rule.From]
		if !ok {
			continue
		}
		set, ok := kinds[rule.Kind]
		if !ok {
			set = make(targetSet)
			kinds[rule.Kind] = set
		}
		for _, target := range rule.Targets {
			set[target] = struct{}{}
		}
	}
	return r
}

var defaultRegistry = NewRegistry(defaultRules())

// DefaultRegistry returns the registry for the built-in rule table.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// CanLink reports whether a link of kind may go from fromType to toType.
// Unknown types and kinds are never linkable.
func (r *Registry) CanLink(fromType, toType entities.EntityType, kind entities.LinkKind) bool {
	if !toType.IsValid() || !kind.IsValid() {
		return false
	}
	kinds, ok := r.allowed[fromType]
	if !ok {
		return false
	}
	targets, ok := kinds[kind]
	if !ok {
		return false
	}
	if _, ok := targets[anyType]; ok {
		return true
	}
	_, ok = targets[toType]
	return ok
}

// AllowedTargets lists the target types allowed for (fromType, kind), sorted.
func (r *Registry) AllowedTargets(fromType entities.EntityType, kind entities.LinkKind) []entities.EntityType {
	targets, ok := r.allowed[fromType][kind]
	if !ok {
		return nil
	}
	if _, ok := targets[anyType]; ok {
		return entities.AllEntityTypes()
	}
	out := make([]entities.EntityType, 0, len(targets))
	for t := range targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// KindsFor lists the kinds fromType supports, sorted.
func (r *Registry) KindsFor(fromType entities.EntityType) []entities.LinkKind {
	kinds, ok := r.allowed[fromType]
	if !ok {
		return nil
	}
	out := make([]entities.LinkKind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
