package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/domain/core/aggregates"
	"linkgraph/domain/core/entities"
	"linkgraph/domain/core/validators"
	pkgerrors "linkgraph/pkg/errors"
)

// GraphOptions configures GetEntityGraph.
type GraphOptions struct {
	Direction entities.Direction // empty means both
	Kinds     []entities.LinkKind
}

// PathOptions configures FindPath.
type PathOptions struct {
	MaxDepth  int
	Direction entities.Direction // empty means outgoing
	Kinds     []entities.LinkKind
}

// EntityGraph is the neighbourhood of Root. Nodes are unique by (type, id).
type EntityGraph struct {
	Root      entities.EntityRef                `json:"root"`
	Nodes     []entities.EntityRef              `json:"nodes"`
	Edges     []*entities.EntityLinkWithDetails `json:"edges"`
	Depth     int                               `json:"depth"`
	Truncated bool                              `json:"truncated,omitempty"`
}

// GetEntityGraph expands root breadth-first over active links, at most depth
// hops, stopping early once no new node is found.
func (s *LinkService) GetEntityGraph(ctx context.Context, root entities.EntityRef, depth int, opts GraphOptions) (graph *EntityGraph, err error) {
	ctx, end := s.tracer.Start(ctx, "GetEntityGraph")
	defer func() { end(err) }()

	if err := checkRef("root", root); err != nil {
		return nil, err
	}
	direction, err := traversalDirection(opts.Direction, entities.DirectionBoth)
	if err != nil {
		return nil, err
	}
	depth = s.config.ClampGraphDepth(depth)

	g := aggregates.NewLinkGraph(root)
	truncated, err := s.expand(ctx, g, []entities.EntityRef{root}, depth, EntityLinksOptions{
		Kinds:     opts.Kinds,
		Direction: direction,
	}, nil)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTraversal("graph", g.NodeCount())

	s.logger.Debug("Entity graph built",
		zap.String("root", root.String()),
		zap.Int("depth", depth),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.LinkCount()),
		zap.Bool("truncated", truncated),
	)

	return &EntityGraph{
		Root:      root,
		Nodes:     g.Nodes(),
		Edges:     g.Links(),
		Depth:     depth,
		Truncated: truncated,
	}, nil
}

// FindPath returns the shortest chain of links from -> to, or an empty slice
// when none exists within the depth bound.
func (s *LinkService) FindPath(ctx context.Context, from, to entities.EntityRef, opts PathOptions) (path []*entities.EntityLinkWithDetails, err error) {
	ctx, end := s.tracer.Start(ctx, "FindPath")
	defer func() { end(err) }()

	if err := checkRef("from", from); err != nil {
		return nil, err
	}
	if err := checkRef("to", to); err != nil {
		return nil, err
	}
	if from.TenantID != to.TenantID {
		return nil, pkgerrors.NewTenantMismatch(from.TenantID, to.TenantID)
	}
	direction, err := traversalDirection(opts.Direction, entities.DirectionOutgoing)
	if err != nil {
		return nil, err
	}

	path = []*entities.EntityLinkWithDetails{}
	if from.SameEntity(to) {
		return path, nil
	}

	maxDepth := s.config.ClampPathDepth(opts.MaxDepth)
	g := aggregates.NewLinkGraph(from)
	if _, err := s.expand(ctx, g, []entities.EntityRef{from}, maxDepth, EntityLinksOptions{
		Kinds:     opts.Kinds,
		Direction: direction,
	}, func() bool { return g.HasNode(to) }); err != nil {
		return nil, err
	}
	s.metrics.ObserveTraversal("path", g.NodeCount())

	if found := g.ShortestPath(from, to, direction, maxDepth); found != nil {
		path = found
	}

	s.logger.Debug("Path search finished",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("maxDepth", maxDepth),
		zap.Int("hops", len(path)),
	)
	return path, nil
}

// expand grows g breadth-first from frontier for at most depth levels. It stops
// early when done reports true after a level, and reports whether the node
// budget cut the expansion short.
func (s *LinkService) expand(ctx context.Context, g *aggregates.LinkGraph, frontier []entities.EntityRef, depth int, opts EntityLinksOptions, done func() bool) (bool, error) {
	budget := s.config.MaxTraversalNodes
	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []entities.EntityRef
		for _, node := range frontier {
			if err := ctx.Err(); err != nil {
				return false, pkgerrors.Wrap(err, "traversal interrupted")
			}
			if budget > 0 && g.NodeCount() >= budget {
				return true, nil
			}
			links, err := s.GetEntityLinks(ctx, node, opts)
			if err != nil {
				return false, err
			}
			for _, link := range links {
				next = append(next, g.AddLink(link)...)
			}
		}
		if done != nil && done() {
			return false, nil
		}
		frontier = next
	}
	return false, nil
}

// ValidateNoCycle reports whether adding from -> to with kind keeps the
// dependency graph acyclic. Kinds outside the dependency class always pass.
func (s *LinkService) ValidateNoCycle(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind) (ok bool, err error) {
	ctx, end := s.tracer.Start(ctx, "ValidateNoCycle")
	defer func() { end(err) }()

	if err := checkRef("from", from); err != nil {
		return false, err
	}
	if err := checkRef("to", to); err != nil {
		return false, err
	}
	if from.TenantID != to.TenantID {
		return false, pkgerrors.NewTenantMismatch(from.TenantID, to.TenantID)
	}

	ok, err = s.CheckNoCycle(ctx, from, to, kind, validators.CycleScope{})
	if err != nil {
		return false, pkgerrors.Wrap(err, "failed to check for cycles")
	}
	return ok, nil
}

// CheckNoCycle implements validators.CycleChecker. Links of every
// dependency-class kind are followed in stored direction; the link from -> to
// closes a cycle iff from is reachable from to.
func (s *LinkService) CheckNoCycle(ctx context.Context, from, to entities.EntityRef, kind entities.LinkKind, scope validators.CycleScope) (bool, error) {
	if !kind.IsDependencyClass() {
		return true, nil
	}
	if from.SameEntity(to) {
		return false, nil
	}

	graph := aggregates.NewDependencyGraph()
	for _, p := range scope.Pending {
		if p.From.TenantID == from.TenantID {
			graph.AddLink(p.From, p.To, p.Kind)
		}
	}
	query := ports.EntityLinkQuery{
		Kinds:     entities.DependencyKinds(),
		Direction: entities.DirectionOutgoing,
	}

	visited := map[string]bool{to.Key(): true}
	frontier := []entities.EntityRef{to}
	defer func() { s.metrics.ObserveTraversal("cycle", len(visited)) }()

	for depth := 0; depth < s.config.MaxCycleCheckDepth && len(frontier) > 0; depth++ {
		var next []entities.EntityRef
		for _, node := range frontier {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			if !graph.IsExpanded(node) {
				links, err := s.repo.FindByEntity(ctx, node, query)
				if err != nil {
					return false, fmt.Errorf("failed to load links of %s: %w", node, err)
				}
				for _, link := range links {
					if link.ID == scope.IgnoreLinkID {
						continue
					}
					graph.AddLink(link.From(), link.To(), link.Kind)
				}
				graph.MarkExpanded(node)
			}

			for _, succ := range graph.Successors(node) {
				if succ.SameEntity(from) {
					s.logger.Debug("Cycle detected",
						zap.String("from", from.String()),
						zap.String("to", to.String()),
						zap.String("kind", string(kind)),
						zap.Int("depth", depth+1),
					)
					return false, nil
				}
				if !visited[succ.Key()] {
					visited[succ.Key()] = true
					next = append(next, succ)
				}
			}
		}
		frontier = next
	}
	return true, nil
}

func traversalDirection(d, fallback entities.Direction) (entities.Direction, error) {
	d = d.OrDefault(fallback)
	if !d.IsValid() {
		return "", pkgerrors.NewValidationFailed(fmt.Sprintf("unknown direction %q", d))
	}
	return d, nil
}
