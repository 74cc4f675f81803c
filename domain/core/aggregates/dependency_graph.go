package aggregates

import (
	"linkgraph/domain/core/entities"
)

// DependencyGraph holds dependency-class links in their stored direction.
// Every dependency-class kind contributes to the same relation.
type DependencyGraph struct {
	successors map[string][]entities.EntityRef
	edges      map[string]struct{}
	expanded   map[string]bool
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		successors: make(map[string][]entities.EntityRef),
		edges:      make(map[string]struct{}),
		expanded:   make(map[string]bool),
	}
}

// AddLink records a from->to link of kind. Kinds outside the dependency class
// are ignored, as are repeated edges.
func (g *DependencyGraph) AddLink(from, to entities.EntityRef, kind entities.LinkKind) bool {
	if !kind.IsDependencyClass() {
		return false
	}
	edgeKey := from.Key() + ">" + to.Key()
	if _, ok := g.edges[edgeKey]; ok {
		return false
	}
	g.edges[edgeKey] = struct{}{}
	g.successors[from.Key()] = append(g.successors[from.Key()], to)
	return true
}

// Successors lists the targets of ref's outgoing links.
func (g *DependencyGraph) Successors(ref entities.EntityRef) []entities.EntityRef {
	return g.successors[ref.Key()]
}

// MarkExpanded records that every stored link of ref has been loaded.
func (g *DependencyGraph) MarkExpanded(ref entities.EntityRef) {
	g.expanded[ref.Key()] = true
}

// IsExpanded reports whether ref's stored links have been loaded.
func (g *DependencyGraph) IsExpanded(ref entities.EntityRef) bool {
	return g.expanded[ref.Key()]
}

// Reaches reports whether target can be reached from start in at most maxDepth
// hops over the links loaded so far.
func (g *DependencyGraph) Reaches(start, target entities.EntityRef, maxDepth int) bool {
	if start.SameEntity(target) {
		return true
	}
	visited := map[string]bool{start.Key(): true}
	frontier := []entities.EntityRef{start}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []entities.EntityRef
		for _, node := range frontier {
			for _, succ := range g.Successors(node) {
				if succ.SameEntity(target) {
					return true
				}
				if !visited[succ.Key()] {
					visited[succ.Key()] = true
					next = append(next, succ)
				}
			}
		}
		frontier = next
	}
	return false
}
