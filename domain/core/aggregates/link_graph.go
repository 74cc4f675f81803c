package aggregates

import (
	"linkgraph/domain/core/entities"
)

// LinkGraph is the in-memory adjacency built for the duration of one traversal.
// Nodes are keyed by (type, id) and links by id; both keep insertion order.
// Not safe for concurrent use.
type LinkGraph struct {
	nodes     map[string]entities.EntityRef
	nodeOrder []string
	links     map[string]*entities.EntityLinkWithDetails
	linkOrder []string
	outgoing  map[string][]string
	incoming  map[string][]string
}

// NewLinkGraph creates a graph seeded with roots.
func NewLinkGraph(roots ...entities.EntityRef) *LinkGraph {
	g := &LinkGraph{
		nodes:    make(map[string]entities.EntityRef),
		links:    make(map[string]*entities.EntityLinkWithDetails),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
	}
	for _, r := range roots {
		g.AddNode(r)
	}
	return g
}

// AddNode adds ref and reports whether it was new.
func (g *LinkGraph) AddNode(ref entities.EntityRef) bool {
	key := ref.Key()
	if _, ok := g.nodes[key]; ok {
		return false
	}
	g.nodes[key] = ref
	g.nodeOrder = append(g.nodeOrder, key)
	return true
}

// HasNode reports whether ref is in the graph.
func (g *LinkGraph) HasNode(ref entities.EntityRef) bool {
	_, ok := g.nodes[ref.Key()]
	return ok
}

// AddLink adds link and its endpoints. It returns the endpoints that were not
// yet in the graph, in (from, to) order. A link seen before adds nothing.
func (g *LinkGraph) AddLink(link *entities.EntityLinkWithDetails) []entities.EntityRef {
	if _, ok := g.links[link.ID]; ok {
		return nil
	}
	g.links[link.ID] = link
	g.linkOrder = append(g.linkOrder, link.ID)

	from, to := link.From(), link.To()
	g.outgoing[from.Key()] = append(g.outgoing[from.Key()], link.ID)
	g.incoming[to.Key()] = append(g.incoming[to.Key()], link.ID)

	var added []entities.EntityRef
	if g.AddNode(from) {
		added = append(added, from)
	}
	if g.AddNode(to) {
		added = append(added, to)
	}
	return added
}

// Nodes returns the nodes in insertion order.
func (g *LinkGraph) Nodes() []entities.EntityRef {
	out := make([]entities.EntityRef, 0, len(g.nodeOrder))
	for _, key := range g.nodeOrder {
		out = append(out, g.nodes[key])
	}
	return out
}

// Links returns the links in insertion order.
func (g *LinkGraph) Links() []*entities.EntityLinkWithDetails {
	out := make([]*entities.EntityLinkWithDetails, 0, len(g.linkOrder))
	for _, id := range g.linkOrder {
		out = append(out, g.links[id])
	}
	return out
}

func (g *LinkGraph) NodeCount() int { return len(g.nodes) }
func (g *LinkGraph) LinkCount() int { return len(g.links) }

// Step is one traversable hop out of a node.
type Step struct {
	Link *entities.EntityLinkWithDetails
	Next entities.EntityRef
}

// Steps lists the hops leaving ref in direction.
func (g *LinkGraph) Steps(ref entities.EntityRef, direction entities.Direction) []Step {
	key := ref.Key()
	var out []Step
	if direction != entities.DirectionIncoming {
		for _, id := range g.outgoing[key] {
			link := g.links[id]
			out = append(out, Step{Link: link, Next: link.To()})
		}
	}
	if direction != entities.DirectionOutgoing {
		for _, id := range g.incoming[key] {
			link := g.links[id]
			out = append(out, Step{Link: link, Next: link.From()})
		}
	}
	return out
}

// ShortestPath finds the fewest-hop chain of links from start to end using only
// links already in the graph. It returns nil when no path of at most maxDepth hops exists.
func (g *LinkGraph) ShortestPath(start, end entities.EntityRef, direction entities.Direction, maxDepth int) []*entities.EntityLinkWithDetails {
	if !g.HasNode(start) || !g.HasNode(end) || start.SameEntity(end) {
		return nil
	}

	type hop struct {
		prev string
		link *entities.EntityLinkWithDetails
	}
	parent := map[string]hop{start.Key(): {}}
	frontier := []entities.EntityRef{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []entities.EntityRef
		for _, node := range frontier {
			for _, step := range g.Steps(node, direction) {
				key := step.Next.Key()
				if _, seen := parent[key]; seen {
					continue
				}
				parent[key] = hop{prev: node.Key(), link: step.Link}
				if step.Next.SameEntity(end) {
					var path []*entities.EntityLinkWithDetails
					for k := key; k != start.Key(); k = parent[k].prev {
						path = append([]*entities.EntityLinkWithDetails{parent[k].link}, path...)
					}
					return path
				}
				next = append(next, step.Next)
			}
		}
		frontier = next
	}
	return nil
}
