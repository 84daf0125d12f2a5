// Package domain contains the core domain models of the dependency graph:
// identifiers, specifiers, manifests, nodes, edges, graphs and diffs.
package domain

import (
	"iter"
	"maps"
	"slices"

	"go.trai.ch/zerr"
)

// Graph is a set of resolved packages and their dependency relationships.
// Nodes are stored in an arena keyed by DepID and edges refer to nodes by id.
// A graph is mutated only by its builder; afterwards it is treated as read-only.
type Graph struct {
	// ProjectRoot is the absolute path of the project the graph describes.
	ProjectRoot string
	// Registries maps registry aliases to base URLs.
	Registries map[string]string

	importers []DepID
	nodes     map[DepID]*Node
	out       map[DepID]map[string]*Edge
	in        map[DepID]map[*Edge]struct{}
}

// NewGraph creates an empty graph for a project root.
func NewGraph(root string) *Graph {
	return &Graph{
		ProjectRoot: root,
		Registries:  make(map[string]string),
		nodes:       make(map[DepID]*Node),
		out:         make(map[DepID]map[string]*Edge),
		in:          make(map[DepID]map[*Edge]struct{}),
	}
}

// AddImporter adds a project root or workspace node.
func (g *Graph) AddImporter(n *Node) *Node {
	n.Importer = true
	existing := g.AddNode(n)
	if !slices.Contains(g.importers, existing.ID) {
		g.importers = append(g.importers, existing.ID)
	}
	return existing
}

// Importers returns the importer nodes in insertion order.
func (g *Graph) Importers() []*Node {
	out := make([]*Node, 0, len(g.importers))
	for _, id := range g.importers {
		out = append(out, g.nodes[id])
	}
	return out
}

// IsImporter reports whether id is one of the graph's importers.
func (g *Graph) IsImporter(id DepID) bool {
	return slices.Contains(g.importers, id)
}

// AddNode inserts n unless a node with the same id exists, and returns the node stored in the graph.
func (g *Graph) AddNode(n *Node) *Node {
	if existing, ok := g.nodes[n.ID]; ok {
		return existing
	}
	g.nodes[n.ID] = n
	return n
}

// Node returns the node with the given id.
func (g *Graph) Node(id DepID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeCount returns the number of nodes, importers included.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Nodes yields every node in DepID order.
func (g *Graph) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
			if !yield(g.nodes[id]) {
				return
			}
		}
	}
}

// AddEdge adds an edge, replacing any edge declared under the same name on the same node.
func (g *Graph) AddEdge(e *Edge) error {
	if _, ok := g.nodes[e.From]; !ok {
		return zerr.With(zerr.Wrap(ErrUnknownNode, "edge source is not in the graph"), "id", e.From.String())
	}
	if !e.Missing() {
		if _, ok := g.nodes[e.To]; !ok {
			return zerr.With(zerr.Wrap(ErrUnknownNode, "edge target is not in the graph"), "id", e.To.String())
		}
	}

	if prev, ok := g.out[e.From][e.Name]; ok {
		g.RemoveEdge(prev)
	}
	if g.out[e.From] == nil {
		g.out[e.From] = make(map[string]*Edge)
	}
	g.out[e.From][e.Name] = e
	if !e.Missing() {
		if g.in[e.To] == nil {
			g.in[e.To] = make(map[*Edge]struct{})
		}
		g.in[e.To][e] = struct{}{}
	}
	return nil
}

// RemoveEdge removes e from the graph. It is a no-op when e is not present.
func (g *Graph) RemoveEdge(e *Edge) {
	if cur, ok := g.out[e.From][e.Name]; !ok || cur != e {
		return
	}
	delete(g.out[e.From], e.Name)
	if len(g.out[e.From]) == 0 {
		delete(g.out, e.From)
	}
	if !e.Missing() {
		delete(g.in[e.To], e)
		if len(g.in[e.To]) == 0 {
			delete(g.in, e.To)
		}
	}
}

// EdgeOut returns the edge declared under name on node id.
func (g *Graph) EdgeOut(id DepID, name string) (*Edge, bool) {
	e, ok := g.out[id][name]
	return e, ok
}

// EdgesOut returns the outgoing edges of id sorted by name.
func (g *Graph) EdgesOut(id DepID) []*Edge {
	return slices.SortedFunc(maps.Values(g.out[id]), CompareEdges)
}

// EdgesIn returns the incoming edges of id sorted.
func (g *Graph) EdgesIn(id DepID) []*Edge {
	return slices.SortedFunc(maps.Keys(g.in[id]), CompareEdges)
}

// Edges yields every edge, missing edges included, in sorted order.
func (g *Graph) Edges() iter.Seq[*Edge] {
	return func(yield func(*Edge) bool) {
		for _, from := range slices.Sorted(maps.Keys(g.out)) {
			for _, e := range g.EdgesOut(from) {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// EdgeCount returns the number of edges, missing edges included.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.out {
		n += len(edges)
	}
	return n
}

// MissingEdges returns the unresolved edges in sorted order.
func (g *Graph) MissingEdges() []*Edge {
	var missing []*Edge
	for e := range g.Edges() {
		if e.Missing() {
			missing = append(missing, e)
		}
	}
	return missing
}

// RemoveNode removes a node and its outgoing edges. A node that still has
// incoming edges is only removed when force is set, in which case those edges
// are replaced by missing edges.
func (g *Graph) RemoveNode(id DepID, force bool) error {
	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	if incoming := g.EdgesIn(id); len(incoming) > 0 {
		if !force {
			return zerr.With(zerr.Wrap(ErrNodeInUse, "cannot remove node"), "id", id.String())
		}
		for _, e := range incoming {
			replacement := *e
			replacement.To = ""
			// The source exists, so AddEdge cannot fail here.
			_ = g.AddEdge(&replacement)
		}
	}
	for _, e := range g.EdgesOut(id) {
		g.RemoveEdge(e)
	}
	delete(g.nodes, id)
	g.importers = slices.DeleteFunc(g.importers, func(i DepID) bool { return i == id })
	return nil
}

// Validate checks that every resolved edge points at a node of the graph.
func (g *Graph) Validate() error {
	for e := range g.Edges() {
		if e.Missing() {
			continue
		}
		if _, ok := g.nodes[e.To]; !ok {
			return zerr.With(zerr.Wrap(ErrUnknownNode, "dangling edge"), "id", e.To.String())
		}
	}
	return nil
}

// TopoOrder returns the ids of subset ordered so that every node comes after the
// nodes it depends on. Only edges between members of subset constrain the order.
// Cycles are broken by releasing the smallest remaining id.
func (g *Graph) TopoOrder(subset []DepID) []DepID {
	member := make(map[DepID]bool, len(subset))
	for _, id := range subset {
		member[id] = true
	}

	pending := make(map[DepID]int, len(subset))
	for id := range member {
		deps := 0
		for _, e := range g.out[id] {
			if !e.Missing() && e.To != id && member[e.To] {
				deps++
			}
		}
		pending[id] = deps
	}

	order := make([]DepID, 0, len(member))
	done := make(map[DepID]bool, len(member))
	release := func(id DepID) {
		done[id] = true
		order = append(order, id)
		for e := range g.in[id] {
			if member[e.From] && !done[e.From] && e.From != id {
				pending[e.From]--
			}
		}
	}

	for len(order) < len(member) {
		var ready []DepID
		for id, n := range pending {
			if !done[id] && n <= 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			// Every remaining node is on a cycle.
			var rest []DepID
			for id := range pending {
				if !done[id] {
					rest = append(rest, id)
				}
			}
			ready = []DepID{slices.MinFunc(rest, DepID.Compare)}
		}
		slices.SortFunc(ready, DepID.Compare)
		for _, id := range ready {
			release(id)
		}
	}
	return order
}

// Clone returns a copy of the graph sharing node values but not structure.
func (g *Graph) Clone() *Graph {
	c := NewGraph(g.ProjectRoot)
	maps.Copy(c.Registries, g.Registries)
	c.importers = slices.Clone(g.importers)
	maps.Copy(c.nodes, g.nodes)
	for e := range g.Edges() {
		_ = c.AddEdge(e)
	}
	return c
}

// RecomputeFlags marks nodes that are reachable from the importers only
// through dev edges as dev, and only through optional edges as optional.
func (g *Graph) RecomputeFlags() {
	notDev := g.reachable(func(e *Edge) bool { return e.Type != DepDev })
	notOptional := g.reachable(func(e *Edge) bool { return !e.Type.IsOptional() })
	for id, n := range g.nodes {
		if n.Importer {
			n.Dev, n.Optional = false, false
			continue
		}
		n.Dev = !notDev[id]
		n.Optional = !notOptional[id]
	}
}

func (g *Graph) reachable(follow func(*Edge) bool) map[DepID]bool {
	seen := make(map[DepID]bool, len(g.nodes))
	queue := slices.Clone(g.importers)
	for _, id := range queue {
		seen[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.out[id] {
			if e.Missing() || seen[e.To] || !follow(e) {
				continue
			}
			seen[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return seen
}
