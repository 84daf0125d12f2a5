package domain

import (
	"slices"
)

// NodeChanges holds the nodes to add and delete.
type NodeChanges struct {
	Add    []*Node
	Delete []*Node
}

// EdgeChanges holds the edges to add and delete.
type EdgeChanges struct {
	Add    []*Edge
	Delete []*Edge
}

// Diff is the set of changes that turns an actual graph into an ideal graph.
type Diff struct {
	Nodes NodeChanges
	Edges EdgeChanges
}

// ComputeDiff compares an actual graph with an ideal graph over the same importers.
// Nodes are equal iff their ids are equal; a node whose id is present in both
// graphs at a different location is deleted and re-added, never moved. Edges are
// equal iff from, to, type and name are equal. Results are sorted.
func ComputeDiff(actual, ideal *Graph) *Diff {
	d := &Diff{}

	for n := range ideal.Nodes() {
		prev, ok := actual.Node(n.ID)
		switch {
		case !ok:
			d.Nodes.Add = append(d.Nodes.Add, n)
		case prev.Location != n.Location && !n.Importer:
			d.Nodes.Delete = append(d.Nodes.Delete, prev)
			d.Nodes.Add = append(d.Nodes.Add, n)
		}
	}
	for n := range actual.Nodes() {
		if _, ok := ideal.Node(n.ID); !ok {
			d.Nodes.Delete = append(d.Nodes.Delete, n)
		}
	}

	actualEdges := edgeIndex(actual)
	idealEdges := edgeIndex(ideal)
	for e := range ideal.Edges() {
		if _, ok := actualEdges[e.Key()]; !ok {
			d.Edges.Add = append(d.Edges.Add, e)
		}
	}
	for e := range actual.Edges() {
		if _, ok := idealEdges[e.Key()]; !ok {
			d.Edges.Delete = append(d.Edges.Delete, e)
		}
	}

	// Edges touching a relocated node are re-linked as well.
	relocated := make(map[DepID]bool)
	for _, n := range d.Nodes.Delete {
		if _, ok := ideal.Node(n.ID); ok {
			relocated[n.ID] = true
		}
	}
	if len(relocated) > 0 {
		for e := range ideal.Edges() {
			if (relocated[e.To] || relocated[e.From]) && !slices.Contains(d.Edges.Add, e) {
				if prev, ok := actualEdges[e.Key()]; ok {
					d.Edges.Delete = append(d.Edges.Delete, prev)
					d.Edges.Add = append(d.Edges.Add, e)
				}
			}
		}
	}

	slices.SortFunc(d.Nodes.Add, compareNodes)
	slices.SortFunc(d.Nodes.Delete, compareNodes)
	slices.SortFunc(d.Edges.Add, CompareEdges)
	slices.SortFunc(d.Edges.Delete, CompareEdges)
	return d
}

// HasChanges reports whether applying the diff would change anything.
func (d *Diff) HasChanges() bool {
	return len(d.Nodes.Add)+len(d.Nodes.Delete)+len(d.Edges.Add)+len(d.Edges.Delete) > 0
}

// Apply returns a copy of actual with the diff applied: deleted edges and nodes
// are removed, then added nodes and edges are inserted.
func (d *Diff) Apply(actual *Graph) (*Graph, error) {
	g := actual.Clone()
	for _, e := range d.Edges.Delete {
		if cur, ok := g.EdgeOut(e.From, e.Name); ok && cur.Key() == e.Key() {
			g.RemoveEdge(cur)
		}
	}
	for _, n := range d.Nodes.Delete {
		if err := g.RemoveNode(n.ID, true); err != nil {
			return nil, err
		}
	}
	for _, n := range d.Nodes.Add {
		if n.Importer {
			g.AddImporter(n)
			continue
		}
		g.AddNode(n)
	}
	for _, e := range d.Edges.Add {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	// Edges left dangling by a node deletion are dropped when the diff did not re-add them.
	before := edgeIndex(actual)
	for _, e := range g.MissingEdges() {
		if _, declared := before[e.Key()]; !declared && !containsEdgeKey(d.Edges.Add, e.Key()) {
			g.RemoveEdge(e)
		}
	}
	return g, nil
}

// Summary returns the number of added and deleted nodes and edges.
func (d *Diff) Summary() (nodesAdded, nodesDeleted, edgesAdded, edgesDeleted int) {
	return len(d.Nodes.Add), len(d.Nodes.Delete), len(d.Edges.Add), len(d.Edges.Delete)
}

func edgeIndex(g *Graph) map[EdgeKey]*Edge {
	idx := make(map[EdgeKey]*Edge, g.EdgeCount())
	for e := range g.Edges() {
		idx[e.Key()] = e
	}
	return idx
}

func containsEdgeKey(edges []*Edge, k EdgeKey) bool {
	return slices.ContainsFunc(edges, func(e *Edge) bool { return e.Key() == k })
}

func compareNodes(a, b *Node) int {
	return a.ID.Compare(b.ID)
}
