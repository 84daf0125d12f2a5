package domain

import "cmp"

// Edge is a typed dependency relationship from one node to another.
// An edge whose To is the zero DepID is missing: the dependency is unresolved.
type Edge struct {
	From DepID
	To   DepID
	Type DependencyType
	// Name is the dependency name the edge is declared under in From's manifest.
	Name string
	Spec Spec
	// Overridden is set when a resolution override replaced the declared specifier.
	Overridden bool
}

// EdgeKey identifies an edge for diffing.
type EdgeKey struct {
	From DepID
	To   DepID
	Type DependencyType
	Name string
}

// Key returns the comparison key of the edge.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{From: e.From, To: e.To, Type: e.Type, Name: e.Name}
}

// Missing reports whether the edge is unresolved.
func (e *Edge) Missing() bool {
	return e.To.IsMissing()
}

// CompareEdges orders edges by from, name, type and target.
func CompareEdges(a, b *Edge) int {
	return cmp.Or(
		a.From.Compare(b.From),
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.Type, b.Type),
		a.To.Compare(b.To),
	)
}
