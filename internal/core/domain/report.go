package domain

import (
	"cmp"
	"slices"
	"sync"
)

// Unresolved describes a dependency that could not be resolved.
type Unresolved struct {
	From DepID
	Spec Spec
	Type DependencyType
	Err  error
}

// ResolutionReport collects the specifiers that resolved to missing edges.
type ResolutionReport struct {
	mu      sync.Mutex
	entries []Unresolved
}

// Add records an unresolved dependency.
func (r *ResolutionReport) Add(u Unresolved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, u)
}

// Entries returns the recorded entries sorted by source and name.
func (r *ResolutionReport) Entries() []Unresolved {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.entries)
	slices.SortFunc(out, func(a, b Unresolved) int {
		return cmp.Or(a.From.Compare(b.From), cmp.Compare(a.Spec.Name, b.Spec.Name))
	})
	return out
}

// Len returns the number of unresolved dependencies.
func (r *ResolutionReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// HasRequired reports whether any unresolved dependency is not optional.
func (r *ResolutionReport) HasRequired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.entries, func(u Unresolved) bool { return !u.Type.IsOptional() })
}
