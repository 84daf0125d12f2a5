package domain

import (
	"strings"
	"unique"
)

// InternedString is an interned package name. Large graphs repeat the same
// names on many nodes and edges, so they share one handle per distinct name.
type InternedString struct {
	h unique.Handle[string]
}

// NewInternedString interns s.
func NewInternedString(s string) InternedString {
	return InternedString{h: unique.Make(s)}
}

// String returns the name. The zero value is the empty name.
func (is InternedString) String() string {
	if is.IsZero() {
		return ""
	}
	return is.h.Value()
}

// Value returns the underlying handle.
func (is InternedString) Value() unique.Handle[string] {
	return is.h
}

// IsZero reports whether no name was set.
func (is InternedString) IsZero() bool {
	var zero unique.Handle[string]
	return is.h == zero
}

// Scope returns the "@scope" part of a scoped package name, or "".
func (is InternedString) Scope() string {
	s := is.String()
	if !strings.HasPrefix(s, "@") {
		return ""
	}
	scope, _, ok := strings.Cut(s, "/")
	if !ok {
		return ""
	}
	return scope
}

// MarshalText implements encoding.TextMarshaler.
func (is InternedString) MarshalText() ([]byte, error) {
	return []byte(is.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (is *InternedString) UnmarshalText(text []byte) error {
	is.h = unique.Make(string(text))
	return nil
}
