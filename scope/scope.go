package scope

import (
	"sort"
	"strings"
)

// Set is a case-sensitive set of scope strings.
type Set map[string]struct{}

// New builds a Set from individual scope strings. Empty strings are dropped.
func New(scopes ...string) Set {
	s := make(Set, len(scopes))
	for _, sc := range scopes {
		if sc == "" {
			continue
		}
		s[sc] = struct{}{}
	}
	return s
}

// Parse builds a Set from the space-delimited wire form. Repeated scopes
// collapse to one element; leading, trailing, and repeated whitespace is
// tolerated.
func Parse(raw string) Set {
	fields := strings.Fields(raw)
	s := make(Set, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// Contains reports whether sc is a member of s.
func (s Set) Contains(sc string) bool {
	_, ok := s[sc]
	return ok
}

// IsSubset reports whether every member of s is also a member of other.
// The empty set is a subset of everything.
func (s Set) IsSubset(other Set) bool {
	for sc := range s {
		if _, ok := other[sc]; !ok {
			return false
		}
	}
	return true
}

// Intersect returns the scopes present in both s and other.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	for sc := range s {
		if _, ok := other[sc]; ok {
			out[sc] = struct{}{}
		}
	}
	return out
}

// Union returns the scopes present in either s or other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for sc := range s {
		out[sc] = struct{}{}
	}
	for sc := range other {
		out[sc] = struct{}{}
	}
	return out
}

// Equal reports whether s and other hold exactly the same scopes.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	return s.IsSubset(other)
}

// Len returns the number of scopes in the set.
func (s Set) Len() int {
	return len(s)
}

// IsEmpty reports whether the set has no members.
func (s Set) IsEmpty() bool {
	return len(s) == 0
}

// List returns the scopes in sorted order. The sort keeps output stable for
// logging and for the wire form.
func (s Set) List() []string {
	out := make([]string, 0, len(s))
	for sc := range s {
		out = append(out, sc)
	}
	sort.Strings(out)
	return out
}

// String renders the sorted space-delimited wire form. The empty set renders
// as the empty string.
func (s Set) String() string {
	return strings.Join(s.List(), " ")
}
