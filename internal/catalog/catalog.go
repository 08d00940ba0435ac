// Package catalog classifies sink types for display.
//
// The catalog is read-only reference data. Sinks whose type is marked
// hidden stay in their collection but are left out of default listings.
package catalog

import (
	"sort"

	"github.com/roach88/entitysync/internal/model"
)

// Entry describes one sink type.
type Entry struct {
	Type   string `json:"type" yaml:"type"`
	Hidden bool   `json:"hidden" yaml:"hidden"`
	Title  string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Catalog looks up sink types.
type Catalog interface {
	Lookup(sinkType string) (Entry, bool)
}

// Static is an in-memory catalog.
type Static map[string]Entry

// Lookup implements Catalog.
func (s Static) Lookup(sinkType string) (Entry, bool) {
	e, ok := s[sinkType]
	return e, ok
}

// Types returns the known sink types, sorted.
func (s Static) Types() []string {
	types := make([]string, 0, len(s))
	for t := range s {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// FromHidden builds a catalog from a type → hidden map.
func FromHidden(hidden map[string]bool) Static {
	s := make(Static, len(hidden))
	for t, h := range hidden {
		s[t] = Entry{Type: t, Hidden: h}
	}
	return s
}

// HiddenSinks returns the hidden predicate for the sinks collection.
// Unknown types are visible. A nil catalog hides nothing.
func HiddenSinks(cat Catalog) func(model.Sink) bool {
	return func(s model.Sink) bool {
		if cat == nil {
			return false
		}
		e, ok := cat.Lookup(s.Type)
		return ok && e.Hidden
	}
}
