// Package orphans derives warnings about entities with missing or
// inconsistent links. It reads collection snapshots and never mutates.
package orphans

import (
	"fmt"
	"sort"

	"github.com/roach88/entitysync/internal/model"
)

// Kind classifies a warning.
type Kind string

const (
	// KeyUnlinked: no sink lists the key in onlyKeys.
	KeyUnlinked Kind = "key_unlinked"
	// SinkWithoutSources: a visible sink no source feeds.
	SinkWithoutSources Kind = "sink_without_sources"
	// SourceWithoutDestinations: a source with no destinations.
	SourceWithoutDestinations Kind = "source_without_destinations"

	// The remaining kinds indicate a consistency bug rather than a
	// configuration gap.

	// DanglingKeyRef: a sink's onlyKeys names a missing key.
	DanglingKeyRef Kind = "dangling_key_ref"
	// DanglingSourceRef: a sink's sources names a missing source.
	DanglingSourceRef Kind = "dangling_source_ref"
	// DanglingDestinationRef: a source's destinations names a missing sink.
	DanglingDestinationRef Kind = "dangling_destination_ref"
	// EdgeDisagreement: sink.sources and source.destinations disagree.
	EdgeDisagreement Kind = "edge_disagreement"
)

// Severity of a warning.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Severity returns how serious warnings of this kind are.
func (k Kind) Severity() Severity {
	switch k {
	case KeyUnlinked, SinkWithoutSources, SourceWithoutDestinations:
		return SeverityWarning
	}
	return SeverityError
}

// Warning is one finding.
type Warning struct {
	Kind       Kind   `json:"kind"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Ref        string `json:"ref,omitempty"`
	Message    string `json:"message"`
}

// Snapshot is the read surface of the three collections.
type Snapshot struct {
	Keys []model.Key
	// Sinks are the visible sinks.
	Sinks       []model.Sink
	HiddenSinks []model.Sink
	Sources     []model.Source
}

// Detect scans the snapshot. Warnings are sorted by kind, id, then ref.
func Detect(s Snapshot) []Warning {
	var out []Warning
	add := func(kind Kind, collection, id, ref, format string, args ...any) {
		out = append(out, Warning{
			Kind:       kind,
			Collection: collection,
			ID:         id,
			Ref:        ref,
			Message:    fmt.Sprintf(format, args...),
		})
	}

	allSinks := make([]model.Sink, 0, len(s.Sinks)+len(s.HiddenSinks))
	allSinks = append(allSinks, s.Sinks...)
	allSinks = append(allSinks, s.HiddenSinks...)

	keys := make(map[string]bool, len(s.Keys))
	for _, k := range s.Keys {
		keys[k.UID] = true
	}
	sinks := make(map[string]model.Sink, len(allSinks))
	linkedKeys := make(map[string]bool)
	for _, d := range allSinks {
		sinks[d.UID] = d
		for _, uid := range d.OnlyKeys {
			linkedKeys[uid] = true
		}
	}
	sources := make(map[string]model.Source, len(s.Sources))
	for _, src := range s.Sources {
		sources[src.ID] = src
	}

	for _, k := range s.Keys {
		if !linkedKeys[k.UID] {
			add(KeyUnlinked, model.CollectionKeys, k.UID, "", "key %s is not linked to any destination", k.UID)
		}
	}

	for _, d := range s.Sinks {
		if len(d.Sources) == 0 {
			add(SinkWithoutSources, model.CollectionSinks, d.UID, "", "destination %s has no sources", d.UID)
		}
	}

	for _, d := range allSinks {
		for _, uid := range d.OnlyKeys {
			if !keys[uid] {
				add(DanglingKeyRef, model.CollectionSinks, d.UID, uid, "destination %s lists missing key %s", d.UID, uid)
			}
		}
		for _, id := range d.Sources {
			src, ok := sources[id]
			if !ok {
				add(DanglingSourceRef, model.CollectionSinks, d.UID, id, "destination %s lists missing source %s", d.UID, id)
				continue
			}
			if !model.Contains(src.Destinations, d.UID) {
				add(EdgeDisagreement, model.CollectionSinks, d.UID, id,
					"destination %s lists source %s, but the source does not list it", d.UID, id)
			}
		}
	}

	for _, src := range s.Sources {
		if len(src.Destinations) == 0 {
			add(SourceWithoutDestinations, model.CollectionSources, src.ID, "", "source %s has no destinations", src.ID)
		}
		for _, uid := range src.Destinations {
			d, ok := sinks[uid]
			if !ok {
				add(DanglingDestinationRef, model.CollectionSources, src.ID, uid, "source %s lists missing destination %s", src.ID, uid)
				continue
			}
			if !model.Contains(d.Sources, src.ID) {
				add(EdgeDisagreement, model.CollectionSources, src.ID, uid,
					"source %s lists destination %s, but the destination does not list it", src.ID, uid)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Ref != b.Ref {
			return a.Ref < b.Ref
		}
		return a.Collection < b.Collection
	})
	if out == nil {
		out = []Warning{}
	}
	return out
}

// Count returns the number of warnings per kind.
func Count(warnings []Warning) map[Kind]int {
	counts := make(map[Kind]int)
	for _, w := range warnings {
		counts[w.Kind]++
	}
	return counts
}

// HasErrors reports whether any warning indicates a consistency bug.
func HasErrors(warnings []Warning) bool {
	for _, w := range warnings {
		if w.Kind.Severity() == SeverityError {
			return true
		}
	}
	return false
}
