package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Partial is a patch payload: a subset of an entity's top-level fields.
type Partial map[string]any

// MaxPatchDepth is the deepest patch the remote patch semantics can merge
// safely. {"a": 1} has depth 1, {"a": {"b": 1}} has depth 2.
const MaxPatchDepth = 2

// Keys returns the top-level field names of the patch.
func (p Partial) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	return keys
}

// Depth returns the nesting depth of the patch. Objects add a level,
// arrays do not, though objects inside arrays still count.
func Depth(p Partial) (int, error) {
	v, err := ToGeneric(map[string]any(p))
	if err != nil {
		return 0, fmt.Errorf("patch depth: %w", err)
	}
	return depthOf(v), nil
}

func depthOf(v any) int {
	switch val := v.(type) {
	case map[string]any:
		deepest := 0
		for _, child := range val {
			if d := depthOf(child); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	case []any:
		deepest := 0
		for _, child := range val {
			if d := depthOf(child); d > deepest {
				deepest = d
			}
		}
		return deepest
	default:
		return 0
	}
}

// ToGeneric converts any JSON-marshalable value to its generic form
// (map[string]any, []any, string, json.Number, bool, nil).
func ToGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToPartial converts an entity to its full field map.
func ToPartial(v any) (Partial, error) {
	g, err := ToGeneric(v)
	if err != nil {
		return nil, err
	}
	m, ok := g.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", g)
	}
	return Partial(m), nil
}

// Apply returns a copy of entity with the patch's top-level fields merged
// over it. The merge is shallow: a nested object in the patch replaces the
// whole field.
func Apply[T any](entity T, patch Partial) (T, error) {
	var zero T
	fields, err := ToPartial(entity)
	if err != nil {
		return zero, fmt.Errorf("apply patch: %w", err)
	}
	for k, v := range patch {
		fields[k] = v
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("apply patch: %w", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("apply patch: %w", err)
	}
	return out, nil
}

// Clone returns a deep copy of entity via a JSON round trip.
func Clone[T any](entity T) (T, error) {
	return Apply(entity, nil)
}
