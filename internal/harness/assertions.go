package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/orphans"
)

// AssertionError is a failed assertion with enough context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Steps    []StepTrace
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Steps) > 0 {
		fmt.Fprintf(&buf, "\nRemote calls:\n")
		n := 0
		for _, step := range e.Steps {
			for _, c := range step.Calls {
				n++
				fmt.Fprintf(&buf, "  [%d] %s: %s %s %s\n", n, step.Op, c.Collection, c.Method, c.ID)
			}
		}
	}
	return buf.String()
}

// evaluate checks every assertion and returns the failure messages.
func (h *Harness) evaluate(assertions []Assertion, result *Result) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRemoteCalls:
			err = assertRemoteCalls(result, a)
		case AssertFinalState:
			err = h.assertFinalState(a)
		case AssertOrphans:
			err = assertOrphans(result.Warnings, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func assertRemoteCalls(result *Result, a Assertion) error {
	count := 0
	for _, c := range result.Calls() {
		if a.Collection != "" && c.Collection != a.Collection {
			continue
		}
		if a.Method != "" && c.Method != a.Method {
			continue
		}
		if a.ID != "" && c.ID != a.ID {
			continue
		}
		count++
	}
	if count == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRemoteCalls,
		Expected: fmt.Sprintf("%d call(s) matching %s", *a.Count, describeFilter(a)),
		Actual:   fmt.Sprintf("%d call(s)", count),
		Steps:    result.Steps,
	}
}

func describeFilter(a Assertion) string {
	var parts []string
	if a.Collection != "" {
		parts = append(parts, "collection="+a.Collection)
	}
	if a.Method != "" {
		parts = append(parts, "method="+a.Method)
	}
	if a.ID != "" {
		parts = append(parts, "id="+a.ID)
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

// assertFinalState checks the cached entity and the remote copy. Both must
// satisfy the expectation, which makes every final_state assertion a
// write-through check as well.
func (h *Harness) assertFinalState(a Assertion) error {
	cached, inCache, err := h.cached(a.Collection, a.ID)
	if err != nil {
		return err
	}
	stored, inRemote, err := h.remotes.Snapshot(a.Collection, a.ID)
	if err != nil {
		return err
	}

	if a.Absent {
		if inCache || inRemote {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s %s absent", a.Collection, a.ID),
				Actual:   fmt.Sprintf("cached=%t remote=%t", inCache, inRemote),
			}
		}
		return nil
	}

	if !inCache || !inRemote {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s present", a.Collection, a.ID),
			Actual:   fmt.Sprintf("cached=%t remote=%t", inCache, inRemote),
		}
	}

	expect := a.Expect
	if expect == nil {
		expect = map[string]any{}
	}
	expected, err := model.ToGeneric(expect)
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}
	for _, side := range []struct {
		name  string
		value any
	}{{"cache", cached}, {"remote", stored}} {
		if path, ok := subsetMatch(side.value, expected, ""); !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s %s matches %v", a.Collection, a.ID, a.Expect),
				Actual:   fmt.Sprintf("%s differs at %s: %v", side.name, path, side.value),
			}
		}
	}
	return nil
}

func (h *Harness) cached(collection, id string) (any, bool, error) {
	var (
		entity any
		ok     bool
	)
	switch collection {
	case model.CollectionKeys:
		entity, ok = h.registry.Keys.Find(id)
	case model.CollectionSinks:
		entity, ok = h.registry.Sinks.Find(id)
	case model.CollectionSources:
		entity, ok = h.registry.Sources.Find(id)
	default:
		return nil, false, fmt.Errorf("unknown collection %q", collection)
	}
	if !ok {
		return nil, false, nil
	}
	g, err := model.ToGeneric(entity)
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

// subsetMatch reports whether every field of expected appears in actual
// with an equal value. Objects match as subsets, everything else must be
// equal. On mismatch it returns the dotted path of the first difference.
func subsetMatch(actual, expected any, path string) (string, bool) {
	want, isObject := expected.(map[string]any)
	if !isObject {
		if reflect.DeepEqual(actual, expected) {
			return "", true
		}
		return orRoot(path), false
	}
	got, ok := actual.(map[string]any)
	if !ok {
		return orRoot(path), false
	}

	keys := make([]string, 0, len(want))
	for k := range want {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		child := k
		if path != "" {
			child = path + "." + k
		}
		v, present := got[k]
		if !present {
			return child, false
		}
		if p, ok := subsetMatch(v, want[k], child); !ok {
			return p, false
		}
	}
	return "", true
}

func orRoot(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

func assertOrphans(warnings []orphans.Warning, a Assertion) error {
	counts := orphans.Count(warnings)
	var missing []string
	for _, kind := range a.Kinds {
		if counts[orphans.Kind(kind)] == 0 {
			missing = append(missing, kind)
		}
	}
	countOK := a.Count == nil || *a.Count == len(warnings)
	if len(missing) == 0 && countOK {
		return nil
	}

	var actual []string
	for _, w := range warnings {
		actual = append(actual, fmt.Sprintf("%s(%s)", w.Kind, w.ID))
	}
	expected := fmt.Sprintf("kinds %v", a.Kinds)
	if a.Count != nil {
		expected += fmt.Sprintf(", %d warning(s)", *a.Count)
	}
	return &AssertionError{
		Type:     AssertOrphans,
		Expected: expected,
		Actual:   fmt.Sprintf("%d warning(s): %s", len(warnings), strings.Join(actual, ", ")),
	}
}
