package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/entitysync/internal/model"
)

// Scenario is one executable test case.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Catalog maps sink type to hidden.
	Catalog map[string]bool `yaml:"catalog,omitempty"`

	// Seed is the remote state before the initial pull.
	Seed Seed `yaml:"seed,omitempty"`

	// Setup runs after the initial pull and is not traced. Setup steps
	// must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Seed holds entities in their wire form.
type Seed struct {
	Keys    []map[string]any `yaml:"keys,omitempty"`
	Sinks   []map[string]any `yaml:"sinks,omitempty"`
	Sources []map[string]any `yaml:"sources,omitempty"`
}

// Step is one operation. Args depend on the operation; see ops.go.
type Step struct {
	Op   string         `yaml:"op"`
	Args map[string]any `yaml:"args,omitempty"`

	// ExpectError names the error kind the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion checks the outcome of the flow.
type Assertion struct {
	// Type is one of remote_calls, final_state, orphans.
	Type string `yaml:"type"`

	// Collection and ID select calls (remote_calls) or an entity (final_state).
	Collection string `yaml:"collection,omitempty"`
	ID         string `yaml:"id,omitempty"`

	// Method filters remote_calls. Empty matches every method.
	Method string `yaml:"method,omitempty"`

	// Count is the expected number of calls or warnings.
	Count *int `yaml:"count,omitempty"`

	// Expect is a subset of the entity's wire form (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent requires that the entity exist neither in cache nor remote.
	Absent bool `yaml:"absent,omitempty"`

	// Kinds lists warning kinds that must be present (orphans).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion types.
const (
	AssertRemoteCalls = "remote_calls"
	AssertFinalState  = "final_state"
	AssertOrphans     = "orphans"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml and *.yml file in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := LoadScenario(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if len(s.Flow) == 0 {
		errs = append(errs, errors.New("flow list is required and must be non-empty"))
	}

	for i, step := range s.Setup {
		if _, ok := operations[step.Op]; !ok {
			errs = append(errs, fmt.Errorf("setup step %d: unknown op %q", i, step.Op))
		}
		if step.ExpectError != "" {
			errs = append(errs, fmt.Errorf("setup step %d: expect_error is not allowed in setup", i))
		}
	}
	for i, step := range s.Flow {
		if _, ok := operations[step.Op]; !ok {
			errs = append(errs, fmt.Errorf("flow step %d: unknown op %q", i, step.Op))
		}
		if step.ExpectError != "" {
			if _, ok := errorKinds[step.ExpectError]; !ok {
				errs = append(errs, fmt.Errorf("flow step %d: unknown error kind %q", i, step.ExpectError))
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			errs = append(errs, fmt.Errorf("assertion %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertRemoteCalls:
		if a.Count == nil {
			return errors.New("remote_calls requires count")
		}
	case AssertFinalState:
		if a.Collection == "" || a.ID == "" {
			return errors.New("final_state requires collection and id")
		}
		if a.Absent && len(a.Expect) > 0 {
			return errors.New("final_state cannot combine absent with expect")
		}
	case AssertOrphans:
		if a.Count == nil && len(a.Kinds) == 0 {
			return errors.New("orphans requires kinds or count")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	if a.Collection != "" && !knownCollection(a.Collection) {
		return fmt.Errorf("unknown collection %q", a.Collection)
	}
	return nil
}

func knownCollection(name string) bool {
	switch name {
	case model.CollectionKeys, model.CollectionSinks, model.CollectionSources:
		return true
	}
	return false
}

// decodeValue converts a YAML-decoded value into T through its JSON form.
// Unknown fields are rejected unless T decodes them itself.
func decodeValue[T any](v any) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func decodeSeed(s Seed) ([]model.Key, []model.Sink, []model.Source, error) {
	keys, err := decodeEach[model.Key](s.Keys)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("seed keys: %w", err)
	}
	sinks, err := decodeEach[model.Sink](s.Sinks)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("seed sinks: %w", err)
	}
	sources, err := decodeEach[model.Source](s.Sources)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("seed sources: %w", err)
	}
	return keys, sinks, sources, nil
}

func decodeEach[T any](raw []map[string]any) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		v, err := decodeValue[T](r)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}
