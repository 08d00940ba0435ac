package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/entitysync/internal/model"
)

// Call is one recorded remote call.
type Call struct {
	Seq        int64  `json:"seq"`
	Collection string `json:"collection"`
	Method     string `json:"method"`
	ID         string `json:"id,omitempty"`
	Payload    any    `json:"payload,omitempty"`
	Err        string `json:"error,omitempty"`
}

// Recorder collects calls from one or more Memory clients in issue order.
//
// Thread-safety: all methods are safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	seq   int64
	calls []Call
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(c Call) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.Seq = r.seq
	r.calls = append(r.calls, c)
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many calls match. Empty filters match anything.
func (r *Recorder) Count(collection, method, id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if collection != "" && c.Collection != collection {
			continue
		}
		if method != "" && c.Method != method {
			continue
		}
		if id != "" && c.ID != id {
			continue
		}
		n++
	}
	return n
}

// Reset forgets every recorded call. Sequence numbers keep increasing.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// MemoryOption configures a Memory client.
type MemoryOption[T model.Entity] func(*Memory[T])

// WithRecorder records every call into r.
func WithRecorder[T model.Entity](r *Recorder) MemoryOption[T] {
	return func(m *Memory[T]) { m.recorder = r }
}

// WithAssignID lets the table assign ids on create, like a server that
// generates identifiers. assign receives the entity as sent by the caller.
func WithAssignID[T model.Entity](assign func(T) T) MemoryOption[T] {
	return func(m *Memory[T]) { m.assign = assign }
}

// Memory is an in-process Client. Stored entities are deep copies, so
// callers never share memory with the table.
type Memory[T model.Entity] struct {
	mu            sync.Mutex
	collection    string
	rows          map[string]T
	order         []string
	recorder      *Recorder
	assign        func(T) T
	failures      map[string][]error
	returnNothing bool
}

// NewMemory creates an empty in-memory table for the named collection.
func NewMemory[T model.Entity](collection string, opts ...MemoryOption[T]) *Memory[T] {
	m := &Memory[T]{
		collection: collection,
		rows:       make(map[string]T),
		failures:   make(map[string][]error),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Seed stores entities directly, bypassing recording and failure injection.
func (m *Memory[T]) Seed(entities ...T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		if e.EntityID() == "" {
			return ErrMissingID
		}
		stored, err := model.Clone(e)
		if err != nil {
			return err
		}
		if _, ok := m.rows[e.EntityID()]; !ok {
			m.order = append(m.order, e.EntityID())
		}
		m.rows[e.EntityID()] = stored
	}
	return nil
}

// Snapshot returns the stored entity without recording a call.
func (m *Memory[T]) Snapshot(id string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	return e, ok
}

// FailNext makes the next call of method return err. Queued failures are
// consumed in order.
func (m *Memory[T]) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = append(m.failures[method], err)
}

// ReturnNothing makes Add accept writes but return no entity.
func (m *Memory[T]) ReturnNothing(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnNothing = on
}

// begin records the call and pops an injected failure. Caller holds m.mu.
func (m *Memory[T]) begin(method, id string, payload any) error {
	var err error
	if queued := m.failures[method]; len(queued) > 0 {
		err = queued[0]
		m.failures[method] = queued[1:]
	}
	call := Call{Collection: m.collection, Method: method, ID: id, Payload: payload}
	if err != nil {
		call.Err = err.Error()
	}
	m.recorder.record(call)
	return err
}

// GetAll implements Client.
func (m *Memory[T]) GetAll(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(MethodGetAll, "", nil); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(m.order))
	for _, id := range m.order {
		e, err := model.Clone(m.rows[id])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Get implements Client.
func (m *Memory[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(MethodGet, id, nil); err != nil {
		return zero, err
	}
	e, ok := m.rows[id]
	if !ok {
		return zero, fmt.Errorf("%s %q: %w", m.collection, id, ErrNotFound)
	}
	return model.Clone(e)
}

// Add implements Client.
func (m *Memory[T]) Add(ctx context.Context, entity T) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(MethodAdd, entity.EntityID(), entity); err != nil {
		return nil, err
	}
	if m.assign != nil {
		entity = m.assign(entity)
	}
	id := entity.EntityID()
	if id == "" {
		return nil, fmt.Errorf("%s: %w", m.collection, ErrMissingID)
	}
	if _, exists := m.rows[id]; exists {
		return nil, fmt.Errorf("%s %q: %w", m.collection, id, ErrConflict)
	}
	stored, err := model.Clone(entity)
	if err != nil {
		return nil, err
	}
	m.rows[id] = stored
	m.order = append(m.order, id)
	if m.returnNothing {
		return nil, nil
	}
	out, err := model.Clone(stored)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Patch implements Client.
func (m *Memory[T]) Patch(ctx context.Context, id string, patch model.Partial) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(MethodPatch, id, patch); err != nil {
		return err
	}
	e, ok := m.rows[id]
	if !ok {
		return fmt.Errorf("%s %q: %w", m.collection, id, ErrNotFound)
	}
	merged, err := model.Apply(e, patch)
	if err != nil {
		return err
	}
	m.rows[id] = merged
	return nil
}

// Replace implements Client.
func (m *Memory[T]) Replace(ctx context.Context, id string, entity T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(MethodReplace, id, entity); err != nil {
		return err
	}
	if _, ok := m.rows[id]; !ok {
		return fmt.Errorf("%s %q: %w", m.collection, id, ErrNotFound)
	}
	stored, err := model.Clone(entity)
	if err != nil {
		return err
	}
	m.rows[id] = stored
	return nil
}

// Delete implements Client.
func (m *Memory[T]) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(MethodDelete, id, nil); err != nil {
		return err
	}
	if _, ok := m.rows[id]; !ok {
		return fmt.Errorf("%s %q: %w", m.collection, id, ErrNotFound)
	}
	delete(m.rows, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// IsNotFound reports whether err means the entity does not exist remotely.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
