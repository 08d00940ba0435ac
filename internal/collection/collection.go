package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/entitysync/internal/logging"
	"github.com/roach88/entitysync/internal/metrics"
	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/remote"
)

// Status is the load state of a collection.
type Status string

const (
	StatusIdle              Status = "IDLE"
	StatusLoadingFull       Status = "LOADING_FULL"
	StatusLoadingBackground Status = "LOADING_BACKGROUND"
	StatusError             Status = "ERROR"
)

// Option configures a Collection.
type Option[T model.Entity] func(*Collection[T])

// WithHidden sets the predicate that removes entities from List and Get.
// A nil predicate hides nothing.
func WithHidden[T model.Entity](hidden func(T) bool) Option[T] {
	return func(c *Collection[T]) { c.hidden = hidden }
}

// RequireID makes Add reject entities without a caller-assigned id.
func RequireID[T model.Entity]() Option[T] {
	return func(c *Collection[T]) { c.requireID = true }
}

// WithLogger sets the logger. The collection name is added as an attribute.
func WithLogger[T model.Entity](logger *slog.Logger) Option[T] {
	return func(c *Collection[T]) { c.logger = logger }
}

// WithMetrics records remote calls and pull failures.
func WithMetrics[T model.Entity](m *metrics.Metrics) Option[T] {
	return func(c *Collection[T]) { c.metrics = m }
}

// Collection is a write-through cache of one remote collection.
//
// Thread-safety: all methods are safe for concurrent use. Mutations and
// pulls are serialized; reads are not.
type Collection[T model.Entity] struct {
	name      string
	client    remote.Client[T]
	hidden    func(T) bool
	requireID bool
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// slot admits one operation at a time.
	slot chan struct{}

	mu           sync.RWMutex
	entities     []T
	status       Status
	errorMessage string
	err          error
}

// New creates an empty, idle collection backed by client.
func New[T model.Entity](name string, client remote.Client[T], opts ...Option[T]) *Collection[T] {
	c := &Collection[T]{
		name:     name,
		client:   client,
		slot:     make(chan struct{}, 1),
		entities: []T{},
		status:   StatusIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Default(c.logger).With("collection", name)
	return c
}

// Name returns the remote collection name.
func (c *Collection[T]) Name() string { return c.name }

// Logger returns the collection's scoped logger.
func (c *Collection[T]) Logger() *slog.Logger { return c.logger }

// PullAll replaces the cache with the remote collection.
//
// A failure sets StatusError and records a *FetchError readable through
// Err; the previous list stays available. Nothing is returned.
func (c *Collection[T]) PullAll(ctx context.Context, fullPageLoad bool) {
	if err := c.acquire(ctx); err != nil {
		c.recordFetchError(err)
		return
	}
	defer c.release()

	if fullPageLoad {
		c.setStatus(StatusLoadingFull)
	} else {
		c.setStatus(StatusLoadingBackground)
	}

	var entities []T
	err := c.call(remote.MethodGetAll, "", func() error {
		var err error
		entities, err = c.client.GetAll(ctx)
		return err
	})
	if err != nil {
		c.recordFetchError(err)
		return
	}
	if entities == nil {
		entities = []T{}
	}

	c.mu.Lock()
	c.entities = entities
	c.status = StatusIdle
	c.errorMessage = ""
	c.err = nil
	c.mu.Unlock()

	c.logger.Debug("pulled collection", "count", len(entities))
}

func (c *Collection[T]) recordFetchError(err error) {
	fetchErr := &FetchError{Collection: c.name, Err: err}
	c.mu.Lock()
	c.status = StatusError
	c.errorMessage = fetchErr.Error()
	c.err = fetchErr
	c.mu.Unlock()

	c.metrics.PullFailed(c.name)
	c.logger.Error("pull failed", "error", err)
}

// Add creates entity remotely and caches the entity the server returned.
func (c *Collection[T]) Add(ctx context.Context, entity T) (T, error) {
	var zero T
	if c.requireID && entity.EntityID() == "" {
		return zero, fmt.Errorf("%s: add: %w", c.name, ErrMissingID)
	}

	if err := c.begin(ctx); err != nil {
		return zero, err
	}
	defer c.end()

	var created *T
	err := c.call(remote.MethodAdd, entity.EntityID(), func() error {
		var err error
		created, err = c.client.Add(ctx, entity)
		return err
	})
	if err != nil {
		return zero, c.mutationFailed("add", entity.EntityID(), err)
	}
	if created == nil {
		return zero, c.mutationFailed("add", entity.EntityID(),
			&RemoteWriteError{Collection: c.name, ID: entity.EntityID()})
	}

	c.mu.Lock()
	if i := c.indexLocked((*created).EntityID()); i >= 0 {
		c.entities[i] = *created
	} else {
		c.entities = append(c.entities, *created)
	}
	c.mu.Unlock()

	return *created, nil
}

// Patch merges the top-level fields of patch into the entity with id.
//
// Patches deeper than model.MaxPatchDepth fail with *PatchTooDeepError and
// patches of uncached entities fail with *NotFoundError; neither reaches
// the remote client.
func (c *Collection[T]) Patch(ctx context.Context, id string, patch model.Partial) error {
	if err := c.checkPatch(id, patch); err != nil {
		return err
	}

	if err := c.begin(ctx); err != nil {
		return err
	}
	defer c.end()

	current, ok := c.find(id)
	if !ok {
		return &NotFoundError{Collection: c.name, ID: id}
	}
	return c.patchLocked(ctx, id, current, patch)
}

// Update patches the entity with id using the patch derive computes from
// the cached entity. derive runs while the operation slot is held, so it
// sees every mutation committed before it. When derive reports no change,
// no remote call is made.
func (c *Collection[T]) Update(ctx context.Context, id string, derive func(current T) (model.Partial, bool)) error {
	if err := c.begin(ctx); err != nil {
		return err
	}
	defer c.end()

	current, ok := c.find(id)
	if !ok {
		return &NotFoundError{Collection: c.name, ID: id}
	}
	patch, changed := derive(current)
	if !changed {
		return nil
	}
	if err := c.checkPatch(id, patch); err != nil {
		return err
	}
	return c.patchLocked(ctx, id, current, patch)
}

// checkPatch rejects patches that are too deep.
func (c *Collection[T]) checkPatch(id string, patch model.Partial) error {
	depth, err := model.Depth(patch)
	if err != nil {
		return fmt.Errorf("%s: patch %q: %w", c.name, id, err)
	}
	if depth > model.MaxPatchDepth {
		return &PatchTooDeepError{Collection: c.name, ID: id, Depth: depth}
	}
	return nil
}

// patchLocked sends patch and commits the merged entity. Caller holds the
// operation slot. A patch that would change the entity's id is rejected
// before the remote call.
func (c *Collection[T]) patchLocked(ctx context.Context, id string, current T, patch model.Partial) error {
	merged, err := model.Apply(current, patch)
	if err != nil {
		return fmt.Errorf("%s: patch %q: %w", c.name, id, err)
	}
	if merged.EntityID() != id {
		return &IDChangeError{Collection: c.name, ID: id, NewID: merged.EntityID()}
	}

	err = c.call(remote.MethodPatch, id, func() error {
		return c.client.Patch(ctx, id, patch)
	})
	if err != nil {
		return c.mutationFailed("patch", id, err)
	}

	c.mu.Lock()
	if i := c.indexLocked(id); i >= 0 {
		c.entities[i] = merged
	}
	c.mu.Unlock()
	return nil
}

// Replace overwrites the cached entity with the same id.
func (c *Collection[T]) Replace(ctx context.Context, entity T) error {
	id := entity.EntityID()

	if err := c.begin(ctx); err != nil {
		return err
	}
	defer c.end()

	if _, ok := c.find(id); !ok {
		return &NotFoundError{Collection: c.name, ID: id}
	}

	err := c.call(remote.MethodReplace, id, func() error {
		return c.client.Replace(ctx, id, entity)
	})
	if err != nil {
		return c.mutationFailed("replace", id, err)
	}

	c.mu.Lock()
	if i := c.indexLocked(id); i >= 0 {
		c.entities[i] = entity
	}
	c.mu.Unlock()
	return nil
}

// Delete removes the entity remotely, then from the cache. An entity the
// remote no longer has counts as deleted.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.begin(ctx); err != nil {
		return err
	}
	defer c.end()

	err := c.call(remote.MethodDelete, id, func() error {
		return c.client.Delete(ctx, id)
	})
	if err != nil && !remote.IsNotFound(err) {
		return c.mutationFailed("delete", id, err)
	}
	if err != nil {
		c.logger.Debug("delete of absent entity", "id", id)
	}

	c.mu.Lock()
	if i := c.indexLocked(id); i >= 0 {
		c.entities = append(c.entities[:i:i], c.entities[i+1:]...)
	}
	c.mu.Unlock()
	return nil
}

// Get returns the visible entity with id. Hidden entities are not found.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entities {
		if e.EntityID() == id && !c.isHidden(e) {
			return e, true
		}
	}
	var zero T
	return zero, false
}

// Find returns the entity with id, hidden or not.
func (c *Collection[T]) Find(id string) (T, bool) {
	return c.find(id)
}

// List returns the visible entities.
func (c *Collection[T]) List() []T {
	return c.filter(func(e T) bool { return !c.isHidden(e) })
}

// ListHidden returns the hidden entities.
func (c *Collection[T]) ListHidden() []T {
	return c.filter(c.isHidden)
}

// ListIncludeHidden returns every cached entity.
func (c *Collection[T]) ListIncludeHidden() []T {
	return c.filter(func(T) bool { return true })
}

// Len returns the number of cached entities, hidden included.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}

// Status returns the current load state.
func (c *Collection[T]) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// ErrorMessage returns the message of the last failed pull, or "".
func (c *Collection[T]) ErrorMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorMessage
}

// Err returns the *FetchError of the last failed pull, or nil.
func (c *Collection[T]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Collection[T]) acquire(ctx context.Context) error {
	select {
	case c.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collection[T]) release() {
	<-c.slot
}

// begin acquires the slot and marks a background mutation.
func (c *Collection[T]) begin(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	c.setStatus(StatusLoadingBackground)
	return nil
}

// end restores the resting status and releases the slot. A pending pull
// failure keeps the collection in StatusError.
func (c *Collection[T]) end() {
	c.mu.Lock()
	if c.err != nil {
		c.status = StatusError
	} else {
		c.status = StatusIdle
	}
	c.mu.Unlock()
	c.release()
}

func (c *Collection[T]) mutationFailed(op, id string, err error) error {
	c.logger.Warn("mutation failed", "op", op, "id", id, "error", err)
	if _, ok := err.(*RemoteWriteError); ok {
		return err
	}
	return fmt.Errorf("%s: %s %q: %w", c.name, op, id, err)
}

func (c *Collection[T]) call(method, id string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.metrics.RemoteCall(c.name, method, start, err)
	c.logger.Debug("remote call", "method", method, "id", id, "error", err)
	return err
}

func (c *Collection[T]) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Collection[T]) find(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.entities[i], true
	}
	var zero T
	return zero, false
}

// indexLocked returns the position of id in the cache. Caller holds c.mu.
func (c *Collection[T]) indexLocked(id string) int {
	for i, e := range c.entities {
		if e.EntityID() == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) isHidden(e T) bool {
	return c.hidden != nil && c.hidden(e)
}

func (c *Collection[T]) filter(keep func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.entities))
	for _, e := range c.entities {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
