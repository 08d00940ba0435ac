package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/store"
)

// StoreClient serves a collection from a local SQLite table. It is used
// for offline workspaces and as the backing store of the HTTP service.
type StoreClient[T model.Entity] struct {
	table  *store.Table
	assign func(T) T
}

// NewStoreClient wraps a table. assign, if non-nil, fills server-side ids
// on Add.
func NewStoreClient[T model.Entity](table *store.Table, assign func(T) T) *StoreClient[T] {
	return &StoreClient[T]{table: table, assign: assign}
}

// GetAll implements Client.
func (c *StoreClient[T]) GetAll(ctx context.Context) ([]T, error) {
	records, err := c.table.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		e, err := decodeRecord[T](r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Get implements Client.
func (c *StoreClient[T]) Get(ctx context.Context, id string) (T, error) {
	r, err := c.table.Get(ctx, id)
	if err != nil {
		var zero T
		return zero, translateStoreErr(err)
	}
	return decodeRecord[T](r)
}

// Add implements Client.
func (c *StoreClient[T]) Add(ctx context.Context, entity T) (*T, error) {
	if c.assign != nil {
		entity = c.assign(entity)
	}
	id := entity.EntityID()
	if id == "" {
		return nil, fmt.Errorf("%s: %w", c.table.Collection(), ErrMissingID)
	}
	r, err := c.table.Insert(ctx, id, entity)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	out, err := decodeRecord[T](r)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Patch implements Client.
func (c *StoreClient[T]) Patch(ctx context.Context, id string, patch model.Partial) error {
	_, err := c.table.Merge(ctx, id, patch)
	return translateStoreErr(err)
}

// Replace implements Client.
func (c *StoreClient[T]) Replace(ctx context.Context, id string, entity T) error {
	return translateStoreErr(c.table.Put(ctx, id, entity))
}

// Delete implements Client.
func (c *StoreClient[T]) Delete(ctx context.Context, id string) error {
	return translateStoreErr(c.table.Delete(ctx, id))
}

func decodeRecord[T any](r store.Record) (T, error) {
	var e T
	if err := json.Unmarshal(r.Body, &e); err != nil {
		return e, fmt.Errorf("decode %q: %w", r.ID, err)
	}
	return e, nil
}

func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrExists):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}
