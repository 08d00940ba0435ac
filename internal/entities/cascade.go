package entities

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/entitysync/internal/collection"
	"github.com/roach88/entitysync/internal/metrics"
	"github.com/roach88/entitysync/internal/model"
)

// linkUpdate is one secondary patch against a sibling collection. derive
// computes the patch from the target's cached state once its operation slot
// is held, so concurrent cascades against the same entity compose.
type linkUpdate[T model.Entity] struct {
	id     string
	derive func(current T) (model.Partial, bool)
}

// fanout dispatches secondary patches concurrently and waits for all of
// them. A limit of 1 dispatches in list order.
type fanout struct {
	relation string
	limit    int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// runLinks applies updates to target through f.
func runLinks[T model.Entity](ctx context.Context, f fanout, op string, target *collection.Collection[T], updates []linkUpdate[T]) error {
	if len(updates) == 0 {
		return nil
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []CascadeFailure
	)
	if f.limit > 0 {
		g.SetLimit(f.limit)
	}
	name := target.Name()
	for _, u := range updates {
		u := u
		g.Go(func() error {
			err := target.Update(ctx, u.id, u.derive)
			f.metrics.CascadePatch(f.relation, err)
			if err != nil {
				f.logger.Warn("cascade patch failed",
					"op", op, "collection", name, "id", u.id, "error", err)
				mu.Lock()
				failures = append(failures, CascadeFailure{Collection: name, ID: u.id, Err: err})
				mu.Unlock()
				return nil
			}
			f.logger.Debug("cascade patch", "op", op, "collection", name, "id", u.id)
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return nil
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].ID < failures[j].ID })
	return &CascadeError{Op: op, Attempts: len(updates), Failures: failures}
}
