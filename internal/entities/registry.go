package entities

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/entitysync/internal/catalog"
	"github.com/roach88/entitysync/internal/collection"
	"github.com/roach88/entitysync/internal/keygen"
	"github.com/roach88/entitysync/internal/logging"
	"github.com/roach88/entitysync/internal/metrics"
	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/orphans"
	"github.com/roach88/entitysync/internal/remote"
)

// DefaultMaxParallel bounds concurrent cascade patches.
const DefaultMaxParallel = 4

// Options wires a Registry.
type Options struct {
	Keys    remote.Client[model.Key]
	Sinks   remote.Client[model.Sink]
	Sources remote.Client[model.Source]

	// Catalog decides which sinks are hidden. Nil hides nothing.
	Catalog catalog.Catalog

	// ProjectID is embedded in generated key tokens.
	ProjectID string
	// KeyGen produces the random part of key tokens. Defaults to keygen.Random.
	KeyGen keygen.Generator
	// TokenLength defaults to keygen.DefaultLength.
	TokenLength int

	// MaxParallel bounds concurrent cascade patches. 0 means
	// DefaultMaxParallel; 1 dispatches in list order.
	MaxParallel int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Registry is the composition root for the three collections.
type Registry struct {
	Keys    *Keys
	Sinks   *Sinks
	Sources *Sources
}

// NewRegistry builds the collections and injects their siblings.
func NewRegistry(opts Options) *Registry {
	logger := logging.Default(opts.Logger)
	if opts.KeyGen == nil {
		opts.KeyGen = keygen.Random{}
	}
	if opts.TokenLength <= 0 {
		opts.TokenLength = keygen.DefaultLength
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}

	keyLinks := fanout{
		relation: metrics.RelationKeySink,
		limit:    opts.MaxParallel,
		logger:   logger.With("relation", metrics.RelationKeySink),
		metrics:  opts.Metrics,
	}
	sourceLinks := fanout{
		relation: metrics.RelationSourceSink,
		limit:    opts.MaxParallel,
		logger:   logger.With("relation", metrics.RelationSourceSink),
		metrics:  opts.Metrics,
	}

	keys := &Keys{
		Collection: collection.New[model.Key](model.CollectionKeys, opts.Keys,
			collection.RequireID[model.Key](),
			collection.WithLogger[model.Key](logger),
			collection.WithMetrics[model.Key](opts.Metrics),
		),
		projectID:   opts.ProjectID,
		gen:         opts.KeyGen,
		tokenLength: opts.TokenLength,
		fanout:      keyLinks,
	}
	keys.logger = keys.Logger()

	sinks := &Sinks{
		Collection: collection.New[model.Sink](model.CollectionSinks, opts.Sinks,
			collection.WithHidden(catalog.HiddenSinks(opts.Catalog)),
			collection.WithLogger[model.Sink](logger),
			collection.WithMetrics[model.Sink](opts.Metrics),
		),
		keyFanout:  keyLinks,
		linkFanout: sourceLinks,
	}
	sinks.logger = sinks.Logger()

	sources := &Sources{
		Collection: collection.New[model.Source](model.CollectionSources, opts.Sources,
			collection.WithLogger[model.Source](logger),
			collection.WithMetrics[model.Source](opts.Metrics),
		),
		fanout: sourceLinks,
	}
	sources.logger = sources.Logger()

	keys.sinks = sinks
	sinks.sources = sources
	sources.sinks = sinks

	return &Registry{Keys: keys, Sinks: sinks, Sources: sources}
}

// PullAll pulls the three collections concurrently. Failures are recorded
// on each collection; see Err.
func (r *Registry) PullAll(ctx context.Context, fullPageLoad bool) {
	var g errgroup.Group
	g.Go(func() error { r.Keys.PullAll(ctx, fullPageLoad); return nil })
	g.Go(func() error { r.Sinks.PullAll(ctx, fullPageLoad); return nil })
	g.Go(func() error { r.Sources.PullAll(ctx, fullPageLoad); return nil })
	_ = g.Wait()
}

// Err joins the pull errors of the three collections.
func (r *Registry) Err() error {
	return errors.Join(r.Keys.Err(), r.Sinks.Err(), r.Sources.Err())
}

// Snapshot captures the read surface for orphan detection.
func (r *Registry) Snapshot() orphans.Snapshot {
	return orphans.Snapshot{
		Keys:        r.Keys.ListIncludeHidden(),
		Sinks:       r.Sinks.List(),
		HiddenSinks: r.Sinks.ListHidden(),
		Sources:     r.Sources.ListIncludeHidden(),
	}
}
