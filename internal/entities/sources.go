package entities

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/entitysync/internal/collection"
	"github.com/roach88/entitysync/internal/model"
)

// Sources is the sources collection. Source.Destinations is the source of
// truth for the Source→Sink direction.
type Sources struct {
	*collection.Collection[model.Source]

	sinks  *Sinks
	fanout fanout
	logger *slog.Logger
}

// Add creates the source. With updateConnections, every sink is reconciled
// against the new source's destinations.
func (s *Sources) Add(ctx context.Context, src model.Source, updateConnections bool) (model.Source, error) {
	created, err := s.Collection.Add(ctx, src)
	if err != nil {
		return model.Source{}, err
	}
	if !updateConnections {
		return created, nil
	}
	return created, s.PatchSinkLinksFromSourceChange(ctx, created)
}

// Replace overwrites the source, then reconciles sinks when
// updateConnections is set.
func (s *Sources) Replace(ctx context.Context, src model.Source, updateConnections bool) error {
	if err := s.Collection.Replace(ctx, src); err != nil {
		return err
	}
	if !updateConnections {
		return nil
	}
	return s.PatchSinkLinksFromSourceChange(ctx, src)
}

// Patch merges patch into the source, then reconciles sinks when
// updateConnections is set.
func (s *Sources) Patch(ctx context.Context, id string, patch model.Partial, updateConnections bool) error {
	if err := s.Collection.Patch(ctx, id, patch); err != nil {
		return err
	}
	if !updateConnections {
		return nil
	}
	updated, ok := s.Find(id)
	if !ok {
		return nil
	}
	return s.PatchSinkLinksFromSourceChange(ctx, updated)
}

// withoutDestinations derives a destinations patch removing uids, or no
// patch when the source lists none of them.
func withoutDestinations(uids ...string) func(model.Source) (model.Partial, bool) {
	return func(current model.Source) (model.Partial, bool) {
		pruned := model.Without(current.Destinations, uids...)
		if len(pruned) == len(current.Destinations) {
			return nil, false
		}
		return model.Partial{model.SourceFieldDestinations: pruned}, true
	}
}

// withoutSources derives a sources patch removing ids, or no patch when the
// sink lists none of them.
func withoutSources(ids ...string) func(model.Sink) (model.Partial, bool) {
	return func(current model.Sink) (model.Partial, bool) {
		pruned := model.Without(current.Sources, ids...)
		if len(pruned) == len(current.Sources) {
			return nil, false
		}
		return model.Partial{model.SinkFieldSources: pruned}, true
	}
}

// PatchSinkLinksFromSourceChange makes every sink agree with the given
// sources: a sink lists a source iff the source lists the sink in its
// destinations. Corrections for one sink are folded into a single patch.
func (s *Sources) PatchSinkLinksFromSourceChange(ctx context.Context, sources ...model.Source) error {
	var updates []linkUpdate[model.Sink]
	derive := sinkSourcesFromSources(sources)
	for _, sink := range s.sinks.ListIncludeHidden() {
		if _, changed := derive(sink); changed {
			updates = append(updates, linkUpdate[model.Sink]{id: sink.UID, derive: derive})
		}
	}
	for _, src := range sources {
		for _, uid := range src.Destinations {
			if _, ok := s.sinks.Find(uid); !ok {
				s.logger.Warn("source references unknown sink", "id", src.ID, "sink", uid)
			}
		}
	}
	return runLinks(ctx, s.fanout, "update source destinations", s.sinks.Collection, updates)
}

// sinkSourcesFromSources folds the corrections sources imply for one sink
// into a single sources patch.
func sinkSourcesFromSources(sources []model.Source) func(model.Sink) (model.Partial, bool) {
	return func(current model.Sink) (model.Partial, bool) {
		linked := current.Sources
		changed := false
		for _, src := range sources {
			want := model.Contains(src.Destinations, current.UID)
			has := model.Contains(linked, src.ID)
			switch {
			case want && !has:
				linked = model.Union(linked, src.ID)
				changed = true
			case !want && has:
				linked = model.Without(linked, src.ID)
				changed = true
			}
		}
		if !changed {
			return nil, false
		}
		return model.Partial{model.SinkFieldSources: linked}, true
	}
}

// Delete removes the source, then drops it from every sink's sources.
// Deleting a source the remote no longer has only reconciles sinks.
func (s *Sources) Delete(ctx context.Context, id string) error {
	if err := s.Collection.Delete(ctx, id); err != nil {
		return err
	}
	return s.UnlinkDeletedSourcesFromSinks(ctx, id)
}

// UnlinkDeletedSourcesFromSinks removes ids from every sink's sources.
func (s *Sources) UnlinkDeletedSourcesFromSinks(ctx context.Context, ids ...string) error {
	var updates []linkUpdate[model.Sink]
	derive := withoutSources(ids...)
	for _, sink := range s.sinks.ListIncludeHidden() {
		if _, changed := derive(sink); changed {
			updates = append(updates, linkUpdate[model.Sink]{id: sink.UID, derive: derive})
		}
	}
	return runLinks(ctx, s.fanout, fmt.Sprintf("unlink deleted sources %q", ids), s.sinks.Collection, updates)
}
