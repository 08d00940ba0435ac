package entities

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/entitysync/internal/collection"
	"github.com/roach88/entitysync/internal/model"
)

// Sinks is the destinations collection. Sinks whose type the catalog marks
// hidden are left out of List and Get.
type Sinks struct {
	*collection.Collection[model.Sink]

	sources    *Sources
	keyFanout  fanout
	linkFanout fanout
	logger     *slog.Logger
}

// Add creates the sink. With updateConnections, sources named in
// sink.Sources gain the sink in their destinations.
func (s *Sinks) Add(ctx context.Context, sink model.Sink, updateConnections bool) (model.Sink, error) {
	created, err := s.Collection.Add(ctx, sink)
	if err != nil {
		return model.Sink{}, err
	}
	if !updateConnections {
		return created, nil
	}
	return created, s.PatchSourceLinksFromSinkChange(ctx, created)
}

// Replace overwrites the sink. With updateConnections, the sources side of
// the link is reconciled afterwards.
func (s *Sinks) Replace(ctx context.Context, sink model.Sink, updateConnections bool) error {
	if err := s.Collection.Replace(ctx, sink); err != nil {
		return err
	}
	if !updateConnections {
		return nil
	}
	return s.PatchSourceLinksFromSinkChange(ctx, sink)
}

// Patch merges patch into the sink. With updateConnections and a patch that
// touches sources, the affected sources' destinations are corrected.
func (s *Sinks) Patch(ctx context.Context, uid string, patch model.Partial, updateConnections bool) error {
	if err := s.Collection.Patch(ctx, uid, patch); err != nil {
		return err
	}
	if _, touched := patch[model.SinkFieldSources]; !updateConnections || !touched {
		return nil
	}
	updated, ok := s.Find(uid)
	if !ok {
		return nil
	}
	return s.PatchSourceLinksFromSinkChange(ctx, updated)
}

// withKeys derives an onlyKeys patch adding keys, or no patch when the sink
// already holds all of them.
func withKeys(keys ...string) func(model.Sink) (model.Partial, bool) {
	return func(current model.Sink) (model.Partial, bool) {
		if model.ContainsAll(current.OnlyKeys, keys...) {
			return nil, false
		}
		return model.Partial{model.SinkFieldOnlyKeys: model.Union(current.OnlyKeys, keys...)}, true
	}
}

// withoutKeys derives an onlyKeys patch removing keys, or no patch when the
// sink holds none of them.
func withoutKeys(keys ...string) func(model.Sink) (model.Partial, bool) {
	return func(current model.Sink) (model.Partial, bool) {
		pruned := model.Without(current.OnlyKeys, keys...)
		if len(pruned) == len(current.OnlyKeys) {
			return nil, false
		}
		return model.Partial{model.SinkFieldOnlyKeys: pruned}, true
	}
}

// Delete removes the sink, then drops it from every source's destinations.
func (s *Sinks) Delete(ctx context.Context, uid string) error {
	if err := s.Collection.Delete(ctx, uid); err != nil {
		return err
	}

	var updates []linkUpdate[model.Source]
	for _, src := range s.sources.ListIncludeHidden() {
		if !model.Contains(src.Destinations, uid) {
			continue
		}
		updates = append(updates, linkUpdate[model.Source]{id: src.ID, derive: withoutDestinations(uid)})
	}
	return runLinks(ctx, s.linkFanout, fmt.Sprintf("delete sink %q", uid), s.sources.Collection, updates)
}

// PatchSourceLinksFromSinkChange makes every source agree with the given
// sinks: a source lists a sink in destinations iff the sink lists the
// source. At most one patch is sent per source.
func (s *Sinks) PatchSourceLinksFromSinkChange(ctx context.Context, sinks ...model.Sink) error {
	var updates []linkUpdate[model.Source]
	derive := destinationsFromSinks(sinks)
	for _, src := range s.sources.ListIncludeHidden() {
		if _, changed := derive(src); changed {
			updates = append(updates, linkUpdate[model.Source]{id: src.ID, derive: derive})
		}
	}
	for _, sink := range sinks {
		for _, id := range sink.Sources {
			if _, ok := s.sources.Find(id); !ok {
				s.logger.Warn("sink references unknown source", "uid", sink.UID, "source", id)
			}
		}
	}
	return runLinks(ctx, s.linkFanout, "update sink sources", s.sources.Collection, updates)
}

// destinationsFromSinks folds the corrections sinks imply for one source
// into a single destinations patch.
func destinationsFromSinks(sinks []model.Sink) func(model.Source) (model.Partial, bool) {
	return func(current model.Source) (model.Partial, bool) {
		destinations := current.Destinations
		changed := false
		for _, sink := range sinks {
			want := model.Contains(sink.Sources, current.ID)
			has := model.Contains(destinations, sink.UID)
			switch {
			case want && !has:
				destinations = model.Union(destinations, sink.UID)
				changed = true
			case !want && has:
				destinations = model.Without(destinations, sink.UID)
				changed = true
			}
		}
		if !changed {
			return nil, false
		}
		return model.Partial{model.SourceFieldDestinations: destinations}, true
	}
}

// UpdateLinksToKey makes desired the exact set of sinks whose onlyKeys
// contains keyUID. Only sinks whose membership changes are patched.
func (s *Sinks) UpdateLinksToKey(ctx context.Context, keyUID string, desired []string) error {
	var updates []linkUpdate[model.Sink]
	for _, sink := range s.ListIncludeHidden() {
		linked := model.Contains(sink.OnlyKeys, keyUID)
		want := model.Contains(desired, sink.UID)
		switch {
		case want && !linked:
			updates = append(updates, linkUpdate[model.Sink]{id: sink.UID, derive: withKeys(keyUID)})
		case !want && linked:
			updates = append(updates, linkUpdate[model.Sink]{id: sink.UID, derive: withoutKeys(keyUID)})
		}
	}
	for _, uid := range desired {
		if _, ok := s.Find(uid); !ok {
			s.logger.Warn("cannot link key to unknown sink", "key", keyUID, "uid", uid)
		}
	}
	return runLinks(ctx, s.keyFanout, fmt.Sprintf("update links to key %q", keyUID), s.Collection, updates)
}

// LinkKeysToSinks adds keyUIDs to the onlyKeys of each named sink. It never
// removes a key. Sinks that already hold every key are not patched.
func (s *Sinks) LinkKeysToSinks(ctx context.Context, keyUIDs, sinkUIDs []string) error {
	var updates []linkUpdate[model.Sink]
	seen := make(map[string]bool, len(sinkUIDs))
	for _, uid := range sinkUIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true

		sink, ok := s.Find(uid)
		if !ok {
			s.logger.Warn("cannot link keys to unknown sink", "uid", uid)
			continue
		}
		if model.ContainsAll(sink.OnlyKeys, keyUIDs...) {
			continue
		}
		updates = append(updates, linkUpdate[model.Sink]{id: uid, derive: withKeys(keyUIDs...)})
	}
	return runLinks(ctx, s.keyFanout, "link keys to sinks", s.Collection, updates)
}
