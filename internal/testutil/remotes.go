// Package testutil builds deterministic in-memory remotes for tests and
// scenario runs.
package testutil

import (
	"fmt"

	"github.com/roach88/entitysync/internal/keygen"
	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/remote"
)

// Id prefixes handed out by the in-memory remotes when an entity arrives
// without one.
const (
	SinkIDPrefix   = "sink-"
	SourceIDPrefix = "src-"
)

// Remotes is one in-memory configuration service: three collections that
// share a recorder, so calls across collections appear in issue order.
type Remotes struct {
	Recorder *remote.Recorder
	Keys     *remote.Memory[model.Key]
	Sinks    *remote.Memory[model.Sink]
	Sources  *remote.Memory[model.Source]
}

// NewRemotes creates empty remotes. Sink uids come out as sink-1, sink-2
// and so on; source ids as src-1, src-2.
func NewRemotes() *Remotes {
	rec := remote.NewRecorder()
	return &Remotes{
		Recorder: rec,
		Keys:     remote.NewMemory(model.CollectionKeys, remote.WithRecorder[model.Key](rec)),
		Sinks: remote.NewMemory(model.CollectionSinks,
			remote.WithRecorder[model.Sink](rec),
			remote.WithAssignID(remote.AssignSinkUID(keygen.NewSequence(SinkIDPrefix).Next))),
		Sources: remote.NewMemory(model.CollectionSources,
			remote.WithRecorder[model.Source](rec),
			remote.WithAssignID(remote.AssignSourceID(keygen.NewSequence(SourceIDPrefix).Next))),
	}
}

// Seed stores entities without recording calls.
func (r *Remotes) Seed(keys []model.Key, sinks []model.Sink, sources []model.Source) error {
	if err := r.Keys.Seed(keys...); err != nil {
		return fmt.Errorf("seed keys: %w", err)
	}
	if err := r.Sinks.Seed(sinks...); err != nil {
		return fmt.Errorf("seed sinks: %w", err)
	}
	if err := r.Sources.Seed(sources...); err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}
	return nil
}

// FailNext queues err for the next call of method on the named collection.
func (r *Remotes) FailNext(collection, method string, err error) error {
	switch collection {
	case model.CollectionKeys:
		r.Keys.FailNext(method, err)
	case model.CollectionSinks:
		r.Sinks.FailNext(method, err)
	case model.CollectionSources:
		r.Sources.FailNext(method, err)
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	return nil
}

// ReturnNothing toggles add responses without a body on the named collection.
func (r *Remotes) ReturnNothing(collection string, on bool) error {
	switch collection {
	case model.CollectionKeys:
		r.Keys.ReturnNothing(on)
	case model.CollectionSinks:
		r.Sinks.ReturnNothing(on)
	case model.CollectionSources:
		r.Sources.ReturnNothing(on)
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	return nil
}

// Snapshot returns the remote copy of the entity, as its generic JSON form.
func (r *Remotes) Snapshot(collection, id string) (any, bool, error) {
	var (
		entity any
		ok     bool
	)
	switch collection {
	case model.CollectionKeys:
		entity, ok = r.Keys.Snapshot(id)
	case model.CollectionSinks:
		entity, ok = r.Sinks.Snapshot(id)
	case model.CollectionSources:
		entity, ok = r.Sources.Snapshot(id)
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
