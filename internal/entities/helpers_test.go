package entities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/entitysync/internal/catalog"
	"github.com/roach88/entitysync/internal/keygen"
	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/remote"
	"github.com/roach88/entitysync/internal/testutil"
)

type fixture struct {
	reg        *Registry
	rec        *remote.Recorder
	keysMem    *remote.Memory[model.Key]
	sinksMem   *remote.Memory[model.Sink]
	sourcesMem *remote.Memory[model.Source]
}

type seed struct {
	keys    []model.Key
	sinks   []model.Sink
	sources []model.Source
}

// newFixture seeds in-memory remotes, pulls them, and clears the recorder.
// Cascades run one patch at a time so call order is stable.
func newFixture(t *testing.T, s seed) *fixture {
	t.Helper()
	remotes := testutil.NewRemotes()
	require.NoError(t, remotes.Seed(s.keys, s.sinks, s.sources))
	f := &fixture{
		rec:        remotes.Recorder,
		keysMem:    remotes.Keys,
		sinksMem:   remotes.Sinks,
		sourcesMem: remotes.Sources,
	}

	f.reg = NewRegistry(Options{
		Keys:        f.keysMem,
		Sinks:       f.sinksMem,
		Sources:     f.sourcesMem,
		Catalog:     catalog.FromHidden(map[string]bool{"internal": true}),
		ProjectID:   "proj",
		KeyGen:      keygen.NewSequence("r"),
		TokenLength: 4,
		MaxParallel: 1,
	})
	f.reg.PullAll(context.Background(), true)
	require.NoError(t, f.reg.Err())
	f.rec.Reset()
	return f
}

func (f *fixture) patches(collection, id string) int {
	return f.rec.Count(collection, remote.MethodPatch, id)
}

func (f *fixture) sink(t *testing.T, uid string) model.Sink {
	t.Helper()
	s, ok := f.reg.Sinks.Find(uid)
	require.True(t, ok, "sink %s not cached", uid)
	return s
}

func (f *fixture) source(t *testing.T, id string) model.Source {
	t.Helper()
	s, ok := f.reg.Sources.Find(id)
	require.True(t, ok, "source %s not cached", id)
	return s
}
