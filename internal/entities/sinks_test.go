package entities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitysync/internal/model"
	"github.com/roach88/entitysync/internal/remote"
)

func TestScenario_LinkKeyToNewSink(t *testing.T) {
	f := newFixture(t, seed{})
	ctx := context.Background()

	_, err := f.reg.Keys.Add(ctx, model.Key{UID: "k1", Origins: []string{}})
	require.NoError(t, err)
	_, err = f.reg.Sinks.Add(ctx, model.Sink{UID: "d1", Type: "webhook", OnlyKeys: []string{}}, true)
	require.NoError(t, err)
	f.rec.Reset()

	require.NoError(t, f.reg.Sinks.LinkKeysToSinks(ctx, []string{"k1"}, []string{"d1"}))

	assert.Equal(t, []string{"k1"}, f.sink(t, "d1").OnlyKeys)
	assert.Len(t, f.rec.Calls(), 1)
	assert.Equal(t, 1, f.patches(model.CollectionSinks, "d1"))
}

func TestSinks_LinkKeysIsAdditiveAndSuppressesNoOps(t *testing.T) {
	f := newFixture(t, seed{sinks: []model.Sink{
		{UID: "d1", OnlyKeys: []string{"k1", "k2"}},
		{UID: "d2", OnlyKeys: []string{"k3"}},
	}})
	ctx := context.Background()

	require.NoError(t, f.reg.Sinks.LinkKeysToSinks(ctx, []string{"k1"}, []string{"d1", "d2", "ghost", "d2"}))

	assert.Equal(t, 0, f.patches(model.CollectionSinks, "d1"), "d1 already holds k1")
	assert.Equal(t, 1, f.patches(model.CollectionSinks, "d2"))
	assert.Equal(t, []string{"k3", "k1"}, f.sink(t, "d2").OnlyKeys)
	assert.Len(t, f.rec.Calls(), 1)
}

func TestSinks_UpdateLinksToKeyReconciles(t *testing.T) {
	f := newFixture(t, seed{sinks: []model.Sink{
		{UID: "d1", OnlyKeys: []string{"k1"}},
		{UID: "d2", OnlyKeys: []string{"k1", "k9"}},
		{UID: "d3", OnlyKeys: []string{"k9"}},
		{UID: "h1", Type: "internal", OnlyKeys: []string{"k1"}},
	}})
	ctx := context.Background()

	require.NoError(t, f.reg.Sinks.UpdateLinksToKey(ctx, "k1", []string{"d2", "d3"}))

	assert.Equal(t, []string{}, f.sink(t, "d1").OnlyKeys)
	assert.Equal(t, []string{"k1", "k9"}, f.sink(t, "d2").OnlyKeys)
	assert.Equal(t, []string{"k9", "k1"}, f.sink(t, "d3").OnlyKeys)
	assert.Equal(t, []string{}, f.sink(t, "h1").OnlyKeys, "hidden sinks are reconciled too")
	assert.Equal(t, 0, f.patches(model.CollectionSinks, "d2"))
	assert.Equal(t, 3, f.patches(model.CollectionSinks, ""))
}

func TestSinks_UpdateLinksToKeyNoOp(t *testing.T) {
	f := newFixture(t, seed{sinks: []model.Sink{
		{UID: "d1", OnlyKeys: []string{"k1"}},
		{UID: "d2"},
	}})

	require.NoError(t, f.reg.Sinks.UpdateLinksToKey(context.Background(), "k1", []string{"d1"}))

	assert.Empty(t, f.rec.Calls())
}

func TestSinks_PatchSourcesPropagates(t *testing.T) {
	f := newFixture(t, seed{
		sinks:   []model.Sink{{UID: "d1", Sources: []string{"s1"}}},
		sources: []model.Source{{ID: "s1", Destinations: []string{"d1"}}, {ID: "s2", Destinations: []string{}}},
	})
	ctx := context.Background()

	require.NoError(t, f.reg.Sinks.Patch(ctx, "d1", model.Partial{"sources": []string{"s2"}}, true))

	assert.Equal(t, []string{}, f.source(t, "s1").Destinations)
	assert.Equal(t, []string{"d1"}, f.source(t, "s2").Destinations)
	assert.Equal(t, 1, f.patches(model.CollectionSinks, "d1"), "source patches must not bounce back")
	assert.Equal(t, 2, f.patches(model.CollectionSources, ""))
}

func TestSinks_PatchWithoutConnections(t *testing.T) {
	f := newFixture(t, seed{
		sinks:   []model.Sink{{UID: "d1"}},
		sources: []model.Source{{ID: "s1"}},
	})

	require.NoError(t, f.reg.Sinks.Patch(context.Background(), "d1", model.Partial{"sources": []string{"s1"}}, false))

	assert.Equal(t, 0, f.patches(model.CollectionSources, ""))
}

func TestSinks_PatchOtherFieldsDoesNotTouchSources(t *testing.T) {
	f := newFixture(t, seed{
		sinks:   []model.Sink{{UID: "d1", Sources: []string{"s1"}}},
		sources: []model.Source{{ID: "s1", Destinations: []string{}}},
	})

	require.NoError(t, f.reg.Sinks.Patch(context.Background(), "d1", model.Partial{"url": "https://x"}, true))

	assert.Equal(t, "https://x", f.sink(t, "d1").Config["url"])
	assert.Equal(t, 0, f.patches(model.CollectionSources, ""))
}

func TestSinks_AddWithSourcesPropagates(t *testing.T) {
	f := newFixture(t, seed{sources: []model.Source{{ID: "s1", Destinations: []string{}}}})

	created, err := f.reg.Sinks.Add(context.Background(), model.Sink{Type: "webhook", Sources: []string{"s1"}}, true)
	require.NoError(t, err)

	assert.Equal(t, "sink-1", created.UID, "uid assigned by the server")
	assert.Equal(t, []string{"sink-1"}, f.source(t, "s1").Destinations)
}

func TestSinks_ReplacePropagates(t *testing.T) {
	f := newFixture(t, seed{
		sinks:   []model.Sink{{UID: "d1", Type: "webhook", Sources: []string{"s1"}}},
		sources: []model.Source{{ID: "s1", Destinations: []string{"d1"}}},
	})

	require.NoError(t, f.reg.Sinks.Replace(context.Background(), model.Sink{UID: "d1", Type: "webhook"}, true))

	assert.Equal(t, []string{}, f.source(t, "s1").Destinations)
}

func TestSinks_DeleteUnlinksSources(t *testing.T) {
	f := newFixture(t, seed{
		sinks: []model.Sink{{UID: "d1", Sources: []string{"s1"}}, {UID: "d2", Sources: []string{"s1"}}},
		sources: []model.Source{
			{ID: "s1", Destinations: []string{"d1", "d2"}},
			{ID: "s2", Destinations: []string{"d2"}},
		},
	})

	require.NoError(t, f.reg.Sinks.Delete(context.Background(), "d1"))

	assert.Equal(t, []string{"d2"}, f.source(t, "s1").Destinations)
	assert.Equal(t, 1, f.patches(model.CollectionSources, "s1"))
	assert.Equal(t, 0, f.patches(model.CollectionSources, "s2"))
	_, ok := f.sinksMem.Snapshot("d1")
	assert.False(t, ok)
}

func TestSinks_HiddenByCatalog(t *testing.T) {
	f := newFixture(t, seed{sinks: []model.Sink{
		{UID: "d1", Type: "webhook"},
		{UID: "h1", Type: "internal"},
	}})

	assert.Len(t, f.reg.Sinks.List(), 1)
	assert.Len(t, f.reg.Sinks.ListHidden(), 1)
	assert.Len(t, f.reg.Sinks.ListIncludeHidden(), 2)
	_, ok := f.reg.Sinks.Get("h1")
	assert.False(t, ok)
}

func TestSinks_PatchUnknownSink(t *testing.T) {
	f := newFixture(t, seed{})

	err := f.reg.Sinks.Patch(context.Background(), "ghost", model.Partial{"onlyKeys": []string{}}, true)

	require.Error(t, err)
	assert.Empty(t, f.rec.Calls())
	assert.Equal(t, 0, f.rec.Count("", remote.MethodPatch, ""))
}
