package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entitysync/internal/model"
)

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	m := NewMemory[model.Sink](model.CollectionSinks, WithRecorder[model.Sink](rec))

	created, err := m.Add(ctx, model.Sink{UID: "d1", Type: "webhook"})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "d1", created.UID)

	require.NoError(t, m.Patch(ctx, "d1", model.Partial{"onlyKeys": []string{"k1"}}))
	got, err := m.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, got.OnlyKeys)
	assert.Equal(t, "webhook", got.Type)

	require.NoError(t, m.Replace(ctx, "d1", model.Sink{UID: "d1", Type: "s3"}))
	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "s3", all[0].Type)
	assert.Empty(t, all[0].OnlyKeys)

	require.NoError(t, m.Delete(ctx, "d1"))
	err = m.Delete(ctx, "d1")
	assert.True(t, IsNotFound(err))

	assert.Len(t, rec.Calls(), 7)
	assert.Equal(t, 2, rec.Count(model.CollectionSinks, MethodDelete, "d1"))
	assert.Equal(t, 1, rec.Count("", MethodPatch, ""))
}

func TestMemoryAddConflictAndMissingID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[model.Key](model.CollectionKeys)

	_, err := m.Add(ctx, model.Key{UID: "k1"})
	require.NoError(t, err)
	_, err = m.Add(ctx, model.Key{UID: "k1"})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = m.Add(ctx, model.Key{})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestMemoryAssignsIDs(t *testing.T) {
	ctx := context.Background()
	n := 0
	next := func() string { n++; return "src-" + string(rune('0'+n)) }
	m := NewMemory[model.Source](model.CollectionSources, WithAssignID(AssignSourceID(next)))

	created, err := m.Add(ctx, model.Source{Destinations: []string{"d1"}})
	require.NoError(t, err)
	assert.Equal(t, "src-1", created.ID)

	kept, err := m.Add(ctx, model.Source{ID: "mine"})
	require.NoError(t, err)
	assert.Equal(t, "mine", kept.ID)
}

func TestMemoryFailNextAndReturnNothing(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()
	m := NewMemory[model.Key](model.CollectionKeys, WithRecorder[model.Key](rec))
	boom := errors.New("boom")

	m.FailNext(MethodAdd, boom)
	_, err := m.Add(ctx, model.Key{UID: "k1"})
	assert.ErrorIs(t, err, boom)
	_, ok := m.Snapshot("k1")
	assert.False(t, ok, "failed add stores nothing")
	assert.Equal(t, "boom", rec.Calls()[0].Err)

	m.ReturnNothing(true)
	out, err := m.Add(ctx, model.Key{UID: "k1"})
	require.NoError(t, err)
	assert.Nil(t, out)
	_, ok = m.Snapshot("k1")
	assert.True(t, ok)
}

func TestMemoryDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[model.Sink](model.CollectionSinks)
	s := model.Sink{UID: "d1", OnlyKeys: []string{"k1"}}
	require.NoError(t, m.Seed(s))

	s.OnlyKeys[0] = "mutated"
	got, err := m.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, got.OnlyKeys)
}

func TestRecorderReset(t *testing.T) {
	rec := NewRecorder()
	rec.record(Call{Method: MethodGet})
	rec.Reset()
	assert.Empty(t, rec.Calls())
	rec.record(Call{Method: MethodGet})
	assert.Equal(t, int64(2), rec.Calls()[0].Seq)
}
