package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_InsertAndGet(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tbl := s.Table("ws", "destinations")

	rec, err := tbl.Insert(ctx, "s1", map[string]any{
		"uid":     "s1",
		"type":    "webhook",
		"sources": []string{"a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.ID)
	assert.Equal(t, `{"sources":["a"],"type":"webhook","uid":"s1"}`, string(rec.Body))

	got, err := tbl.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestTable_InsertDuplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tbl := s.Table("ws", "keys")

	_, err := tbl.Insert(ctx, "k1", map[string]any{"uid": "k1"})
	require.NoError(t, err)

	_, err = tbl.Insert(ctx, "k1", map[string]any{"uid": "k1"})
	assert.ErrorIs(t, err, ErrExists)
}

func TestTable_ScopedByWorkspaceAndCollection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.Table("ws1", "keys").Insert(ctx, "k1", map[string]any{"uid": "k1"})
	require.NoError(t, err)
	// Same id in another workspace or collection is independent.
	_, err = s.Table("ws2", "keys").Insert(ctx, "k1", map[string]any{"uid": "k1"})
	require.NoError(t, err)
	_, err = s.Table("ws1", "sources").Insert(ctx, "k1", map[string]any{"id": "k1"})
	require.NoError(t, err)

	_, err = s.Table("ws3", "keys").Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTable_ListInsertionOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tbl := s.Table("ws", "sources")

	for _, id := range []string{"c", "a", "b"} {
		_, err := tbl.Insert(ctx, id, map[string]any{"id": id})
		require.NoError(t, err)
	}
	// Updates do not reorder.
	require.NoError(t, tbl.Put(ctx, "c", map[string]any{"id": "c", "destinations": []string{"x"}}))

	records, err := tbl.List(ctx)
	require.NoError(t, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Less(t, records[0].Seq, records[1].Seq)
}

func TestTable_ListEmpty(t *testing.T) {
	s := createTestStore(t)

	records, err := s.Table("ws", "keys").List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestTable_Merge(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tbl := s.Table("ws", "destinations")

	_, err := tbl.Insert(ctx, "s1", map[string]any{
		"uid":      "s1",
		"type":     "webhook",
		"onlyKeys": []string{"k1"},
		"url":      "https://example.com",
	})
	require.NoError(t, err)

	rec, err := tbl.Merge(ctx, "s1", map[string]any{"onlyKeys": []string{}, "retries": 3})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"uid":"s1","type":"webhook","onlyKeys":[],"url":"https://example.com","retries":3}`,
		string(rec.Body))

	got, err := tbl.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, string(rec.Body), string(got.Body))
}

func TestTable_MergeKeepsLargeIntegers(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tbl := s.Table("ws", "destinations")

	_, err := tbl.Insert(ctx, "s1", map[string]any{"uid": "s1", "big": int64(9007199254740993)})
	require.NoError(t, err)

	rec, err := tbl.Merge(ctx, "s1", map[string]any{"type": "x"})
	require.NoError(t, err)
	assert.Contains(t, string(rec.Body), `"big":9007199254740993`)
}

func TestTable_MissingRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tbl := s.Table("ws", "keys")

	_, err := tbl.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tbl.Merge(ctx, "nope", map[string]any{"comment": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = tbl.Put(ctx, "nope", map[string]any{"uid": "nope"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = tbl.Delete(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTable_Delete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tbl := s.Table("ws", "keys")

	_, err := tbl.Insert(ctx, "k1", map[string]any{"uid": "k1"})
	require.NoError(t, err)
	require.NoError(t, tbl.Delete(ctx, "k1"))

	_, err = tbl.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)

	// A deleted id may be inserted again.
	_, err = tbl.Insert(ctx, "k1", map[string]any{"uid": "k1"})
	assert.NoError(t, err)
}
