package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/entitysync/internal/model"
)

// Record is one stored entity row.
type Record struct {
	ID   string
	Body json.RawMessage
	Seq  int64
}

// Table is a handle on the rows of one collection in one workspace.
// Tables are cheap; create them on demand.
type Table struct {
	db         *sql.DB
	workspace  string
	collection string
}

// Table returns a handle for the given workspace and collection.
func (s *Store) Table(workspace, collection string) *Table {
	return &Table{db: s.db, workspace: workspace, collection: collection}
}

// Workspace returns the workspace this table is scoped to.
func (t *Table) Workspace() string { return t.workspace }

// Collection returns the collection name.
func (t *Table) Collection() string { return t.collection }

// List returns every row in insertion order.
// Returns an empty slice (not nil) when the collection is empty.
func (t *Table) List(ctx context.Context) ([]Record, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, body, seq
		FROM entities
		WHERE workspace = ? AND collection = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, t.workspace, t.collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.collection, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r    Record
			body string
		)
		if err := rows.Scan(&r.ID, &body, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", t.collection, err)
		}
		r.Body = json.RawMessage(body)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", t.collection, err)
	}
	return records, nil
}

// Get returns the row with the given id, or ErrNotFound.
func (t *Table) Get(ctx context.Context, id string) (Record, error) {
	return getRow(ctx, t.db, t.workspace, t.collection, id)
}

// Insert stores body under id. Returns ErrExists if the id is taken.
func (t *Table) Insert(ctx context.Context, id string, body any) (Record, error) {
	canonical, err := model.MarshalCanonical(body)
	if err != nil {
		return Record{}, fmt.Errorf("canonicalize %s/%s: %w", t.collection, id, err)
	}

	res, err := t.db.ExecContext(ctx, `
		INSERT INTO entities (workspace, collection, id, body, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM entities))
		ON CONFLICT(workspace, collection, id) DO NOTHING
	`, t.workspace, t.collection, id, string(canonical))
	if err != nil {
		return Record{}, fmt.Errorf("insert %s/%s: %w", t.collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, fmt.Errorf("check insert result: %w", err)
	}
	if n == 0 {
		return Record{}, fmt.Errorf("insert %s/%s: %w", t.collection, id, ErrExists)
	}
	return t.Get(ctx, id)
}

// Merge overlays the top-level fields of patch onto the stored body and
// returns the merged row. Returns ErrNotFound if the id is absent.
func (t *Table) Merge(ctx context.Context, id string, patch map[string]any) (Record, error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	current, err := getRow(ctx, tx, t.workspace, t.collection, id)
	if err != nil {
		return Record{}, err
	}

	generic, err := model.ToGeneric(current.Body)
	if err != nil {
		return Record{}, fmt.Errorf("decode %s/%s: %w", t.collection, id, err)
	}
	doc, ok := generic.(map[string]any)
	if !ok {
		doc = map[string]any{}
	}
	for k, v := range patch {
		doc[k] = v
	}

	canonical, err := model.MarshalCanonical(doc)
	if err != nil {
		return Record{}, fmt.Errorf("canonicalize %s/%s: %w", t.collection, id, err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE entities SET body = ?
		WHERE workspace = ? AND collection = ? AND id = ?
	`, string(canonical), t.workspace, t.collection, id); err != nil {
		return Record{}, fmt.Errorf("update %s/%s: %w", t.collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit merge: %w", err)
	}

	current.Body = json.RawMessage(canonical)
	return current, nil
}

// Put replaces the stored body. Returns ErrNotFound if the id is absent.
func (t *Table) Put(ctx context.Context, id string, body any) error {
	canonical, err := model.MarshalCanonical(body)
	if err != nil {
		return fmt.Errorf("canonicalize %s/%s: %w", t.collection, id, err)
	}
	res, err := t.db.ExecContext(ctx, `
		UPDATE entities SET body = ?
		WHERE workspace = ? AND collection = ? AND id = ?
	`, string(canonical), t.workspace, t.collection, id)
	if err != nil {
		return fmt.Errorf("replace %s/%s: %w", t.collection, id, err)
	}
	return expectOneRow(res, t.collection, id)
}

// Delete removes the row. Returns ErrNotFound if the id is absent.
func (t *Table) Delete(ctx context.Context, id string) error {
	res, err := t.db.ExecContext(ctx, `
		DELETE FROM entities
		WHERE workspace = ? AND collection = ? AND id = ?
	`, t.workspace, t.collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", t.collection, id, err)
	}
	return expectOneRow(res, t.collection, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRow(ctx context.Context, q queryRower, workspace, collection, id string) (Record, error) {
	var (
		r    Record
		body string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, body, seq
		FROM entities
		WHERE workspace = ? AND collection = ? AND id = ?
	`, workspace, collection, id).Scan(&r.ID, &body, &r.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	r.Body = json.RawMessage(body)
	return r, nil
}

func expectOneRow(res sql.Result, collection, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return nil
}
