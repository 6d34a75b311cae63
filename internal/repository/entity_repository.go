package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/schema"
)

// EntityRepo reads and writes rows of versioned apps. Table and column
// names come from a validated schema.App, never from request input.
type EntityRepo struct{ DB *sql.DB }

func NewEntityRepo(db *sql.DB) *EntityRepo { return &EntityRepo{DB: db} }

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryRows(ctx context.Context, q querier, query string, args ...any) ([]model.Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []model.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(model.Row, len(cols))
		for i, c := range cols {
			r[c] = model.FromDB(vals[i])
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Main returns the app's main row.
func (r *EntityRepo) Main(ctx context.Context, app schema.App, id uint64) (model.Row, error) {
	rows, err := queryRows(ctx, r.DB, "SELECT * FROM "+app.Table+" WHERE id=?", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Rows returns the rows of a subtable that belong to parent id, in
// storage order.
func (r *EntityRepo) Rows(ctx context.Context, sub schema.Subtable, id uint64) ([]model.Row, error) {
	return queryRows(ctx, r.DB, "SELECT * FROM "+sub.Table+" WHERE "+sub.FK+"=? ORDER BY id", id)
}

// Master returns the rows of a master table.
func (r *EntityRepo) Master(ctx context.Context, m schema.Master) ([]model.Row, error) {
	q := "SELECT * FROM " + m.Table
	if m.Where != "" {
		q += " WHERE " + m.Where
	}
	return queryRows(ctx, r.DB, q+" ORDER BY id")
}

// State reads the main row and every subtable into a snapshot.
func (r *EntityRepo) State(ctx context.Context, app schema.App, id uint64) (model.Snapshot, error) {
	main, err := r.Main(ctx, app, id)
	if err != nil {
		return nil, err
	}
	snap := model.Snapshot{app.Table: model.Table{main["id"].Text(): main}}
	for _, sub := range app.Subtables {
		rows, err := r.Rows(ctx, sub, id)
		if err != nil {
			return nil, err
		}
		t := make(model.Table, len(rows))
		for _, row := range rows {
			t[row["id"].Text()] = row
		}
		snap[sub.Table] = t
	}
	return snap, nil
}
