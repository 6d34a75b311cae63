package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/schema"
)

// Apply writes a grid patch in one transaction: main-row fields first,
// then deletions, updates and inserts of each collection.
func (r *EntityRepo) Apply(ctx context.Context, app schema.App, id uint64, patch model.GridPatch) error {
	if patch.Empty() {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := applyPatch(ctx, tx, app, id, patch); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func applyPatch(ctx context.Context, tx *sql.Tx, app schema.App, id uint64, patch model.GridPatch) error {
	if len(patch.Fields) > 0 {
		for _, f := range patch.Fields.Fields() {
			if !app.HasField(f) {
				return fmt.Errorf("%w: %s.%s", ErrInvalidField, app.Table, f)
			}
		}
		set, args := assignments(patch.Fields)
		if _, err := tx.ExecContext(ctx, "UPDATE "+app.Table+" SET "+set+" WHERE id=?", append(args, id)...); err != nil {
			return err
		}
	}
	for _, name := range patch.CollectionNames() {
		coll, ok := app.Collection(name)
		if !ok || coll.Single {
			return fmt.Errorf("%w: collection %s", ErrInvalidField, name)
		}
		sub, _ := app.Subtable(coll.Table)
		allowed := writableColumns(coll)
		for _, rp := range patch.Collections[name] {
			for _, f := range rp.Fields.Fields() {
				if !allowed[f] {
					return fmt.Errorf("%w: %s.%s", ErrInvalidField, sub.Table, f)
				}
			}
			if err := applyRow(ctx, tx, sub, id, rp); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyRow(ctx context.Context, tx *sql.Tx, sub schema.Subtable, parent uint64, rp model.RowPatch) error {
	switch rp.Op {
	case model.OpDelete:
		res, err := tx.ExecContext(ctx,
			"DELETE FROM "+sub.Table+" WHERE id=? AND "+sub.FK+"=?", rp.ID, parent)
		if err != nil {
			return err
		}
		return expectRow(res, sub.Table, rp.ID)
	case model.OpUpdate:
		if len(rp.Fields) == 0 {
			return nil
		}
		set, args := assignments(rp.Fields)
		res, err := tx.ExecContext(ctx,
			"UPDATE "+sub.Table+" SET "+set+" WHERE id=? AND "+sub.FK+"=?", append(args, rp.ID, parent)...)
		if err != nil {
			return err
		}
		return expectRow(res, sub.Table, rp.ID)
	case model.OpInsert:
		fields := rp.Fields.Fields()
		cols := append([]string{sub.FK}, fields...)
		args := make([]any, 0, len(cols))
		args = append(args, parent)
		for _, f := range fields {
			args = append(args, rp.Fields[f].DB())
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
		_, err := tx.ExecContext(ctx,
			"INSERT INTO "+sub.Table+" ("+strings.Join(cols, ", ")+") VALUES ("+marks+")", args...)
		return err
	}
	return fmt.Errorf("repository: unknown patch op %q", rp.Op)
}

// assignments renders "a=?, b=?" for the row's fields in sorted order.
func assignments(row model.Row) (string, []any) {
	fields := row.Fields()
	parts := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		parts[i] = f + "=?"
		args[i] = row[f].DB()
	}
	return strings.Join(parts, ", "), args
}

func writableColumns(c schema.Collection) map[string]bool {
	out := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		out[col] = true
	}
	for _, l := range c.Lookups {
		for dst := range l.Set {
			out[dst] = true
		}
	}
	return out
}

func expectRow(res sql.Result, table string, id uint64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s id %d", ErrNotFound, table, id)
	}
	return nil
}
