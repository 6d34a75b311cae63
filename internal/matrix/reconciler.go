// Package matrix turns positional grids submitted by spreadsheet-like
// clients into the minimal patch against the persisted rows.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/schema"
)

// Source reads the persisted state a submission is compared against.
type Source interface {
	Main(ctx context.Context, app schema.App, id uint64) (model.Row, error)
	Rows(ctx context.Context, sub schema.Subtable, id uint64) ([]model.Row, error)
	Master(ctx context.Context, m schema.Master) ([]model.Row, error)
}

// ValidationError reports a submission that does not fit the app layout.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Reconciler computes grid patches.
type Reconciler struct {
	apps    *schema.Registry
	src     Source
	matcher RowMatcher
}

// NewReconciler returns a reconciler. A nil matcher means positional.
func NewReconciler(apps *schema.Registry, src Source, matcher RowMatcher) *Reconciler {
	if matcher == nil {
		matcher = PositionalMatcher{}
	}
	return &Reconciler{apps: apps, src: src, matcher: matcher}
}

// Unmake compares a submission with entity id of app and returns only
// what changed. Scalar keys must be main-row fields; grid keys must be
// registered collections. A grid left out of the submission, or sent as
// null, counts as empty and deletes every persisted row.
func (r *Reconciler) Unmake(ctx context.Context, appName string, id uint64, submitted map[string]json.RawMessage) (model.GridPatch, error) {
	patch := model.GridPatch{Fields: model.Row{}, Collections: map[string][]model.RowPatch{}}
	app, err := r.apps.App(appName)
	if err != nil {
		return patch, err
	}
	main, err := r.src.Main(ctx, app, id)
	if err != nil {
		return patch, err
	}

	keys := make([]string, 0, len(submitted))
	for k := range submitted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := app.Collection(k); ok {
			continue
		}
		if !app.HasField(k) {
			return patch, &ValidationError{Field: k, Msg: "unknown field"}
		}
		var v model.Value
		if err := json.Unmarshal(submitted[k], &v); err != nil {
			return patch, &ValidationError{Field: k, Msg: err.Error()}
		}
		if !v.LooseEqual(main[k]) {
			patch.Fields[k] = v
		}
	}

	masters := newMasterCache(r.src, app)
	for _, c := range app.Collections {
		raw := submitted[c.Name]
		if c.Single {
			if isNull(raw) {
				continue
			}
			if err := r.totals(c, raw, main, patch.Fields); err != nil {
				return patch, err
			}
			continue
		}
		var rows [][]model.Value
		if !isNull(raw) {
			if rows, err = parseGrid(c, raw); err != nil {
				return patch, err
			}
		}
		sub, _ := app.Subtable(c.Table)
		persisted, err := r.src.Rows(ctx, sub, id)
		if err != nil {
			return patch, err
		}
		entries, err := r.collection(ctx, c, rows, persisted, masters)
		if err != nil {
			return patch, err
		}
		if len(entries) > 0 {
			patch.Collections[c.Name] = entries
		}
	}
	return patch, nil
}

func (r *Reconciler) collection(ctx context.Context, c schema.Collection, rows [][]model.Value,
	persisted []model.Row, masters *masterCache) ([]model.RowPatch, error) {
	var out []model.RowPatch
	matches, orphans := r.matcher.Match(rows, persisted)
	for _, m := range matches {
		cells := rows[m.Submitted]
		var prow model.Row
		if m.Persisted >= 0 {
			prow = persisted[m.Persisted]
		}
		if blankRow(cells) {
			if prow != nil {
				out = append(out, model.RowPatch{Ref: m.Submitted, Op: model.OpDelete, ID: rowID(prow)})
			}
			continue
		}

		candidate := make(model.Row, len(c.Columns))
		for i, col := range c.Columns {
			candidate[col] = cells[i]
		}
		derived, err := masters.resolve(ctx, c.Lookups, candidate)
		if err != nil {
			return nil, err
		}

		if prow == nil {
			fields := model.Row{}
			for col, v := range candidate {
				if !v.IsBlank() {
					fields[col] = v
				}
			}
			for col, v := range derived {
				if !zeroValue(v) {
					fields[col] = v
				}
			}
			out = append(out, model.RowPatch{Ref: m.Submitted, Op: model.OpInsert, Fields: fields})
			continue
		}

		for col, v := range derived {
			candidate[col] = v
		}
		delta := model.Row{}
		for col, v := range candidate {
			if !v.LooseEqual(prow[col]) {
				delta[col] = v
			}
		}
		if len(delta) > 0 {
			out = append(out, model.RowPatch{Ref: m.Submitted, Op: model.OpUpdate, ID: rowID(prow), Fields: delta})
		}
	}
	for _, p := range orphans {
		out = append(out, model.RowPatch{Ref: p, Op: model.OpDelete, ID: rowID(persisted[p])})
	}
	return out, nil
}

// totals compares a single-row collection with the main row and records
// changed columns as main-row fields.
func (r *Reconciler) totals(c schema.Collection, raw json.RawMessage, main, fields model.Row) error {
	values, err := parseSingle(c, raw)
	if err != nil {
		return err
	}
	for col, v := range values {
		if !v.LooseEqual(main[col]) {
			fields[col] = v
		} else {
			delete(fields, col)
		}
	}
	return nil
}

// parseGrid reads a list of positional rows. Short rows are padded with
// nulls; rows longer than the layout are rejected.
func parseGrid(c schema.Collection, raw json.RawMessage) ([][]model.Value, error) {
	var rows [][]model.Value
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, &ValidationError{Field: c.Name, Msg: "expected a list of rows of scalar cells"}
	}
	for i, row := range rows {
		if len(row) > len(c.Columns) {
			return nil, &ValidationError{Field: c.Name, Msg: fmt.Sprintf("row %d has %d cells, layout has %d", i, len(row), len(c.Columns))}
		}
		for len(row) < len(c.Columns) {
			row = append(row, model.Null())
		}
		rows[i] = row
	}
	return rows, nil
}

// parseSingle accepts a flat object keyed by column, a flat positional
// row or a grid holding one positional row.
func parseSingle(c schema.Collection, raw json.RawMessage) (model.Row, error) {
	trimmed := bytes.TrimSpace(raw)
	out := model.Row{}
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]model.Value
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, &ValidationError{Field: c.Name, Msg: err.Error()}
		}
		allowed := make(map[string]bool, len(c.Columns))
		for _, col := range c.Columns {
			allowed[col] = true
		}
		for k, v := range obj {
			if !allowed[k] {
				return nil, &ValidationError{Field: c.Name + "." + k, Msg: "unknown field"}
			}
			out[k] = v
		}
		return out, nil
	}

	var row []model.Value
	if err := json.Unmarshal(trimmed, &row); err != nil {
		rows, gerr := parseGrid(c, trimmed)
		if gerr != nil {
			return nil, gerr
		}
		if len(rows) == 0 {
			return out, nil
		}
		if len(rows) > 1 {
			return nil, &ValidationError{Field: c.Name, Msg: "expected a single row"}
		}
		row = rows[0]
	}
	if len(row) > len(c.Columns) {
		return nil, &ValidationError{Field: c.Name, Msg: fmt.Sprintf("row has %d cells, layout has %d", len(row), len(c.Columns))}
	}
	for i, v := range row {
		out[c.Columns[i]] = v
	}
	return out, nil
}

func blankRow(cells []model.Value) bool {
	for _, v := range cells {
		if !v.IsBlank() {
			return false
		}
	}
	return true
}

// zeroValue reports a derived cell not worth inserting: blank or numeric zero.
func zeroValue(v model.Value) bool {
	if v.IsBlank() {
		return true
	}
	n, ok := v.Number()
	return ok && n == 0
}

func rowID(r model.Row) uint64 {
	n, _ := r["id"].Int64()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
