package matrix

import (
	"context"

	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/schema"
)

// masterCache loads each master table at most once per submission.
type masterCache struct {
	src  Source
	app  schema.App
	rows map[string][]model.Row
}

func newMasterCache(src Source, app schema.App) *masterCache {
	return &masterCache{src: src, app: app, rows: map[string][]model.Row{}}
}

func (m *masterCache) load(ctx context.Context, name string) ([]model.Row, error) {
	if rows, ok := m.rows[name]; ok {
		return rows, nil
	}
	def, ok := m.app.Master(name)
	if !ok {
		return nil, &ValidationError{Field: name, Msg: "unknown master"}
	}
	rows, err := m.src.Master(ctx, def)
	if err != nil {
		return nil, err
	}
	m.rows[name] = rows
	return rows, nil
}

// resolve derives the lookup columns of one candidate row. A cell that
// matches no master row derives zero values.
func (m *masterCache) resolve(ctx context.Context, lookups []schema.Lookup, candidate model.Row) (model.Row, error) {
	out := model.Row{}
	for _, l := range lookups {
		rows, err := m.load(ctx, l.Master)
		if err != nil {
			return nil, err
		}
		key := candidate[l.From]
		var hit model.Row
		if !key.IsBlank() {
			for _, r := range rows {
				if r[l.By].LooseEqual(key) {
					hit = r
					break
				}
			}
		}
		for dst, src := range l.Set {
			if hit == nil {
				out[dst] = model.Int(0)
				continue
			}
			out[dst] = hit[src]
		}
	}
	return out, nil
}
