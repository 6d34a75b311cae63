package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"invoices", "quotes"}, r.Names())

	inv, err := r.App("invoices")
	require.NoError(t, err)
	assert.Equal(t, "app_invoices_version", inv.VersionTable())

	lines, ok := inv.Collection("lines")
	require.True(t, ok)
	assert.Equal(t, "app_invoices_lines", lines.Table)
	assert.Len(t, lines.Columns, 6)

	sub, ok := inv.Subtable("app_invoices_lines")
	require.True(t, ok)
	assert.Equal(t, "invoice_id", sub.FK)

	q, err := r.App("quotes")
	require.NoError(t, err)
	sub, ok = q.Subtable("app_quotes_taxes")
	require.True(t, ok)
	assert.Equal(t, "quote_id", sub.FK)
}

func TestUnknownApp(t *testing.T) {
	_, err := DefaultRegistry().App("emails")
	assert.True(t, errors.Is(err, ErrUnknownApp))
}

func TestValidateRejectsBadIdentifiers(t *testing.T) {
	cases := map[string]App{
		"table":    {Name: "x", Table: "x; DROP TABLE y"},
		"field":    {Name: "x", Table: "x", Fields: []string{"a b"}},
		"subtable": {Name: "x", Table: "x", Subtables: []Subtable{{Table: "X", FK: "x_id"}}},
		"collection table": {Name: "x", Table: "x", Collections: []Collection{{Name: "c", Table: "nope"}}},
		"master": {Name: "x", Table: "x", Subtables: []Subtable{{Table: "x_l", FK: "x_id"}},
			Collections: []Collection{{Name: "c", Table: "x_l", Lookups: []Lookup{{Master: "m", By: "id"}}}}},
		"totals": {Name: "x", Table: "x", Collections: []Collection{{Name: "t", Single: true, Columns: []string{"total"}}}},
	}
	for name, app := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(app)
			assert.Error(t, err)
		})
	}
}

func TestDuplicateApp(t *testing.T) {
	a := App{Name: "x", Table: "x"}
	_, err := NewRegistry(a, a)
	assert.Error(t, err)
}
