package schema

// billing builds the layout shared by invoices and quotes: a header row,
// line items, a tax breakdown and a totals row, with taxes resolved
// against the app_taxes master.
func billing(name, table, fk string) App {
	lines := table + "_lines"
	taxes := table + "_taxes"
	return App{
		Name:  name,
		Table: table,
		Subtables: []Subtable{
			{Table: lines, FK: fk},
			{Table: taxes, FK: fk},
		},
		Fields: []string{"customer", "description", "notes", "subtotal", "tax", "total"},
		Collections: []Collection{
			{
				Name:    "lines",
				Table:   lines,
				Columns: []string{"description", "quantity", "price", "discount", "tax_value", "total"},
				Lookups: []Lookup{
					{Master: "taxes", From: "tax_value", By: "value", Set: map[string]string{"tax_id": "id"}},
				},
			},
			{
				Name:    "taxes",
				Table:   taxes,
				Columns: []string{"tax_name", "base", "tax"},
				Lookups: []Lookup{
					{Master: "taxes", From: "tax_name", By: "name", Set: map[string]string{"tax_id": "id", "tax_value": "value"}},
				},
			},
			{
				Name:    "totals",
				Single:  true,
				Columns: []string{"subtotal", "tax", "total"},
			},
		},
		Masters: []Master{
			{Name: "taxes", Table: "app_taxes", Where: "active = 1"},
		},
	}
}

// Defaults returns the apps shipped with the service.
func Defaults() []App {
	return []App{
		billing("invoices", "app_invoices", "invoice_id"),
		billing("quotes", "app_quotes", "quote_id"),
	}
}

// DefaultRegistry registers Defaults. It panics on an invalid layout.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		panic(err)
	}
	return r
}
