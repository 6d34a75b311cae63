// Package schema describes the versioned apps the service knows about:
// their main table, the subtables captured in each version and the
// positional grid layouts accepted by the reconciler.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ErrUnknownApp is returned when an app name is not registered.
var ErrUnknownApp = errors.New("unknown app")

// Subtable is a child table whose rows reference the main row through FK.
type Subtable struct {
	Table string
	FK    string
}

// Lookup derives a column of a grid row from master data. The submitted
// cell in From is matched against master column By; the master row's
// columns are copied as described by Set (row field -> master field).
type Lookup struct {
	Master string
	From   string
	By     string
	Set    map[string]string
}

// Collection is the positional layout of one grid submitted by clients.
// Columns names the fields at each cell position. A collection with
// Single set is a flat object compared against the main row.
type Collection struct {
	Name    string
	Table   string
	Columns []string
	Lookups []Lookup
	Single  bool
}

// Master is a read-only reference table used by lookups.
type Master struct {
	Name  string
	Table string
	Where string
}

// App is a versioned application entity.
type App struct {
	Name        string
	Table       string
	Subtables   []Subtable
	Fields      []string
	Collections []Collection
	Masters     []Master
}

// VersionTable returns the table holding the app's audit trail.
func (a App) VersionTable() string { return a.Table + "_version" }

// Collection returns the layout registered under name.
func (a App) Collection(name string) (Collection, bool) {
	for _, c := range a.Collections {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// Subtable returns the subtable definition for table.
func (a App) Subtable(table string) (Subtable, bool) {
	for _, s := range a.Subtables {
		if s.Table == table {
			return s, true
		}
	}
	return Subtable{}, false
}

// Master returns the master definition registered under name.
func (a App) Master(name string) (Master, bool) {
	for _, m := range a.Masters {
		if m.Name == name {
			return m, true
		}
	}
	return Master{}, false
}

// HasField reports whether field may be written on the main row.
func (a App) HasField(field string) bool {
	for _, f := range a.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// Validate checks every identifier that ends up inside SQL text.
func (a App) Validate() error {
	check := func(what, s string) error {
		if !identRe.MatchString(s) {
			return fmt.Errorf("schema %s: invalid %s %q", a.Name, what, s)
		}
		return nil
	}
	if err := check("app name", a.Name); err != nil {
		return err
	}
	if err := check("table", a.Table); err != nil {
		return err
	}
	for _, f := range a.Fields {
		if err := check("field", f); err != nil {
			return err
		}
	}
	for _, s := range a.Subtables {
		if err := check("subtable", s.Table); err != nil {
			return err
		}
		if err := check("foreign key", s.FK); err != nil {
			return err
		}
	}
	for _, m := range a.Masters {
		if err := check("master", m.Table); err != nil {
			return err
		}
	}
	for _, c := range a.Collections {
		if a.HasField(c.Name) {
			return fmt.Errorf("schema %s: collection %s shadows a main field", a.Name, c.Name)
		}
		if !c.Single {
			if _, ok := a.Subtable(c.Table); !ok {
				return fmt.Errorf("schema %s: collection %s uses unregistered table %s", a.Name, c.Name, c.Table)
			}
		}
		for _, col := range c.Columns {
			if err := check("column", col); err != nil {
				return err
			}
			if c.Single && !a.HasField(col) {
				return fmt.Errorf("schema %s: totals column %s is not a main field", a.Name, col)
			}
		}
		for _, l := range c.Lookups {
			if _, ok := a.Master(l.Master); !ok {
				return fmt.Errorf("schema %s: collection %s uses unknown master %s", a.Name, c.Name, l.Master)
			}
			for dst, src := range l.Set {
				if err := check("column", dst); err != nil {
					return err
				}
				if err := check("column", src); err != nil {
					return err
				}
			}
			if err := check("column", l.By); err != nil {
				return err
			}
		}
	}
	return nil
}

// Registry holds the known apps by name.
type Registry struct {
	apps map[string]App
}

// NewRegistry validates and registers apps.
func NewRegistry(apps ...App) (*Registry, error) {
	r := &Registry{apps: make(map[string]App, len(apps))}
	for _, a := range apps {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.apps[a.Name]; dup {
			return nil, fmt.Errorf("schema: app %s registered twice", a.Name)
		}
		r.apps[a.Name] = a
	}
	return r, nil
}

// App returns the registered app or ErrUnknownApp.
func (r *Registry) App(name string) (App, error) {
	a, ok := r.apps[name]
	if !ok {
		return App{}, fmt.Errorf("%w: %s", ErrUnknownApp, name)
	}
	return a, nil
}

// Names lists the registered apps in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.apps))
	for n := range r.apps {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
