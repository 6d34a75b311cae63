package model

import "sort"

// Row maps column names to values.
type Row map[string]Value

// Table maps a row id (decimal text) to the row.
type Table map[string]Row

// Snapshot is the full state of a versioned entity: the main row plus
// the rows of every registered subtable, keyed by table name.
type Snapshot map[string]Table

// ChangeSet has the same shape as a Snapshot. Each table it names lists
// every row that exists at that version; a row carries only the fields
// that changed. Rows missing from a listed table were deleted.
type ChangeSet map[string]Table

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields returns the column names in sorted order.
func (r Row) Fields() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IDs returns the row ids of the table ordered numerically when possible.
func (t Table) IDs() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		a, aok := String(out[i]).Int64()
		b, bok := String(out[j]).Int64()
		if aok && bok && a != b {
			return a < b
		}
		return out[i] < out[j]
	})
	return out
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for name, t := range s {
		ct := make(Table, len(t))
		for id, r := range t {
			ct[id] = r.Clone()
		}
		out[name] = ct
	}
	return out
}

// Diff computes the change set that turns prev into cur. Tables of cur
// are always listed; unchanged rows appear with no fields.
func Diff(prev, cur Snapshot) ChangeSet {
	cs := make(ChangeSet, len(cur))
	for name, rows := range cur {
		old := prev[name]
		t := make(Table, len(rows))
		for id, row := range rows {
			before := old[id]
			delta := Row{}
			for field, v := range row {
				if pv, ok := before[field]; !ok || !pv.Equal(v) {
					delta[field] = v
				}
			}
			t[id] = delta
		}
		cs[name] = t
	}
	return cs
}

// Changed reports whether applying cs to prev yields a different state.
func (cs ChangeSet) Changed(prev Snapshot) bool {
	for name, rows := range cs {
		old := prev[name]
		for id, delta := range rows {
			if _, ok := old[id]; !ok || len(delta) > 0 {
				return true
			}
		}
		for id := range old {
			if _, ok := rows[id]; !ok {
				return true
			}
		}
	}
	return false
}

// Apply folds cs into a copy of s. Later values overwrite earlier ones
// field by field; rows absent from a listed table are removed.
func (s Snapshot) Apply(cs ChangeSet) Snapshot {
	out := s.Clone()
	for name, rows := range cs {
		t, ok := out[name]
		if !ok {
			t = Table{}
			out[name] = t
		}
		for id, delta := range rows {
			r, ok := t[id]
			if !ok {
				r = Row{}
				t[id] = r
			}
			for field, v := range delta {
				r[field] = v
			}
		}
		for id := range t {
			if _, ok := rows[id]; !ok {
				delete(t, id)
			}
		}
	}
	return out
}
