package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
)

// PatchOp is the kind of change a RowPatch applies.
type PatchOp string

const (
	OpInsert PatchOp = "insert"
	OpUpdate PatchOp = "update"
	OpDelete PatchOp = "delete"
)

// RowPatch is one entry of a GridPatch. Ref is the position of the
// submitted row it came from, or of the persisted row for trailing
// deletions. ID is zero for inserts.
type RowPatch struct {
	Ref    int
	Op     PatchOp
	ID     uint64
	Fields Row
}

// MarshalJSON renders the sparse client form: inserts carry only their
// fields, updates add "id" and deletions are {"id": -id}.
func (p RowPatch) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Fields)+1)
	switch p.Op {
	case OpDelete:
		return []byte(`{"id":-` + strconv.FormatUint(p.ID, 10) + `}`), nil
	case OpUpdate:
		out["id"] = p.ID
	}
	for k, v := range p.Fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// GridPatch is the minimal change computed for a submitted grid. Fields
// holds main-row changes; Collections holds row changes per grid name.
type GridPatch struct {
	Fields      Row
	Collections map[string][]RowPatch
}

// Empty reports a patch with nothing to apply.
func (g GridPatch) Empty() bool {
	if len(g.Fields) > 0 {
		return false
	}
	for _, rows := range g.Collections {
		if len(rows) > 0 {
			return false
		}
	}
	return true
}

// CollectionNames returns the non-empty collections in sorted order.
func (g GridPatch) CollectionNames() []string {
	var out []string
	for name, rows := range g.Collections {
		if len(rows) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// MarshalJSON flattens main-row fields and collections into one object,
// omitting collections without changes.
func (g GridPatch) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(g.Fields)+len(g.Collections))
	for k, v := range g.Fields {
		out[k] = v
	}
	for _, name := range g.CollectionNames() {
		out[name] = g.Collections[name]
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
