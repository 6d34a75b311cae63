package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridPatchJSON(t *testing.T) {
	p := GridPatch{
		Fields: Row{"total": String("12.10")},
		Collections: map[string][]RowPatch{
			"lines": {
				{Ref: 0, Op: OpUpdate, ID: 7, Fields: Row{"quantity": Int(3)}},
				{Ref: 1, Op: OpDelete, ID: 8},
				{Ref: 2, Op: OpInsert, Fields: Row{"description": String("Bolt")}},
			},
			"taxes": nil,
		},
	}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"12.10","lines":[{"id":7,"quantity":3},{"id":-8},{"description":"Bolt"}]}`, string(b))
	assert.Equal(t, []string{"lines"}, p.CollectionNames())
	assert.False(t, p.Empty())
}

func TestGridPatchEmpty(t *testing.T) {
	assert.True(t, GridPatch{}.Empty())
	assert.True(t, GridPatch{Collections: map[string][]RowPatch{"lines": {}}}.Empty())

	b, err := json.Marshal(GridPatch{})
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))
}
