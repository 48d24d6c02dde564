package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyOf(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		wantID string
		wantOK bool
	}{
		{name: "string", value: "a1", wantID: "a1", wantOK: true},
		{name: "empty string", value: "", wantOK: false},
		{name: "int", value: 42, wantID: "42", wantOK: true},
		{name: "int64", value: int64(7), wantID: "7", wantOK: true},
		{name: "integral float from json", value: float64(1700000000000), wantID: "1700000000000", wantOK: true},
		{name: "fractional float", value: 1.5, wantOK: false},
		{name: "json number", value: json.Number("12"), wantID: "12", wantOK: true},
		{name: "nil", value: nil, wantOK: false},
		{name: "bool", value: true, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := KeyOf(tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestIDOf_UsesTypeKeyField(t *testing.T) {
	id, ok := IDOf(CompanySettings, Record{"company_id": "c-1", "id": "ignored"})
	require.True(t, ok)
	assert.Equal(t, "c-1", id)

	id, ok = IDOf(Drivers, Record{"id": float64(3)})
	require.True(t, ok)
	assert.Equal(t, "3", id)

	_, ok = IDOf(Shipments, Record{"name": "no id"})
	assert.False(t, ok)
}

func TestRecord_CloneIsDeep(t *testing.T) {
	orig := Record{
		"id":       "s1",
		"products": []any{map[string]any{"carton_count": float64(2)}},
	}

	cp := orig.Clone()
	cp["products"].([]any)[0].(map[string]any)["carton_count"] = float64(9)

	assert.Equal(t, float64(2), orig["products"].([]any)[0].(map[string]any)["carton_count"])
}

func TestRecord_PatchAndPending(t *testing.T) {
	base := Record{"id": "s1", "status": "draft", "driver": "d1"}

	patched := base.Patch(Record{"status": "approved"})
	assert.Equal(t, "approved", patched["status"])
	assert.Equal(t, "d1", patched["driver"])
	assert.Equal(t, "draft", base["status"])

	pending := patched.WithPending(true)
	assert.True(t, pending.Pending())
	assert.False(t, patched.Pending())
	assert.False(t, pending.WithPending(false).Pending())
}

func TestSameContent_IgnoresPendingMarker(t *testing.T) {
	a := Record{"id": "s1", "status": "draft"}
	b := Record{"status": "draft", "id": "s1", PendingSyncField: true}
	c := Record{"id": "s1", "status": "approved"}

	assert.True(t, SameContent(a, b))
	assert.False(t, SameContent(a, c))
}

func TestParse(t *testing.T) {
	typ, err := Parse("shipments")
	require.NoError(t, err)
	assert.Equal(t, Shipments, typ)

	_, err = Parse("bogus")
	assert.ErrorIs(t, err, ErrUnknownType)

	assert.Len(t, All(), len(descriptors))
}

func TestCovers(t *testing.T) {
	remote := Record{"id": "s1", "status": "draft", "created_at": "2024-01-01", "qty": float64(3)}

	assert.True(t, Covers(remote, Record{"id": "s1", "status": "draft", PendingSyncField: true}))
	assert.True(t, Covers(remote, Record{"qty": 3}))
	assert.False(t, Covers(remote, Record{"id": "s1", "status": "approved"}))
	assert.False(t, Covers(remote, Record{"id": "s1", "driver": "d1"}))
}
