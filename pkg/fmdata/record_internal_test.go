package fmdata

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func detachedRecord(t *testing.T, raw string) *Record {
	t.Helper()
	var row wireRow
	require.NoError(t, json.Unmarshal([]byte(raw), &row))
	r := newRecord(&Layout{name: "L"}, nil)
	r.hydrate(row)
	return r
}

func TestHydrateThenSnapshot(t *testing.T) {
	r := detachedRecord(t, `{
		"recordId": "7",
		"modId": 3,
		"fieldData": {"b": "x", "a": 1},
		"portalData": {"P": [{"recordId": "11", "modId": "2", "P::f": "v"}]}
	}`)

	assert.Equal(t, 7, r.RecordID())
	assert.Equal(t, 3, r.ModID())
	assert.Equal(t, StatePersisted, r.State())
	assert.False(t, r.Edited())

	got := r.ToWire(Snapshot)
	want := WireRecord{
		RecordID:  "7",
		ModID:     "3",
		FieldData: map[string]any{"a": float64(1), "b": "x"},
		PortalData: map[string][]map[string]any{
			"P": {{"recordId": "11", "modId": "2", "P::f": "v"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	row := r.PortalByName("P").Records()[0]
	assert.Same(t, r, row.Root())
	assert.Equal(t, 11, row.RecordID())
}

func TestToWireDefaultsToEdits(t *testing.T) {
	r := detachedRecord(t, `{"recordId": "1", "modId": "0", "fieldData": {"a": "1", "b": "2"},
		"portalData": {"P": [{"recordId": "5", "modId": "1", "P::f": "v", "P::g": "w"}]}}`)

	empty := r.ToWire(WireOptions{})
	assert.Empty(t, empty.FieldData)
	assert.Nil(t, empty.PortalData)

	require.NoError(t, r.Set("b", "3"))
	require.NoError(t, r.PortalByName("P").Records()[0].Set("P::g", "z"))
	got := r.ToWire(WireOptions{})
	assert.Equal(t, map[string]any{"b": "3"}, got.FieldData)
	assert.Equal(t, map[string][]map[string]any{
		"P": {{"recordId": "5", "modId": "1", "P::g": "z"}},
	}, got.PortalData)

	r.PortalByName("P").markSaved()
	r.MarkSaved()
	assert.False(t, r.Edited())
}

func TestNewRecordHasNoIDs(t *testing.T) {
	r := newRecord(&Layout{name: "L"}, nil)
	r.addField("a", "")
	w := r.ToWire(Snapshot)
	assert.Empty(t, w.RecordID)
	assert.Empty(t, w.ModID)
	assert.Equal(t, map[string]any{"a": ""}, w.FieldData)
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: `"12"`, want: 12},
		{in: `12`, want: 12},
		{in: `""`, want: 0},
		{in: `null`, want: 0},
		{in: `"x"`, wantErr: true},
	}
	for _, tt := range tests {
		var n flexInt
		err := json.Unmarshal([]byte(tt.in), &n)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, int(n), tt.in)
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := detachedRecord(t, `{"recordId": "1", "modId": "0", "fieldData": {"a": "1"},
		"portalData": {"P": [{"recordId": "5", "modId": "1", "P::f": "v"}]}}`)
	c := r.clone()
	require.NoError(t, c.Set("a", "2"))
	require.NoError(t, c.PortalByName("P").Records()[0].Set("P::f", "changed"))

	assert.Equal(t, "1", r.Value("a"))
	assert.Equal(t, "v", r.PortalByName("P").Records()[0].Value("P::f"))
	assert.Same(t, c, c.PortalByName("P").Records()[0].Root())
}
