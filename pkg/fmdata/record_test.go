package fmdata_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata"
)

func TestCommitNewRecordSendsAllSchemaFields(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("Simple").Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, rec.RecordID())
	assert.Equal(t, fmdata.StateNew, rec.State())
	require.NoError(t, rec.Set("Name", "Alice"))

	require.NoError(t, rec.Commit(ctx))

	creates := requestsTo(server, http.MethodPost, "layouts/Simple/records")
	require.Len(t, creates, 1)
	body := decodeJSON(t, creates[0].Body)
	want := map[string]any{"Name": "Alice", "Age": ""}
	if diff := cmp.Diff(want, body["fieldData"]); diff != "" {
		t.Fatalf("fieldData mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, fmdata.StatePersisted, rec.State())
	assert.Positive(t, rec.RecordID())
	assert.False(t, rec.Edited())
}

func TestCommitNewRecordSkipsCalculationsAndContainers(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Create(ctx)
	require.NoError(t, err)
	require.NoError(t, rec.Set("Name", "Dana"))
	require.NoError(t, rec.Commit(ctx))

	creates := requestsTo(server, http.MethodPost, "layouts/People/records")
	require.Len(t, creates, 1)
	fieldData := decodeJSON(t, creates[0].Body)["fieldData"].(map[string]any)
	assert.NotContains(t, fieldData, "Label")
	assert.NotContains(t, fieldData, "Photo")
	assert.Contains(t, fieldData, "Born")
}

func TestCommitPersistedSendsDelta(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, rec.Edited())
	require.NoError(t, rec.Set("Age", 42))
	assert.True(t, rec.Edited())

	server.ResetRequests()
	require.NoError(t, rec.Commit(ctx))

	edits := requestsTo(server, http.MethodPatch, "layouts/People/records/1")
	require.Len(t, edits, 1)
	body := decodeJSON(t, edits[0].Body)
	assert.Equal(t, map[string]any{"Age": float64(42)}, body["fieldData"])
	assert.Equal(t, "0", body["modId"])
	assert.NotContains(t, body, "portalData")
	assert.Equal(t, 1, rec.ModID())
	assert.False(t, rec.Edited())
	for _, f := range rec.Fields() {
		assert.False(t, f.Edited(), f.Name())
	}
}

func TestCommitWithoutEditsIsNoop(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 2)
	require.NoError(t, err)
	server.ResetRequests()

	require.NoError(t, rec.Commit(ctx))
	assert.Empty(t, server.Requests())
}

func TestCommitStaleModIDIsRemoteError(t *testing.T) {
	_, client := newContacts(t)
	ctx := context.Background()
	people := client.Layout("People")

	first, err := people.Get(ctx, 2)
	require.NoError(t, err)
	second, err := people.Get(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, first.Set("Name", "Robert"))
	require.NoError(t, first.Commit(ctx))

	require.NoError(t, second.Set("Name", "Bobby"))
	err = second.Commit(ctx)
	var remote *fmdata.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 306, remote.Code)
	assert.True(t, second.Edited())
}

func TestUnsavedRecordRejectsGetAndDelete(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Create(ctx)
	require.NoError(t, err)
	server.ResetRequests()

	assert.ErrorIs(t, rec.Get(ctx), fmdata.ErrInvalidState)
	assert.ErrorIs(t, rec.Delete(ctx), fmdata.ErrInvalidState)
	_, err = rec.Duplicate(ctx)
	assert.ErrorIs(t, err, fmdata.ErrInvalidState)
	assert.Empty(t, server.Requests())
}

func TestMarkSavedIsIdempotent(t *testing.T) {
	_, client := newContacts(t)
	rec, err := client.Layout("People").Get(context.Background(), 1)
	require.NoError(t, err)

	var saved int
	unsubscribe := rec.Subscribe(func(ev fmdata.Event) {
		if ev.Kind == fmdata.EventSaved {
			saved++
		}
	})
	require.NoError(t, rec.Set("Name", "Alicia"))
	rec.MarkSaved()
	assert.False(t, rec.Edited())
	rec.MarkSaved()
	assert.False(t, rec.Edited())
	assert.Equal(t, 2, saved)

	unsubscribe()
	rec.MarkSaved()
	assert.Equal(t, 2, saved)
}

func TestHydrationParsesTemporalFields(t *testing.T) {
	_, client := newContacts(t)
	rec, err := client.Layout("People").Get(context.Background(), 1)
	require.NoError(t, err)

	born := rec.Field("Born")
	require.NotNil(t, born)
	assert.Equal(t, fmdata.KindDate, born.Kind())
	got, err := born.Time()
	require.NoError(t, err)
	assert.Equal(t, time.Date(1985, 2, 3, 0, 0, 0, 0, time.UTC), got)
	assert.False(t, born.Edited())

	age, err := rec.Field("Age").Number()
	require.NoError(t, err)
	assert.Equal(t, float64(41), age)
	_, err = rec.Field("Name").Number()
	assert.ErrorIs(t, err, fmdata.ErrTypeMismatch)
}

func TestFieldSetValidation(t *testing.T) {
	_, client := newContacts(t)
	rec, err := client.Layout("People").Get(context.Background(), 1)
	require.NoError(t, err)

	assert.ErrorIs(t, rec.Set("Photo", "x"), fmdata.ErrInvalidFieldKind)
	assert.ErrorIs(t, rec.Set("Photo", nil), fmdata.ErrInvalidFieldKind)
	assert.ErrorIs(t, rec.Set("Born", "yesterday"), fmdata.ErrTypeMismatch)
	assert.ErrorIs(t, rec.Set("Born", 12), fmdata.ErrTypeMismatch)
	assert.ErrorIs(t, rec.Set("Missing", 1), fmdata.ErrInvalidArgument)
	assert.False(t, rec.Field("Born").Edited())

	require.NoError(t, rec.Set("Born", nil))
	assert.Equal(t, "", rec.Value("Born"))
	assert.True(t, rec.Field("Born").Edited())

	require.NoError(t, rec.Set("Age", int64(7)))
	assert.Equal(t, float64(7), rec.Value("Age"))
	require.NoError(t, rec.Set("Name", 12.5))
	assert.Equal(t, "12.5", rec.Value("Name"))
}

func TestTemporalValuesFormattedOnCommit(t *testing.T) {
	server, client := newContacts(t, fmdata.WithLocation(time.FixedZone("UTC+02", 2*3600)))
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, rec.Set("Born", time.Date(2001, 7, 9, 23, 30, 0, 0, time.UTC)))
	server.ResetRequests()
	require.NoError(t, rec.Commit(ctx))

	edits := requestsTo(server, http.MethodPatch, "layouts/People/records/2")
	require.Len(t, edits, 1)
	body := decodeJSON(t, edits[0].Body)
	assert.Equal(t, map[string]any{"Born": "07/10/2001"}, body["fieldData"])
}

func TestDuplicateReturnsSnapshotWithNewIDs(t *testing.T) {
	_, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	var events []fmdata.Event
	rec.Subscribe(func(ev fmdata.Event) { events = append(events, ev) })

	dup, err := rec.Duplicate(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, rec.RecordID(), dup.RecordID())
	assert.Equal(t, fmdata.StatePersisted, dup.State())
	assert.Equal(t, rec.Value("Name"), dup.Value("Name"))
	assert.Equal(t, rec.PortalByName("Phones").Len(), dup.PortalByName("Phones").Len())
	assert.False(t, dup.Edited())
	require.Len(t, events, 1)
	assert.Equal(t, fmdata.EventDuplicated, events[0].Kind)
	assert.Same(t, dup, events[0].Duplicate)

	fresh, err := client.Layout("People").Get(ctx, dup.RecordID())
	require.NoError(t, err)
	assert.Equal(t, "Alice", fresh.Value("Name"))
}

func TestDeleteTransitionsToDeleted(t *testing.T) {
	_, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 3)
	require.NoError(t, err)
	var deleted bool
	rec.Subscribe(func(ev fmdata.Event) { deleted = ev.Kind == fmdata.EventDeleted })

	require.NoError(t, rec.Delete(ctx))
	assert.True(t, deleted)
	assert.Equal(t, fmdata.StateDeleted, rec.State())
	assert.ErrorIs(t, rec.Commit(ctx), fmdata.ErrInvalidState)
	assert.ErrorIs(t, rec.Get(ctx), fmdata.ErrInvalidState)

	_, err = client.Layout("People").Get(ctx, 3)
	assert.Equal(t, 101, fmdata.RemoteCode(err))
}

func TestCommitScriptFailureIsScriptError(t *testing.T) {
	server, client := newContacts(t)
	server.RegisterScript("Audit", func(param string) (string, int) { return "denied: " + param, 5 })
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, rec.Set("Name", "Bert"))

	err = rec.Commit(ctx, fmdata.WithScript("Audit", "bob"))
	var scriptErr *fmdata.ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "5", scriptErr.Code)
	assert.Equal(t, "denied: bob", scriptErr.Result)
	assert.Equal(t, fmdata.PhaseScript, scriptErr.Phase)

	fresh, err := client.Layout("People").Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Bert", fresh.Value("Name"))

	edits := requestsTo(server, http.MethodPatch, "layouts/People/records/2")
	require.Len(t, edits, 1)
	body := decodeJSON(t, edits[0].Body)
	assert.Equal(t, "Audit", body["script"])
	assert.Equal(t, "bob", body["script.param"])
}

func TestCommitNewRecordScriptFailureStaysNew(t *testing.T) {
	server, client := newContacts(t)
	server.RegisterScript("Reject", func(string) (string, int) { return "", 9 })
	ctx := context.Background()

	rec, err := client.Layout("Simple").Create(ctx)
	require.NoError(t, err)
	require.NoError(t, rec.Set("Name", "Eve"))

	err = rec.Commit(ctx, fmdata.WithPreRequestScript("Reject", ""))
	var scriptErr *fmdata.ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, fmdata.PhasePreRequest, scriptErr.Phase)
	assert.Positive(t, scriptErr.RecordID)
	assert.Equal(t, fmdata.StateNew, rec.State())
}

type person struct {
	Name   string     `json:"Name"`
	Age    *float64   `json:"Age"`
	Born   *time.Time `json:"Born"`
	Phones []struct {
		Number string `json:"Phones::Number"`
	} `json:"Phones"`
}

func TestRecordDecode(t *testing.T) {
	_, client := newContacts(t)
	ctx := context.Background()

	var alice person
	rec, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, rec.Decode(&alice))
	assert.Equal(t, "Alice", alice.Name)
	require.NotNil(t, alice.Age)
	assert.Equal(t, float64(41), *alice.Age)
	require.NotNil(t, alice.Born)
	assert.Equal(t, 1985, alice.Born.Year())
	require.Len(t, alice.Phones, 1)
	assert.Equal(t, "555-0100", alice.Phones[0].Number)

	var carol person
	rec, err = client.Layout("People").Get(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, rec.Decode(&carol))
	assert.Nil(t, carol.Born)
}
