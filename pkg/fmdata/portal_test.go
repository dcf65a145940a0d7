package fmdata_test

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata"
	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata/mock"
)

func TestPortalRowCommitsThroughRoot(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	phones := rec.PortalByName("Phones")
	require.NotNil(t, phones)
	require.Equal(t, 1, phones.Len())

	row := phones.Create()
	assert.True(t, row.IsChild())
	assert.Same(t, rec, row.Root())
	assert.Equal(t, []string{"Phones::Number", "Phones::Kind"}, fieldNames(row))
	require.NoError(t, row.Set("Phones::Number", "555-0199"))
	assert.True(t, rec.Edited())

	server.ResetRequests()
	require.NoError(t, row.Commit(ctx))

	edits := requestsTo(server, http.MethodPatch, "layouts/People/records/1")
	require.Len(t, edits, 1)
	body := decodeJSON(t, edits[0].Body)
	assert.Equal(t, map[string]any{}, body["fieldData"])
	portalData := body["portalData"].(map[string]any)
	rows := portalData["Phones"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{"Phones::Number": "555-0199"}, rows[0])

	phones = rec.PortalByName("Phones")
	require.Equal(t, 2, phones.Len())
	for _, r := range phones.Records() {
		assert.Positive(t, r.RecordID())
		assert.Equal(t, fmdata.StatePersisted, r.State())
	}
	assert.False(t, rec.Edited())
}

func TestPortalRowEditSendsRowIDs(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	row := rec.PortalByName("Phones").Records()[0]
	require.NoError(t, row.Set("Phones::Kind", "work"))

	server.ResetRequests()
	require.NoError(t, rec.Commit(ctx))

	edits := requestsTo(server, http.MethodPatch, "layouts/People/records/1")
	require.Len(t, edits, 1)
	rows := decodeJSON(t, edits[0].Body)["portalData"].(map[string]any)["Phones"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, map[string]any{
		"recordId":     "1",
		"modId":        "0",
		"Phones::Kind": "work",
	}, rows[0])
	assert.False(t, row.Edited())
	assert.Len(t, requestsTo(server, http.MethodGet, "layouts/People/records/1"), 0)
}

func TestPortalDeleteRow(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	phones := rec.PortalByName("Phones")
	row := phones.Records()[0]

	server.ResetRequests()
	require.NoError(t, row.Delete(ctx))
	assert.Equal(t, fmdata.StateDeleted, row.State())
	assert.Equal(t, 0, phones.Len())
	assert.Equal(t, 1, rec.ModID())

	edits := requestsTo(server, http.MethodPatch, "layouts/People/records/1")
	require.Len(t, edits, 1)
	body := decodeJSON(t, edits[0].Body)
	assert.Equal(t, map[string]any{"deleteRelated": "Phones.1"}, body["fieldData"])

	require.NoError(t, rec.Get(ctx))
	assert.Equal(t, 0, rec.PortalByName("Phones").Len())
	assert.ErrorIs(t, phones.Delete(ctx, row), fmdata.ErrInvalidState)
}

func TestPortalDeleteUnsavedRowIsLocal(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 2)
	require.NoError(t, err)
	phones := rec.PortalByName("Phones")
	row := phones.Create()

	server.ResetRequests()
	require.NoError(t, phones.Delete(ctx, row))
	assert.Equal(t, 0, phones.Len())
	assert.Empty(t, server.Requests())

	other, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	foreign := other.PortalByName("Phones").Records()[0]
	assert.ErrorIs(t, phones.Delete(ctx, foreign), fmdata.ErrInvalidArgument)
}

func TestDuplicatePortalRowFails(t *testing.T) {
	_, client := newContacts(t)
	rec, err := client.Layout("People").Get(context.Background(), 1)
	require.NoError(t, err)
	row := rec.PortalByName("Phones").Records()[0]

	_, err = row.Duplicate(context.Background())
	assert.ErrorIs(t, err, fmdata.ErrInvalidState)
}

func fieldNames(r *fmdata.Record) []string {
	var names []string
	for _, f := range r.Fields() {
		names = append(names, f.Name())
	}
	return names
}

func TestHeldHandlesSurviveCommitOfNewRow(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	name := rec.Field("Name")
	phones := rec.PortalByName("Phones")
	first := phones.Records()[0]

	row := phones.Create()
	require.NoError(t, row.Set("Phones::Number", "555-0199"))
	require.NoError(t, rec.Commit(ctx))

	assert.Equal(t, fmdata.StatePersisted, row.State())
	assert.Equal(t, 2, row.RecordID())
	require.Equal(t, 2, phones.Len())
	assert.Same(t, first, phones.Records()[0])
	assert.Same(t, row, phones.Records()[1])
	assert.Same(t, name, rec.Field("Name"))
	assert.Equal(t, "555-0199", row.Value("Phones::Number"))

	require.NoError(t, row.Set("Phones::Kind", "mobile"))
	require.NoError(t, name.Set("Alicia"))
	assert.True(t, rec.Edited())

	server.ResetRequests()
	require.NoError(t, row.Commit(ctx))
	edits := requestsTo(server, http.MethodPatch, "layouts/People/records/1")
	require.Len(t, edits, 1)
	body := decodeJSON(t, edits[0].Body)
	assert.Equal(t, map[string]any{"Name": "Alicia"}, body["fieldData"])
	rows := body["portalData"].(map[string]any)["Phones"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].(map[string]any)["recordId"])
	assert.Equal(t, "mobile", rows[0].(map[string]any)["Phones::Kind"])

	fresh, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", fresh.Value("Name"))
	stored := fresh.PortalByName("Phones").Records()
	require.Len(t, stored, 2)
	assert.Equal(t, "mobile", stored[1].Value("Phones::Kind"))
}

func TestCommitReportsFailedRefresh(t *testing.T) {
	var failReads atomic.Bool
	server, err := mock.NewFromSeed(contactsSeed(), mock.WithMiddleware(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if failReads.Load() && req.Method == http.MethodGet && strings.HasSuffix(req.URL.Path, "/records/1") {
				return mock.Reject(c, 100)
			}
			return next(c)
		}
	}))
	require.NoError(t, err)
	client, err := fmdata.NewMock(server, fmdata.Basic("admin", "secret"))
	require.NoError(t, err)
	ctx := context.Background()

	rec, err := client.Layout("People").Get(ctx, 1)
	require.NoError(t, err)
	row := rec.PortalByName("Phones").Create()
	require.NoError(t, row.Set("Phones::Number", "555-0199"))

	failReads.Store(true)
	err = rec.Commit(ctx)
	require.ErrorIs(t, err, fmdata.ErrRefreshFailed)
	assert.Equal(t, 100, fmdata.RemoteCode(err))
	assert.False(t, rec.Edited())
	assert.Equal(t, 1, rec.ModID())

	failReads.Store(false)
	require.NoError(t, rec.Get(ctx))
	assert.Equal(t, fmdata.StatePersisted, row.State())
	assert.Equal(t, 2, row.RecordID())
	assert.Same(t, row, rec.PortalByName("Phones").Records()[1])
}
