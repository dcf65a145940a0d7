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

func names(fs *fmdata.FoundSet) []string {
	var out []string
	for _, r := range fs.Records {
		out = append(out, r.Value("Name").(string))
	}
	return out
}

func TestRangeFirstPage(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()

	rng := client.Layout("People").Range()
	require.NoError(t, rng.SetOffset(0))
	require.NoError(t, rng.SetLimit(100))
	fs, err := rng.Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, fs.Len())
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, names(fs))
	assert.Equal(t, 3, fs.DataInfo.FoundCount)
	for _, r := range fs.Records {
		assert.False(t, r.Edited())
		assert.Equal(t, fmdata.StatePersisted, r.State())
	}

	ranges := requestsTo(server, http.MethodGet, "layouts/People/records")
	require.Len(t, ranges, 1)
	assert.Equal(t, "1", ranges[0].Query.Get("_offset"))
	assert.Equal(t, "100", ranges[0].Query.Get("_limit"))
}

func TestRangeSortAndWindow(t *testing.T) {
	_, client := newContacts(t)

	rng := client.Layout("People").Range()
	rng.AddSort("Age", fmdata.Descend)
	require.NoError(t, rng.SetOffset(1))
	require.NoError(t, rng.SetLimit(1))
	fs, err := rng.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, names(fs))
	assert.Equal(t, 1, fs.DataInfo.ReturnedCount)
}

func TestRangeBoundsRejectedLocally(t *testing.T) {
	server, client := newContacts(t)
	rng := client.Layout("People").Range()

	assert.ErrorIs(t, rng.SetLimit(0), fmdata.ErrInvalidArgument)
	assert.ErrorIs(t, rng.SetOffset(-1), fmdata.ErrInvalidArgument)
	assert.ErrorIs(t, rng.SetPortalLimit("Phones", 0), fmdata.ErrInvalidArgument)
	assert.ErrorIs(t, rng.SetPortalOffset("Phones", -2), fmdata.ErrInvalidArgument)
	assert.Empty(t, server.Requests())
}

func TestRangeParams(t *testing.T) {
	_, client := newContacts(t)
	rng := client.Layout("Invoices").Range()
	require.NoError(t, rng.SetLimit(10))
	require.NoError(t, rng.SetPortalLimit("Line Items", 5))
	require.NoError(t, rng.SetPortalOffset("Line Items", 0))
	rng.SetPortals("Line Items")
	rng.AddSort("Date", fmdata.Ascend)
	rng.SetScripts(fmdata.WithPreSortScript("Prep", "x"))

	params, err := rng.Params()
	require.NoError(t, err)
	got := map[string]string{}
	for k := range params {
		got[k] = params.Get(k)
	}
	want := map[string]string{
		"_limit":               "10",
		"_limit.LineItems":     "5",
		"_offset.LineItems":    "1",
		"portal":               `["Line Items"]`,
		"_sort":                `[{"fieldName":"Date","sortOrder":"ascend"}]`,
		"script.presort":       "Prep",
		"script.presort.param": "x",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestRangeEmptyLayout(t *testing.T) {
	_, client := newContacts(t)
	fs, err := client.Layout("Simple").Range().Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, fs.Len())
}

func TestRangeScriptFailureKeepsFoundSet(t *testing.T) {
	server, client := newContacts(t)
	server.RegisterScript("Broken", func(string) (string, int) { return "oops", 3 })

	rng := client.Layout("People").Range()
	rng.SetScripts(fmdata.WithScript("Broken", ""))
	fs, err := rng.Execute(context.Background())
	var scriptErr *fmdata.ScriptError
	require.ErrorAs(t, err, &scriptErr)
	assert.Equal(t, "3", scriptErr.Code)
	require.NotNil(t, fs)
	assert.Equal(t, 3, fs.Len())
	require.Len(t, fs.Scripts, 1)
	assert.Equal(t, "oops", fs.Scripts[0].Result)
}

func TestFindUnionOfRequests(t *testing.T) {
	server, client := newContacts(t)

	find := client.Layout("People").Find()
	find.AddRequests(fmdata.Criteria{"Name": "==Alice"})
	find.AddRequests(fmdata.Criteria{"Name": "==Carol"})
	find.AddSort("Name", fmdata.Ascend)
	fs, err := find.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Carol"}, names(fs))

	finds := requestsTo(server, http.MethodPost, "layouts/People/_find")
	require.Len(t, finds, 1)
	body := decodeJSON(t, finds[0].Body)
	assert.Equal(t, []any{
		map[string]any{"Name": "==Alice"},
		map[string]any{"Name": "==Carol"},
	}, body["query"])
	assert.NotContains(t, body, "offset")
}

func TestFindOmit(t *testing.T) {
	_, client := newContacts(t)

	fs, err := client.Layout("People").Find().
		AddRequests(fmdata.Criteria{"Age": ">30"}).
		Omit(fmdata.Criteria{"Name": "Bob"}).
		Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, names(fs))
}

func TestFindNoMatch(t *testing.T) {
	_, client := newContacts(t)
	fs, err := client.Layout("People").Find().
		AddRequests(fmdata.Criteria{"Name": "==Zed"}).
		Execute(context.Background())
	assert.ErrorIs(t, err, fmdata.ErrNoRecordsMatch)
	assert.Nil(t, fs)
}

func TestFindWithoutRequests(t *testing.T) {
	server, client := newContacts(t)
	_, err := client.Layout("People").Find().Execute(context.Background())
	assert.ErrorIs(t, err, fmdata.ErrInvalidArgument)
	assert.Empty(t, server.Requests())
}

func TestFindUnknownField(t *testing.T) {
	_, client := newContacts(t)
	_, err := client.Layout("People").Find().
		AddRequests(fmdata.Criteria{"Nickname": "x"}).
		Execute(context.Background())
	assert.Equal(t, 102, fmdata.RemoteCode(err))
}

func TestFindBodyFormatsTimes(t *testing.T) {
	_, client := newContacts(t)
	ctx := context.Background()
	people := client.Layout("People")
	_, err := people.Metadata(ctx)
	require.NoError(t, err)

	find := people.Find().AddRequests(fmdata.Criteria{"Born": time.Date(1990, 11, 30, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, find.SetOffset(4))
	require.NoError(t, find.SetPortalLimit("Phones", 2))
	body, err := find.Body()
	require.NoError(t, err)

	assert.Equal(t, []map[string]any{{"Born": "11/30/1990"}}, body["query"])
	assert.Equal(t, "5", body["offset"])
	assert.Equal(t, "2", body["limit.Phones"])

	require.NoError(t, find.SetOffset(0))
	fs, err := find.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, names(fs))
}
