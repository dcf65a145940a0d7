package fmdata_test

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ratio1/fmdata_sdk_go/internal/devseed"
	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata"
	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata/mock"
)

const apiPrefix = "/fmi/data/vLatest/databases/Contacts/"

func contactsSeed() *devseed.Seed {
	return &devseed.Seed{
		Database: "Contacts",
		Accounts: []devseed.Account{{Username: "admin", Password: "secret"}},
		Layouts: []devseed.Layout{
			{
				Name: "People",
				Fields: []devseed.Field{
					{Name: "Name", Result: "text"},
					{Name: "Age", Result: "number"},
					{Name: "Born", Result: "date"},
					{Name: "Photo", Result: "container"},
					{Name: "Label", Type: "calculation", Result: "text"},
				},
				Portals: []devseed.Portal{
					{Name: "Phones", Fields: []devseed.Field{
						{Name: "Phones::Number", Result: "text"},
						{Name: "Phones::Kind", Result: "text"},
					}},
				},
				Records: []devseed.Record{
					{
						Fields: map[string]any{"Name": "Alice", "Age": float64(41), "Born": "02/03/1985"},
						Portals: map[string][]map[string]any{
							"Phones": {{"Phones::Number": "555-0100", "Phones::Kind": "home"}},
						},
					},
					{Fields: map[string]any{"Name": "Bob", "Age": float64(35), "Born": "11/30/1990"}},
					{Fields: map[string]any{"Name": "Carol", "Age": float64(29), "Born": ""}},
				},
			},
			{
				Name:   "Simple",
				Fields: []devseed.Field{{Name: "Name"}, {Name: "Age", Result: "number"}},
			},
		},
		Scripts: []string{"Echo"},
	}
}

func newContactsServer() (*mock.Server, error) {
	return mock.NewFromSeed(contactsSeed())
}

func newContacts(t *testing.T, opts ...fmdata.Option) (*mock.Server, *fmdata.Client) {
	t.Helper()
	server, err := mock.NewFromSeed(contactsSeed())
	require.NoError(t, err)
	client, err := fmdata.NewMock(server, fmdata.Basic("admin", "secret"), opts...)
	require.NoError(t, err)
	return server, client
}

// requestsTo returns the recorded requests whose path ends with suffix.
func requestsTo(server *mock.Server, method, suffix string) []mock.RecordedRequest {
	var out []mock.RecordedRequest
	for _, r := range server.Requests() {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func writeEnvelope(w http.ResponseWriter, status int, code string, response any) {
	if response == nil {
		response = map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"response": response,
		"messages": []map[string]string{{"code": code, "message": "msg"}},
	})
}

type testServer struct {
	URL    string
	server *http.Server
}

func (s *testServer) Close() { _ = s.server.Close() }

func newLocalHTTPServer(t *testing.T, handler http.Handler) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("network disabled for tests: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			t.Logf("test server serve error: %v", err)
		}
	}()
	return &testServer{URL: "http://" + ln.Addr().String(), server: srv}
}
