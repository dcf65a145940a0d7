package fmdata_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata"
)

type tokenServer struct {
	mu        sync.Mutex
	issued    []string
	valid     string
	calls     []string
	rejectAll bool
}

func (s *tokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/sessions"):
		token := "T" + string(rune('1'+len(s.issued)))
		s.issued = append(s.issued, token)
		s.valid = token
		s.calls = append(s.calls, "login")
		writeEnvelope(w, http.StatusOK, "0", map[string]any{"token": token})
	case strings.HasSuffix(r.URL.Path, "/layouts"):
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.calls = append(s.calls, "layouts:"+bearer)
		if s.rejectAll || bearer != s.valid {
			writeEnvelope(w, http.StatusUnauthorized, "952", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, "0", map[string]any{"layouts": []map[string]any{{"name": "People"}}})
	default:
		http.NotFound(w, r)
	}
}

func TestSessionReloginAndRetryOnce(t *testing.T) {
	ts := &tokenServer{}
	srv := newLocalHTTPServer(t, ts)
	defer srv.Close()

	client, err := fmdata.New(srv.URL, "Contacts", fmdata.Basic("admin", "secret"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, client.Login(ctx))
	require.Equal(t, "T1", client.Session().Token())

	ts.mu.Lock()
	ts.valid = ""
	ts.calls = nil
	ts.mu.Unlock()

	layouts, err := client.Layouts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"People"}, layouts)
	assert.Equal(t, "T2", client.Session().Token())
	assert.Equal(t, []string{"layouts:T1", "login", "layouts:T2"}, ts.calls)
}

func TestSessionSecondInvalidTokenFails(t *testing.T) {
	ts := &tokenServer{rejectAll: true}
	srv := newLocalHTTPServer(t, ts)
	defer srv.Close()

	client, err := fmdata.New(srv.URL, "Contacts", fmdata.Basic("admin", "secret"))
	require.NoError(t, err)

	_, err = client.Layouts(context.Background())
	var remote *fmdata.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 952, remote.Code)
	assert.Equal(t, http.StatusUnauthorized, remote.HTTPStatus)
	assert.Equal(t, []string{"login", "layouts:T1", "login", "layouts:T2"}, ts.calls)
}

func TestSessionLoginGuards(t *testing.T) {
	_, client := newContacts(t)
	ctx := context.Background()

	err := client.Logout(ctx)
	assert.ErrorIs(t, err, fmdata.ErrNotAuthenticated)

	require.NoError(t, client.Login(ctx))
	assert.ErrorIs(t, client.Login(ctx), fmdata.ErrAlreadyAuthenticated)

	require.NoError(t, client.Logout(ctx))
	assert.False(t, client.Session().Authenticated())
}

func TestSessionLoginFailureKeepsTokenAbsent(t *testing.T) {
	server, client := newContacts(t)
	bad, err := fmdata.NewMock(server, fmdata.Basic("admin", "wrong"))
	require.NoError(t, err)

	err = bad.Login(context.Background())
	var remote *fmdata.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 212, remote.Code)
	assert.False(t, bad.Session().Authenticated())

	require.NoError(t, client.Login(context.Background()))
}

func TestSessionLogoutClearsTokenOnServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeEnvelope(w, http.StatusOK, "0", map[string]any{"token": "T1"})
			return
		}
		writeEnvelope(w, http.StatusInternalServerError, "100", nil)
	})
	srv := newLocalHTTPServer(t, handler)
	defer srv.Close()

	client, err := fmdata.New(srv.URL, "Contacts", fmdata.Basic("admin", "secret"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, client.Login(ctx))
	require.NoError(t, client.Logout(ctx))
	assert.False(t, client.Session().Authenticated())
}

func TestSessionTokenHeaderFallback(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FM-Data-Access-Token", "from-header")
		writeEnvelope(w, http.StatusOK, "0", map[string]any{})
	})
	srv := newLocalHTTPServer(t, handler)
	defer srv.Close()

	client, err := fmdata.New(srv.URL, "Contacts", fmdata.Basic("admin", ""))
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background()))
	assert.Equal(t, "from-header", client.Session().Token())
}

func TestSessionPreIssuedTokenSkipsLogin(t *testing.T) {
	server, err := newContactsServer()
	require.NoError(t, err)
	client, err := fmdata.NewMock(server, fmdata.PreIssuedToken("given"))
	require.NoError(t, err)

	require.NoError(t, client.Login(context.Background()))
	assert.Equal(t, "given", client.Session().Token())
	assert.Empty(t, server.Requests())
}

func TestSessionConcurrentExpiryLogsInOnce(t *testing.T) {
	server, client := newContacts(t)
	ctx := context.Background()
	require.NoError(t, client.Login(ctx))
	server.ExpireTokens()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Layouts(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, server.Logins())
}

func TestSessionLazyLogin(t *testing.T) {
	server, client := newContacts(t)
	_, err := client.Layouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, server.Logins())
	assert.True(t, client.Session().Authenticated())
}

func TestCredentialHeaders(t *testing.T) {
	tests := []struct {
		name   string
		creds  fmdata.Credentials
		header string
		want   string
	}{
		{"basic", fmdata.Basic("admin", "secret"), "Authorization", "Basic YWRtaW46c2VjcmV0"},
		{"claris", fmdata.ClarisID("id-token"), "Authorization", "FMID id-token"},
		{"oauth", fmdata.OAuth("req", "ident"), "X-FM-Data-OAuth-Request-Id", "req"},
		{"token", fmdata.PreIssuedToken("tok"), "Authorization", "Bearer tok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := tt.creds.Headers()
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Get(tt.header))
		})
	}

	_, err := fmdata.OAuth("req", "").Headers()
	assert.True(t, errors.Is(err, fmdata.ErrInvalidArgument))
	_, err = fmdata.Credentials{Scheme: "kerberos"}.Headers()
	assert.ErrorIs(t, err, fmdata.ErrInvalidArgument)
}

func TestLoginSendsDataSources(t *testing.T) {
	server, err := newContactsServer()
	require.NoError(t, err)
	client, err := fmdata.NewMock(server, fmdata.Basic("admin", "secret"),
		fmdata.WithDataSources(fmdata.DataSource{Database: "Orders", Username: "ro", Password: "pw"}))
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background()))

	logins := requestsTo(server, http.MethodPost, "/sessions")
	require.Len(t, logins, 1)
	body := decodeJSON(t, logins[0].Body)
	sources := body["fmDataSource"].([]any)
	require.Len(t, sources, 1)
	assert.Equal(t, "Orders", sources[0].(map[string]any)["database"])
}
