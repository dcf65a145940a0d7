package fmdata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Ratio1/fmdata_sdk_go/internal/fmapi"
	"github.com/Ratio1/fmdata_sdk_go/internal/httpx"
)

var tracer = otel.Tracer("github.com/Ratio1/fmdata_sdk_go/pkg/fmdata")

// Request is one Data API call issued through a Session.
type Request struct {
	Method string
	// Path is relative to the database endpoint unless Unscoped is set, in
	// which case it is relative to the API root (e.g. "productInfo").
	Path     string
	Query    url.Values
	Header   http.Header
	Body     any
	Unscoped bool
	// Anonymous requests are sent without a bearer token and never trigger a
	// login.
	Anonymous bool
	// NoRelogin disables the single re-login-and-retry on token expiry.
	NoRelogin bool

	// Payload and ContentType send a raw body instead of JSON (multipart uploads).
	Payload     []byte
	ContentType string
}

// Response is a decoded envelope whose message code was "0".
type Response struct {
	HTTPStatus int
	Header     http.Header
	Body       []byte

	env *fmapi.Envelope
}

// Decode unmarshals the envelope's response member into out.
func (r *Response) Decode(out any) error {
	if err := r.env.DecodeResponse(out); err != nil {
		return fmt.Errorf("fmdata: decode response: %w", err)
	}
	return nil
}

// ScriptResults returns the script phases reported by the response.
func (r *Response) ScriptResults() []ScriptResult {
	outcomes := fmapi.ScriptOutcomes(r.env.Response)
	if len(outcomes) == 0 {
		return nil
	}
	results := make([]ScriptResult, 0, len(outcomes))
	for _, o := range outcomes {
		results = append(results, ScriptResult{Phase: o.Phase, Error: o.Error, Result: o.Result})
	}
	return results
}

// scriptFailure returns a ScriptError for the first failing phase, if any.
func (r *Response) scriptFailure(recordID int) error {
	for _, o := range fmapi.ScriptOutcomes(r.env.Response) {
		if o.Failed() {
			return &ScriptError{Phase: o.Phase, Code: o.Error, Result: o.Result, RecordID: recordID}
		}
	}
	return nil
}

// Session owns the Data API token of one database and performs authenticated
// requests, logging in again once when the server rejects the token.
type Session struct {
	http     *httpx.Client
	database string
	creds    Credentials
	sources  []DataSource
	log      *slog.Logger

	// loginMu serializes login attempts; mu guards token.
	loginMu sync.Mutex
	mu      sync.Mutex
	token   string
}

func newSession(httpClient *httpx.Client, database string, creds Credentials, sources []DataSource, log *slog.Logger) *Session {
	s := &Session{
		http:     httpClient,
		database: database,
		creds:    creds,
		sources:  sources,
		log:      log,
	}
	return s
}

// Token returns the current token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Login obtains a token using the session credentials. It fails with
// ErrAlreadyAuthenticated while a token is held.
func (s *Session) Login(ctx context.Context) error {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()
	if s.Authenticated() {
		return ErrAlreadyAuthenticated
	}
	return s.login(ctx)
}

func (s *Session) login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "fmdata.Session.Login", trace.WithAttributes(
		attribute.String("fmdata.database", s.database),
		attribute.String("fmdata.scheme", s.creds.scheme().String()),
	))
	defer span.End()

	if s.creds.scheme() == SchemeToken {
		if s.creds.Token == "" {
			return invalidArgument("token is required")
		}
		s.setToken(s.creds.Token)
		return nil
	}

	header, err := s.creds.Headers()
	if err != nil {
		return err
	}
	body := map[string]any{}
	if len(s.sources) > 0 {
		for _, src := range s.sources {
			if err := src.validate(); err != nil {
				return err
			}
		}
		body["fmDataSource"] = s.sources
	}

	resp, err := s.send(ctx, &Request{
		Method:    http.MethodPost,
		Path:      "sessions",
		Header:    header,
		Body:      body,
		Anonymous: true,
		NoRelogin: true,
	}, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		s.log.WarnContext(ctx, "fmdata: login failed", "database", s.database, "error", err)
		return err
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := resp.Decode(&payload); err != nil {
		return err
	}
	token := payload.Token
	if token == "" {
		token = resp.Header.Get("X-FM-Data-Access-Token")
	}
	if token == "" {
		return fmt.Errorf("fmdata: login response carried no token")
	}
	s.setToken(token)
	s.log.InfoContext(ctx, "fmdata: logged in", "database", s.database, "scheme", s.creds.scheme())
	return nil
}

// relogin replaces the stale token. When another goroutine already swapped
// the token since the failing request read it, the new token is kept as is.
func (s *Session) relogin(ctx context.Context, stale string) error {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	s.mu.Lock()
	if s.token != "" && s.token != stale {
		s.mu.Unlock()
		return nil
	}
	s.token = ""
	s.mu.Unlock()

	s.log.InfoContext(ctx, "fmdata: token rejected, logging in again", "database", s.database)
	return s.login(ctx)
}

// Logout deletes the server session. The token is cleared whatever the
// server answers.
func (s *Session) Logout(ctx context.Context) error {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()

	token := s.Token()
	if token == "" {
		return ErrNotAuthenticated
	}
	ctx, span := tracer.Start(ctx, "fmdata.Session.Logout")
	defer span.End()

	_, err := s.send(ctx, &Request{
		Method:    http.MethodDelete,
		Path:      "sessions/" + url.PathEscape(token),
		Anonymous: true,
		NoRelogin: true,
	}, "")
	s.setToken("")
	if err != nil {
		span.RecordError(err)
		s.log.WarnContext(ctx, "fmdata: logout request failed", "database", s.database, "error", err)
	}
	return nil
}

// Do performs req with the current token. Requests sent before any login
// log in first. When the server answers with the invalid-token code and
// re-login is allowed, the session logs in again exactly once and retries
// the request once with re-login disabled.
func (s *Session) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("fmdata: request is nil")
	}
	ctx, span := tracer.Start(ctx, "fmdata.Session.Do", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("fmdata.path", req.Path),
		attribute.Bool("fmdata.retry", req.NoRelogin),
	))
	defer span.End()

	token := ""
	if !req.Anonymous {
		token = s.Token()
		if token == "" {
			if err := s.ensureLogin(ctx); err != nil {
				span.RecordError(err)
				return nil, err
			}
			token = s.Token()
		}
	}

	resp, err := s.send(ctx, req, token)
	if err != nil && isInvalidToken(err) && !req.NoRelogin && !req.Anonymous {
		span.AddEvent("token rejected")
		if lerr := s.relogin(ctx, token); lerr != nil {
			span.RecordError(lerr)
			return nil, lerr
		}
		retry := *req
		retry.NoRelogin = true
		return s.Do(ctx, &retry)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (s *Session) ensureLogin(ctx context.Context) error {
	s.loginMu.Lock()
	defer s.loginMu.Unlock()
	if s.Authenticated() {
		return nil
	}
	return s.login(ctx)
}

func (s *Session) send(ctx context.Context, req *Request, token string) (*Response, error) {
	path := req.Path
	if !req.Unscoped {
		path = "databases/" + url.PathEscape(s.database) + "/" + path
	}

	header := make(http.Header)
	for k, values := range req.Header {
		header[k] = append([]string(nil), values...)
	}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	hreq := &httpx.Request{
		Method:       req.Method,
		Path:         path,
		Query:        req.Query,
		Header:       header,
		DisableRetry: req.Method != http.MethodGet,
	}
	switch {
	case req.Payload != nil:
		hreq.Body, hreq.GetBody = rawBody(req.Payload)
		header.Set("Content-Type", req.ContentType)
	case req.Body != nil:
		body, getBody, err := httpx.JSONBody(req.Body)
		if err != nil {
			return nil, fmt.Errorf("fmdata: encode request: %w", err)
		}
		hreq.Body, hreq.GetBody = body, getBody
		header.Set("Content-Type", "application/json")
	}

	httpResp, err := s.http.Do(ctx, hreq)
	if err != nil {
		var httpErr *httpx.HTTPError
		if errors.As(err, &httpErr) {
			return nil, newRemoteError(httpErr.StatusCode, httpErr.Body)
		}
		return nil, err
	}
	data, err := httpx.ReadAllAndClose(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("fmdata: read response: %w", err)
	}
	env, err := fmapi.Decode(data)
	if err != nil || !env.OK() {
		return nil, newRemoteError(httpResp.StatusCode, data)
	}
	return &Response{
		HTTPStatus: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		env:        env,
	}, nil
}

// Stream opens rawURL through the session's HTTP client, forwarding any
// cookies captured from earlier responses. The caller closes the body.
func (s *Session) Stream(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := s.http.Stream(ctx, rawURL, nil)
	if err != nil {
		var httpErr *httpx.HTTPError
		if errors.As(err, &httpErr) {
			return nil, newRemoteError(httpErr.StatusCode, httpErr.Body)
		}
		return nil, err
	}
	return resp, nil
}

func rawBody(data []byte) (io.Reader, func() (io.ReadCloser, error)) {
	return bytes.NewReader(data), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}
