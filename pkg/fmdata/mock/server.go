// Package mock serves an in-memory Data API over echo. It backs the tests,
// the examples, the mock runtime mode and the sandbox command.
package mock

import (
	"bytes"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ratio1/fmdata_sdk_go/internal/devseed"
	"github.com/Ratio1/fmdata_sdk_go/internal/fmapi"
)

// StreamingCookie is the cookie a container URL must carry to be served.
const StreamingCookie = "X-FMS-Session-Key"

// DefaultTokenTTL is the idle time after which a session token expires.
const DefaultTokenTTL = 15 * time.Minute

// ScriptFunc implements a script. A non-zero code is reported as scriptError.
type ScriptFunc func(param string) (result string, code int)

// RecordedRequest is one request seen by the server.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Server is an in-memory Data API for one database.
type Server struct {
	echo *echo.Echo
	log  *slog.Logger
	now  func() time.Time

	mu         sync.Mutex
	database   string
	accounts   map[string]string
	sessions   map[string]time.Time
	tokenTTL   time.Duration
	logins     int
	requests   []RecordedRequest
	layouts    map[string]*layout
	order      []string
	scripts    map[string]ScriptFunc
	globals    map[string]any
	containers map[string]container
	cookies    map[string]bool
	nextID     int
	nextRowID  int
	product    ProductInfo
}

// ProductInfo is served by the productInfo endpoint.
type ProductInfo struct {
	Name            string `json:"name"`
	BuildDate       string `json:"buildDate"`
	Version         string `json:"version"`
	DateFormat      string `json:"dateFormat"`
	TimeFormat      string `json:"timeFormat"`
	TimeStampFormat string `json:"timeStampFormat"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the clock used for token expiry.
func WithClock(fn func() time.Time) Option {
	return func(s *Server) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenTTL sets the idle lifetime of session tokens. Zero disables expiry.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) {
		s.tokenTTL = d
	}
}

// WithMiddleware installs echo middleware ahead of the Data API routes.
func WithMiddleware(mw ...echo.MiddlewareFunc) Option {
	return func(s *Server) {
		s.echo.Use(mw...)
	}
}

// WithProductInfo overrides the served product information.
func WithProductInfo(info ProductInfo) Option {
	return func(s *Server) {
		s.product = info
	}
}

// New creates an empty server for database. Without accounts every login
// succeeds.
func New(database string, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{
		echo:       e,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
		database:   database,
		accounts:   map[string]string{},
		sessions:   map[string]time.Time{},
		tokenTTL:   DefaultTokenTTL,
		layouts:    map[string]*layout{},
		scripts:    map[string]ScriptFunc{},
		globals:    map[string]any{},
		containers: map[string]container{},
		cookies:    map[string]bool{},
		product: ProductInfo{
			Name:            "FileMaker Data API Engine",
			BuildDate:       "01/01/2025",
			Version:         "21.1.1.41",
			DateFormat:      "MM/dd/yyyy",
			TimeFormat:      "HH:mm:ss",
			TimeStampFormat: "MM/dd/yyyy HH:mm:ss",
		},
	}
	e.Use(s.record)
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// NewFromSeed creates a server populated from seed.
func NewFromSeed(seed *devseed.Seed, opts ...Option) (*Server, error) {
	s := New(seed.Database, opts...)
	if err := s.Seed(seed); err != nil {
		return nil, err
	}
	return s, nil
}

// Database returns the served database name.
func (s *Server) Database() string {
	return s.database
}

// Handler returns the HTTP handler serving the Data API.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Transport returns a RoundTripper that serves requests in process, whatever
// host they address.
func (s *Server) Transport() http.RoundTripper {
	return handlerTransport{h: s.echo}
}

type handlerTransport struct {
	h http.Handler
}

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// AddAccount registers a login account.
func (s *Server) AddAccount(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[username] = password
}

// RegisterScript installs a script under name.
func (s *Server) RegisterScript(name string, fn ScriptFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[name] = fn
}

// ExpireTokens invalidates every open session.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]time.Time{}
}

// ExpireToken invalidates one session token.
func (s *Server) ExpireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Tokens returns the open session tokens.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for t := range s.sessions {
		out = append(out, t)
	}
	return out
}

// Logins returns the number of successful logins.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Requests returns the recorded requests in arrival order.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// Globals returns the global field values set by clients.
func (s *Server) Globals() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.globals))
	for k, v := range s.globals {
		out[k] = v
	}
	return out
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: req.Method,
			Path:   req.URL.Path,
			Query:  req.URL.Query(),
			Header: req.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()
		s.log.Debug("mock: request", "method", req.Method, "path", req.URL.Path)
		return next(c)
	}
}

func (s *Server) routes() {
	api := s.echo.Group("/fmi/data/:version")
	api.GET("/productInfo", s.handleProductInfo)
	api.GET("/databases", s.handleDatabases)

	db := api.Group("/databases/:db", s.requireDatabase)
	db.POST("/sessions", s.handleLogin)
	db.DELETE("/sessions/:token", s.handleLogout)

	authed := db.Group("", s.requireToken)
	authed.GET("/layouts", s.handleLayouts)
	authed.GET("/scripts", s.handleScripts)
	authed.PATCH("/globals", s.handleGlobals)
	authed.GET("/layouts/:layout", s.handleMetadata)
	authed.GET("/layouts/:layout/records", s.handleRange)
	authed.POST("/layouts/:layout/records", s.handleCreate)
	authed.GET("/layouts/:layout/records/:id", s.handleGet)
	authed.PATCH("/layouts/:layout/records/:id", s.handleEdit)
	authed.POST("/layouts/:layout/records/:id", s.handleDuplicate)
	authed.DELETE("/layouts/:layout/records/:id", s.handleDelete)
	authed.POST("/layouts/:layout/_find", s.handleFind)
	authed.POST("/layouts/:layout/records/:id/containers/:field/:rep", s.handleUpload)
	authed.GET("/layouts/:layout/script/:script", s.handleRunScript)

	s.echo.GET("/Streaming/:object", s.handleStream)
}

type message struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func reply(c echo.Context, response any) error {
	if response == nil {
		response = echo.Map{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"response": response,
		"messages": []message{{Code: "0", Message: "OK"}},
	})
}

// Reject writes the Data API error envelope for code with the HTTP status the
// server uses for it. Middleware installed with WithMiddleware may use it to
// inject failures.
func Reject(c echo.Context, code int) error {
	return fail(c, code)
}

func fail(c echo.Context, code int) error {
	status := http.StatusInternalServerError
	switch code {
	case fmapi.CodeInvalidToken:
		status = http.StatusUnauthorized
	case 212:
		status = http.StatusUnauthorized
	case 105, 101:
		status = http.StatusNotFound
	case 960, 1708:
		status = http.StatusBadRequest
	}
	return c.JSON(status, echo.Map{
		"response": echo.Map{},
		"messages": []message{{Code: strconv.Itoa(code), Message: fmapi.Describe(code)}},
	})
}

func (s *Server) requireDatabase(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		db, _ := url.PathUnescape(c.Param("db"))
		if db != s.database {
			return fail(c, 802)
		}
		return next(c)
	}
}

func (s *Server) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		auth := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || !s.touch(token) {
			return fail(c, fmapi.CodeInvalidToken)
		}
		c.Set("token", token)
		return next(c)
	}
}

// touch reports whether token is live and refreshes its idle timer.
func (s *Server) touch(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.sessions[token]
	if !ok {
		return false
	}
	now := s.now()
	if s.tokenTTL > 0 && now.Sub(last) > s.tokenTTL {
		delete(s.sessions, token)
		return false
	}
	s.sessions[token] = now
	return true
}

func (s *Server) handleProductInfo(c echo.Context) error {
	s.mu.Lock()
	info := s.product
	s.mu.Unlock()
	return reply(c, echo.Map{"productInfo": info})
}

func (s *Server) handleDatabases(c echo.Context) error {
	return reply(c, echo.Map{"databases": []echo.Map{{"name": s.database}}})
}

func (s *Server) handleLogin(c echo.Context) error {
	if !s.authenticate(c.Request().Header) {
		return fail(c, 212)
	}
	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = s.now()
	s.logins++
	s.mu.Unlock()
	s.log.Info("mock: session opened", "database", s.database)
	c.Response().Header().Set("X-FM-Data-Access-Token", token)
	return reply(c, echo.Map{"token": token})
}

func (s *Server) authenticate(h http.Header) bool {
	auth := h.Get("Authorization")
	switch {
	case strings.HasPrefix(auth, "Basic "):
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
		if err != nil {
			return false
		}
		user, pass, _ := strings.Cut(string(raw), ":")
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(s.accounts) == 0 {
			return user != ""
		}
		want, ok := s.accounts[user]
		return ok && want == pass
	case strings.HasPrefix(auth, "FMID "):
		return strings.TrimSpace(strings.TrimPrefix(auth, "FMID ")) != ""
	case h.Get("X-FM-Data-OAuth-Request-Id") != "":
		return h.Get("X-FM-Data-OAuth-Identifier") != ""
	}
	return false
}

func (s *Server) handleLogout(c echo.Context) error {
	token, _ := url.PathUnescape(c.Param("token"))
	s.mu.Lock()
	_, ok := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()
	if !ok {
		return fail(c, fmapi.CodeInvalidToken)
	}
	return reply(c, nil)
}
