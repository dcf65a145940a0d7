package fmdata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/Ratio1/fmdata_sdk_go/internal/httpx"
)

// DefaultAPIVersion is the Data API version segment used in endpoint paths.
const DefaultAPIVersion = "vLatest"

// UserAgent is sent with every request.
const UserAgent = "fmdata-go"

// Client is bound to one hosted database. It owns the Session, the host
// configuration used for temporal values and the per-layout schema cache.
type Client struct {
	session *Session
	schemas *cache.Cache
	log     *slog.Logger

	hostMu sync.RWMutex
	host   HostConfig
}

type clientConfig struct {
	apiVersion  string
	httpOptions []httpx.Option
	host        HostConfig
	sources     []DataSource
	schemaTTL   time.Duration
	log         *slog.Logger
}

// Option configures a Client.
type Option func(*clientConfig)

// WithHTTPOptions forwards options to the underlying httpx client.
func WithHTTPOptions(opts ...httpx.Option) Option {
	return func(c *clientConfig) {
		c.httpOptions = append(c.httpOptions, opts...)
	}
}

// WithHTTPClient uses h for every request.
func WithHTTPClient(h *http.Client) Option {
	return WithHTTPOptions(httpx.WithHTTPClient(h))
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithHostConfig sets the temporal formats and location of the host.
func WithHostConfig(h HostConfig) Option {
	return func(c *clientConfig) {
		c.host = h
	}
}

// WithLocation sets the location host wall-clock values are read in.
func WithLocation(loc *time.Location) Option {
	return func(c *clientConfig) {
		if loc != nil {
			c.host.Location = loc
		}
	}
}

// WithTimezoneOffset is WithLocation for a fixed offset in minutes east of UTC.
func WithTimezoneOffset(minutes int) Option {
	return WithLocation(time.FixedZone(offsetName(minutes), minutes*60))
}

func offsetName(minutes int) string {
	sign := '+'
	if minutes < 0 {
		sign = '-'
	}
	m := abs(minutes)
	return fmt.Sprintf("UTC%c%02d:%02d", sign, m/60, m%60)
}

// WithDataSources bundles external data source credentials into every login.
func WithDataSources(sources ...DataSource) Option {
	return func(c *clientConfig) {
		c.sources = append(c.sources, sources...)
	}
}

// WithSchemaTTL expires cached layout metadata after d. Zero keeps it for the
// life of the client.
func WithSchemaTTL(d time.Duration) Option {
	return func(c *clientConfig) {
		c.schemaTTL = d
	}
}

// WithAPIVersion overrides the "vLatest" path segment.
func WithAPIVersion(v string) Option {
	return func(c *clientConfig) {
		if strings.TrimSpace(v) != "" {
			c.apiVersion = v
		}
	}
}

// New constructs a Client for database on host (scheme://host[:port]).
func New(host, database string, creds Credentials, opts ...Option) (*Client, error) {
	if strings.TrimSpace(host) == "" {
		return nil, invalidArgument("host is required")
	}
	if strings.TrimSpace(database) == "" {
		return nil, invalidArgument("database is required")
	}

	cfg := clientConfig{
		apiVersion: DefaultAPIVersion,
		host:       DefaultHostConfig(),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	httpOpts := append([]httpx.Option{httpx.WithHeaders(http.Header{"User-Agent": {UserAgent}})}, cfg.httpOptions...)
	base := strings.TrimRight(host, "/") + "/fmi/data/" + url.PathEscape(cfg.apiVersion) + "/"
	httpClient, err := httpx.NewClient(base, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("fmdata: init http client: %w", err)
	}

	ttl := cache.NoExpiration
	if cfg.schemaTTL > 0 {
		ttl = cfg.schemaTTL
	}
	return &Client{
		session: newSession(httpClient, database, creds, cfg.sources, cfg.log),
		host:    cfg.host,
		schemas: cache.New(ttl, 10*time.Minute),
		log:     cfg.log,
	}, nil
}

// Session returns the client's session.
func (c *Client) Session() *Session {
	return c.session
}

// Login authenticates the session. See Session.Login.
func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

// Logout ends the session. See Session.Logout.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// HostConfig returns the temporal configuration in use.
func (c *Client) HostConfig() HostConfig {
	c.hostMu.RLock()
	defer c.hostMu.RUnlock()
	return c.host
}

// Layout returns a handle on the named layout. No request is made.
func (c *Client) Layout(name string) *Layout {
	return &Layout{client: c, name: name}
}

// ProductInfo describes the server product and its declared formats.
type ProductInfo struct {
	Name            string `json:"name"`
	BuildDate       string `json:"buildDate"`
	Version         string `json:"version"`
	DateFormat      string `json:"dateFormat"`
	TimeFormat      string `json:"timeFormat"`
	TimeStampFormat string `json:"timeStampFormat"`
}

// ProductInfo fetches the server product information. No token is needed.
func (c *Client) ProductInfo(ctx context.Context) (*ProductInfo, error) {
	resp, err := c.session.Do(ctx, &Request{
		Method:    http.MethodGet,
		Path:      "productInfo",
		Unscoped:  true,
		Anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	var payload struct {
		ProductInfo ProductInfo `json:"productInfo"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	return &payload.ProductInfo, nil
}

// LoadHostConfig replaces the declared date, time and timestamp formats with
// those reported by the server. The configured location is kept. Records
// hydrated earlier keep the values parsed with the previous formats.
func (c *Client) LoadHostConfig(ctx context.Context) error {
	info, err := c.ProductInfo(ctx)
	if err != nil {
		return err
	}
	c.hostMu.Lock()
	defer c.hostMu.Unlock()
	c.host.DateFormat = orDefault(info.DateFormat, c.host.DateFormat)
	c.host.TimeFormat = orDefault(info.TimeFormat, c.host.TimeFormat)
	c.host.TimestampFormat = orDefault(info.TimeStampFormat, c.host.TimestampFormat)
	return nil
}

type namedNode struct {
	Name     string      `json:"name"`
	IsFolder bool        `json:"isFolder"`
	Layouts  []namedNode `json:"folderLayoutNames"`
	Scripts  []namedNode `json:"folderScriptNames"`
}

func flattenNodes(nodes []namedNode, out []string) []string {
	for _, n := range nodes {
		if n.IsFolder {
			out = flattenNodes(n.Layouts, out)
			out = flattenNodes(n.Scripts, out)
			continue
		}
		out = append(out, n.Name)
	}
	return out
}

// Layouts lists the layout names of the database, with folders flattened.
func (c *Client) Layouts(ctx context.Context) ([]string, error) {
	resp, err := c.session.Do(ctx, &Request{Method: http.MethodGet, Path: "layouts"})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Layouts []namedNode `json:"layouts"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	return flattenNodes(payload.Layouts, nil), nil
}

// Scripts lists the script names of the database, with folders flattened.
func (c *Client) Scripts(ctx context.Context) ([]string, error) {
	resp, err := c.session.Do(ctx, &Request{Method: http.MethodGet, Path: "scripts"})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Scripts []namedNode `json:"scripts"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	return flattenNodes(payload.Scripts, nil), nil
}

// SetGlobals sets global field values for the session. Names must be fully
// qualified (Table::Field). time.Time values are sent as timestamps.
func (c *Client) SetGlobals(ctx context.Context, values map[string]any) error {
	if len(values) == 0 {
		return invalidArgument("no global fields given")
	}
	fields := make(map[string]any, len(values))
	for name, v := range values {
		if t, ok := v.(time.Time); ok {
			v = c.HostConfig().Format(KindTimestamp, t)
		}
		fields[name] = v
	}
	_, err := c.session.Do(ctx, &Request{
		Method: http.MethodPatch,
		Path:   "globals",
		Body:   map[string]any{"globalFields": fields},
	})
	return err
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
