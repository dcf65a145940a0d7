package fmdata

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/Ratio1/fmdata_sdk_go/internal/devseed"
	"github.com/Ratio1/fmdata_sdk_go/internal/httpx"
	"github.com/Ratio1/fmdata_sdk_go/pkg/fmdata/mock"
)

const (
	envMode     = "FMDATA_RUNTIME_MODE"
	envHost     = "FMDATA_HOST"
	envDatabase = "FMDATA_DATABASE"
	envUsername = "FMDATA_USERNAME"
	envPassword = "FMDATA_PASSWORD"
	envToken    = "FMDATA_TOKEN"
	envTimezone = "FMDATA_TIMEZONE"
	envMockSeed = "FMDATA_MOCK_SEED"

	modeAuto = "auto"
	modeHTTP = "http"
	modeMock = "mock"

	// MockHost is the host name clients use in mock mode.
	MockHost = "http://fmdata.mock"
)

// NewFromEnv initialises a Client from FMDATA_* environment variables and
// returns the resolved mode ("http" or "mock"). In auto mode a configured
// FMDATA_HOST selects http, otherwise an in-process mock server is used.
func NewFromEnv(opts ...Option) (client *Client, mode string, err error) {
	mode = strings.ToLower(strings.TrimSpace(os.Getenv(envMode)))
	host := strings.TrimSpace(os.Getenv(envHost))

	if tz := strings.TrimSpace(os.Getenv(envTimezone)); tz != "" {
		loc, err := ParseLocation(tz)
		if err != nil {
			return nil, "", fmt.Errorf("fmdata: %s: %w", envTimezone, err)
		}
		opts = append([]Option{WithLocation(loc)}, opts...)
	}

	switch mode {
	case "", modeAuto:
		if host != "" {
			return newHTTPClientFromEnv(host, opts)
		}
		return newMockClientFromEnv(opts)
	case modeHTTP:
		if host == "" {
			return nil, "", fmt.Errorf("fmdata: HTTP mode requires %s", envHost)
		}
		return newHTTPClientFromEnv(host, opts)
	case modeMock:
		return newMockClientFromEnv(opts)
	default:
		return nil, "", fmt.Errorf("fmdata: unsupported %s value %q", envMode, mode)
	}
}

func credentialsFromEnv() Credentials {
	if token := strings.TrimSpace(os.Getenv(envToken)); token != "" {
		return PreIssuedToken(token)
	}
	return Basic(os.Getenv(envUsername), os.Getenv(envPassword))
}

func newHTTPClientFromEnv(host string, opts []Option) (*Client, string, error) {
	database := strings.TrimSpace(os.Getenv(envDatabase))
	if database == "" {
		return nil, "", fmt.Errorf("fmdata: HTTP mode requires %s", envDatabase)
	}
	client, err := New(host, database, credentialsFromEnv(), opts...)
	if err != nil {
		return nil, "", fmt.Errorf("fmdata: init HTTP client: %w", err)
	}
	return client, modeHTTP, nil
}

func newMockClientFromEnv(opts []Option) (*Client, string, error) {
	var server *mock.Server
	creds := Basic("admin", "")
	if path := strings.TrimSpace(os.Getenv(envMockSeed)); path != "" {
		seed, err := devseed.Load(path)
		if err != nil {
			return nil, "", fmt.Errorf("fmdata: load mock seed: %w", err)
		}
		server, err = mock.NewFromSeed(seed)
		if err != nil {
			return nil, "", fmt.Errorf("fmdata: apply mock seed: %w", err)
		}
		if len(seed.Accounts) > 0 {
			creds = Basic(seed.Accounts[0].Username, seed.Accounts[0].Password)
		}
	} else {
		database := strings.TrimSpace(os.Getenv(envDatabase))
		if database == "" {
			database = "mock"
		}
		server = mock.New(database)
	}
	client, err := NewMock(server, creds, opts...)
	if err != nil {
		return nil, "", err
	}
	return client, modeMock, nil
}

// NewMock returns a Client whose requests are served in process by server.
func NewMock(server *mock.Server, creds Credentials, opts ...Option) (*Client, error) {
	opts = append([]Option{WithHTTPOptions(httpx.WithTransport(server.Transport()))}, opts...)
	client, err := New(MockHost, server.Database(), creds, opts...)
	if err != nil {
		return nil, fmt.Errorf("fmdata: init mock client: %w", err)
	}
	return client, nil
}

// ParseLocation accepts an IANA zone name ("Europe/Paris"), "UTC", "Local"
// or a fixed offset ("+02:00", "-0530", "+2").
func ParseLocation(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.UTC, nil
	}
	if s[0] != '+' && s[0] != '-' {
		return time.LoadLocation(s)
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	}
	rest := strings.ReplaceAll(s[1:], ":", "")
	var hours, minutes int
	var err error
	switch len(rest) {
	case 1, 2:
		hours, err = strconv.Atoi(rest)
	case 4:
		hours, err = strconv.Atoi(rest[:2])
		if err == nil {
			minutes, err = strconv.Atoi(rest[2:])
		}
	default:
		return nil, fmt.Errorf("invalid offset %q", s)
	}
	if err != nil || hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("invalid offset %q", s)
	}
	offset := sign * (hours*60 + minutes)
	return time.FixedZone(s, offset*60), nil
}

// Config is the YAML form of a client configuration.
type Config struct {
	Host       string `yaml:"host"`
	Database   string `yaml:"database"`
	APIVersion string `yaml:"apiVersion"`

	Scheme          Scheme `yaml:"scheme"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	IDToken         string `yaml:"idToken"`
	OAuthRequestID  string `yaml:"oauthRequestId"`
	OAuthIdentifier string `yaml:"oauthIdentifier"`
	Token           string `yaml:"token"`

	DataSources []DataSource `yaml:"dataSources"`

	Timezone        string `yaml:"timezone"`
	DateFormat      string `yaml:"dateFormat"`
	TimeFormat      string `yaml:"timeFormat"`
	TimestampFormat string `yaml:"timestampFormat"`

	Timeout   string `yaml:"timeout"`
	SchemaTTL string `yaml:"schemaTTL"`
}

// LoadConfig reads a YAML client configuration. Values of the form ${NAME}
// are expanded from the environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fmdata: read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("fmdata: decode config %s: %w", path, err)
	}
	return &cfg, nil
}

// Credentials returns the credentials described by the configuration.
func (c *Config) Credentials() Credentials {
	return Credentials{
		Scheme:          c.Scheme,
		Username:        c.Username,
		Password:        c.Password,
		IDToken:         c.IDToken,
		OAuthRequestID:  c.OAuthRequestID,
		OAuthIdentifier: c.OAuthIdentifier,
		Token:           c.Token,
	}
}

// Options converts the configuration into client options.
func (c *Config) Options() ([]Option, error) {
	host := DefaultHostConfig()
	host.DateFormat = orDefault(c.DateFormat, host.DateFormat)
	host.TimeFormat = orDefault(c.TimeFormat, host.TimeFormat)
	host.TimestampFormat = orDefault(c.TimestampFormat, host.TimestampFormat)
	if c.Timezone != "" {
		loc, err := ParseLocation(c.Timezone)
		if err != nil {
			return nil, fmt.Errorf("fmdata: timezone: %w", err)
		}
		host.Location = loc
	}
	opts := []Option{WithHostConfig(host), WithAPIVersion(c.APIVersion)}
	if len(c.DataSources) > 0 {
		opts = append(opts, WithDataSources(c.DataSources...))
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return nil, fmt.Errorf("fmdata: timeout: %w", err)
		}
		opts = append(opts, WithHTTPOptions(httpx.WithTimeout(d)))
	}
	if c.SchemaTTL != "" {
		d, err := time.ParseDuration(c.SchemaTTL)
		if err != nil {
			return nil, fmt.Errorf("fmdata: schemaTTL: %w", err)
		}
		opts = append(opts, WithSchemaTTL(d))
	}
	return opts, nil
}

// NewFromConfig builds a Client from a configuration. opts are applied after
// the configured ones.
func NewFromConfig(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, invalidArgument("config is nil")
	}
	base, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	return New(cfg.Host, cfg.Database, cfg.Credentials(), append(base, opts...)...)
}
