package fmdata

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Scheme selects how a session authenticates.
type Scheme string

const (
	// SchemeFileMaker authenticates with an account name and password.
	SchemeFileMaker Scheme = "filemaker"
	// SchemeClaris authenticates with a Claris ID token (FileMaker Cloud).
	SchemeClaris Scheme = "claris"
	// SchemeOAuth authenticates with an OAuth request id / identifier pair.
	SchemeOAuth Scheme = "oauth"
	// SchemeToken reuses a pre-issued Data API token.
	SchemeToken Scheme = "token"
)

// Credentials describe one way to obtain a session token.
type Credentials struct {
	Scheme Scheme

	Username string
	Password string

	// IDToken is the Claris ID token for SchemeClaris.
	IDToken string

	OAuthRequestID  string
	OAuthIdentifier string

	// Token is the pre-issued token for SchemeToken.
	Token string
}

// Basic returns account name / password credentials.
func Basic(username, password string) Credentials {
	return Credentials{Scheme: SchemeFileMaker, Username: username, Password: password}
}

// ClarisID returns credentials for a Claris ID token.
func ClarisID(idToken string) Credentials {
	return Credentials{Scheme: SchemeClaris, IDToken: idToken}
}

// OAuth returns credentials for an OAuth request id / identifier pair.
func OAuth(requestID, identifier string) Credentials {
	return Credentials{Scheme: SchemeOAuth, OAuthRequestID: requestID, OAuthIdentifier: identifier}
}

// PreIssuedToken returns credentials that reuse an existing token.
func PreIssuedToken(token string) Credentials {
	return Credentials{Scheme: SchemeToken, Token: token}
}

// Headers builds the login request headers for the credential scheme.
func (c Credentials) Headers() (http.Header, error) {
	h := make(http.Header)
	switch c.scheme() {
	case SchemeFileMaker:
		if c.Username == "" {
			return nil, invalidArgument("username is required")
		}
		raw := c.Username + ":" + c.Password
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(raw)))
	case SchemeClaris:
		if strings.TrimSpace(c.IDToken) == "" {
			return nil, invalidArgument("claris id token is required")
		}
		h.Set("Authorization", "FMID "+c.IDToken)
	case SchemeOAuth:
		if c.OAuthRequestID == "" || c.OAuthIdentifier == "" {
			return nil, invalidArgument("oauth request id and identifier are required")
		}
		h.Set("X-FM-Data-OAuth-Request-Id", c.OAuthRequestID)
		h.Set("X-FM-Data-OAuth-Identifier", c.OAuthIdentifier)
	case SchemeToken:
		if c.Token == "" {
			return nil, invalidArgument("token is required")
		}
		h.Set("Authorization", "Bearer "+c.Token)
	default:
		return nil, invalidArgument("unsupported auth scheme %q", c.Scheme)
	}
	return h, nil
}

func (c Credentials) scheme() Scheme {
	if c.Scheme == "" {
		return SchemeFileMaker
	}
	return c.Scheme
}

// DataSource carries credentials for an external data source opened by the
// same login call.
type DataSource struct {
	Database        string `json:"database" yaml:"database"`
	Username        string `json:"username,omitempty" yaml:"username"`
	Password        string `json:"password,omitempty" yaml:"password"`
	OAuthRequestID  string `json:"oAuthRequestId,omitempty" yaml:"oauthRequestId"`
	OAuthIdentifier string `json:"oAuthIdentifier,omitempty" yaml:"oauthIdentifier"`
}

func (d DataSource) validate() error {
	if strings.TrimSpace(d.Database) == "" {
		return invalidArgument("data source database is required")
	}
	if d.Username == "" && d.OAuthRequestID == "" {
		return invalidArgument("data source %q needs a username or oauth request id", d.Database)
	}
	return nil
}

func (s Scheme) String() string {
	return string(s)
}
