// Package settings holds the Mirador data-source configuration and the
// editor that validates and mutates it.
//
// The non-secret options and the secret token are kept in separate records,
// and a boolean in SecureJSONFields records whether a token is already
// configured without exposing it.
package settings

import (
	"net/url"
	"strings"
)

// Validation messages shown next to the base URL field.
const (
	MsgURLRequired = "URL is required"
	MsgURLInvalid  = "Please enter a valid URL"
)

// DataSourceOptions is the persisted, non-secret configuration.
type DataSourceOptions struct {
	BaseURL string `json:"baseURL" yaml:"baseURL"`
	// Error is the last validation outcome for BaseURL, empty when valid.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// SecureJSONData holds secrets. It is never serialized with DataSourceOptions.
type SecureJSONData struct {
	AuthToken string `json:"authToken,omitempty" yaml:"authToken,omitempty"`
}

// SecureJSONFields tracks which secrets are configured server side.
type SecureJSONFields struct {
	AuthToken bool `json:"authToken" yaml:"authToken"`
}

// Settings is the full data-source configuration.
type Settings struct {
	JSONData         DataSourceOptions `json:"jsonData" yaml:"jsonData"`
	SecureJSONData   SecureJSONData    `json:"secureJsonData" yaml:"secureJsonData"`
	SecureJSONFields SecureJSONFields  `json:"secureJsonFields" yaml:"secureJsonFields"`
}

// Redacted returns a copy safe to display: the token is dropped and only
// its configured flag survives.
func (s Settings) Redacted() Settings {
	out := s
	if out.SecureJSONData.AuthToken != "" {
		out.SecureJSONFields.AuthToken = true
	}
	out.SecureJSONData = SecureJSONData{}
	return out
}

// ValidateURL returns "" for a syntactically valid absolute URL or the
// message to display. Hierarchical web schemes also need an authority or an
// opaque part, so "http://" alone is rejected.
func ValidateURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return MsgURLRequired
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return MsgURLInvalid
	}
	if specialSchemes[strings.ToLower(u.Scheme)] && u.Host == "" && u.Opaque == "" {
		return MsgURLInvalid
	}
	return ""
}

var specialSchemes = map[string]bool{
	"http": true, "https": true, "ws": true, "wss": true, "ftp": true,
}
