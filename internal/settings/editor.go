package settings

import "sync"

// TokenState is the auth token field state.
type TokenState string

const (
	TokenUnset      TokenState = "unset"
	TokenConfigured TokenState = "configured" // held server side, not shown
	TokenEditing    TokenState = "editing"    // raw value is flowing into SecureJSONData
	TokenReset      TokenState = "reset"      // cleared, must be re-entered
)

// URLState is the base URL field state.
type URLState string

const (
	URLUnset   URLState = "unset"
	URLValid   URLState = "valid"
	URLInvalid URLState = "invalid"
)

// Editor mutates Settings the way the data-source config page does.
// Every mutation invokes the change callback with a copy of the result.
type Editor struct {
	mu       sync.Mutex
	settings Settings
	token    TokenState
	onChange func(Settings)
}

// NewEditor starts from existing settings. A stored token or configured flag
// puts the token field in the configured state.
func NewEditor(initial Settings, onChange func(Settings)) *Editor {
	e := &Editor{settings: initial, onChange: onChange, token: TokenUnset}
	if initial.SecureJSONFields.AuthToken || initial.SecureJSONData.AuthToken != "" {
		e.token = TokenConfigured
	}
	return e
}

// Settings returns a copy of the current settings.
func (e *Editor) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// SetBaseURL stores the URL and its validation outcome together.
// It returns the validation message, "" when valid.
func (e *Editor) SetBaseURL(raw string) string {
	msg := ValidateURL(raw)
	e.update(func(s *Settings) {
		s.JSONData.BaseURL = raw
		s.JSONData.Error = msg
	})
	return msg
}

// SetAuthToken places a new token in the secret record.
func (e *Editor) SetAuthToken(token string) {
	e.mu.Lock()
	e.token = TokenEditing
	e.mu.Unlock()
	e.update(func(s *Settings) {
		s.SecureJSONData.AuthToken = token
	})
}

// ResetAuthToken clears both the configured flag and the held value.
func (e *Editor) ResetAuthToken() {
	e.mu.Lock()
	e.token = TokenReset
	e.mu.Unlock()
	e.update(func(s *Settings) {
		s.SecureJSONFields.AuthToken = false
		s.SecureJSONData.AuthToken = ""
	})
}

// TokenState reports the auth token field state.
func (e *Editor) TokenState() TokenState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token
}

// URLState reports the base URL field state.
func (e *Editor) URLState() URLState {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.settings.JSONData.BaseURL == "" && e.settings.JSONData.Error == "":
		return URLUnset
	case e.settings.JSONData.Error != "":
		return URLInvalid
	default:
		return URLValid
	}
}

func (e *Editor) update(fn func(*Settings)) {
	e.mu.Lock()
	fn(&e.settings)
	snapshot := e.settings
	cb := e.onChange
	e.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}
