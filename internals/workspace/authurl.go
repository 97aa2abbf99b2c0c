package workspace

import (
	"net/url"
	"strings"

	"github.com/hookvibe/hookcode-sub000/internals/redact"
	"github.com/hookvibe/hookcode-sub000/internals/remote"
)

// AuthURL pairs the credentialed URL handed to git with the masked form
// used everywhere else. Only Display may be logged.
type AuthURL struct {
	Exec    string
	Display string
}

func tokenUser(provider remote.Provider) string {
	if provider == remote.ProviderGitLab {
		return "oauth2"
	}
	return "x-access-token"
}

// NewAuthURL injects token into an http(s) clone URL. Other schemes, and
// empty tokens, pass through unchanged.
func NewAuthURL(provider remote.Provider, cloneURL string, token string) AuthURL {
	cloneURL = strings.TrimSpace(cloneURL)
	display := redact.String(cloneURL)
	if token == "" {
		return AuthURL{Exec: cloneURL, Display: display}
	}
	parsed, err := url.Parse(cloneURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return AuthURL{Exec: cloneURL, Display: display}
	}
	withAuth := *parsed
	withAuth.User = url.UserPassword(tokenUser(provider), token)
	exec := withAuth.String()
	return AuthURL{Exec: exec, Display: redact.String(exec)}
}

func (a AuthURL) String() string {
	return a.Display
}
