package soundcloud

import (
	"golang.org/x/oauth2"
)

const (
	// APIBaseURL is the SoundCloud public API.
	APIBaseURL = "https://api.soundcloud.com"

	// AuthHost serves both the authorization page and the token endpoint.
	AuthHost = "secure.soundcloud.com"
)

// Endpoint defines the OAuth2 endpoints for SoundCloud authentication.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://" + AuthHost + "/authorize",
	TokenURL:  "https://" + AuthHost + "/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// Config returns the oauth2 configuration for a registered SoundCloud application.
// SoundCloud does not use scopes; any given are passed through unchanged.
func Config(clientID, clientSecret, redirectURL string, scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     Endpoint,
	}
}
