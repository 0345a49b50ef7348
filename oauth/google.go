package oauth

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/csb6/purple-youtube/config"
)

// GoogleConfig builds the oauth2 client config for the Google endpoint.
// RedirectURL is filled in per attempt by the Flow.
func GoogleConfig(cfg *config.Config) *oauth2.Config {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{config.DefaultScope}
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.RedirectURL(),
		Scopes:       scopes,
	}
}
