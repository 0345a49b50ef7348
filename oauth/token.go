package oauth

import (
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
)

// refreshLogger sits on top of an oauth2 reuse source and notices when the
// library swapped in a refreshed access token.
type refreshLogger struct {
	base      oauth2.TokenSource
	onRefresh func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func newRefreshLogger(base oauth2.TokenSource, initial *oauth2.Token, onRefresh func(*oauth2.Token)) *refreshLogger {
	return &refreshLogger{base: base, onRefresh: onRefresh, last: initial.AccessToken}
}

func (r *refreshLogger) Token() (*oauth2.Token, error) {
	tok, err := r.base.Token()
	if err != nil {
		slog.Warn("access token refresh failed", slog.String("component", "oauth"), slog.Any("err", err))
		return nil, err
	}
	r.mu.Lock()
	changed := tok.AccessToken != r.last
	r.last = tok.AccessToken
	r.mu.Unlock()
	if changed {
		slog.Info("access token refreshed", slog.String("component", "oauth"), slog.Time("expiry", tok.Expiry))
		if r.onRefresh != nil {
			r.onRefresh(tok)
		}
	}
	return tok, nil
}
