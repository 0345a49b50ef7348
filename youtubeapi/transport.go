package youtubeapi

import "net/http"

// APIKeyTransport authenticates requests with an API key header. Any
// Authorization header already on the request is removed so a request never
// carries both credentials.
type APIKeyTransport struct {
	Key  string
	Base http.RoundTripper
}

func (t *APIKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Del("Authorization")
	r.Header.Set("x-goog-api-key", t.Key)
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// NewAPIKeyClient returns an http.Client using APIKeyTransport.
func NewAPIKeyClient(key string) *http.Client {
	return &http.Client{Transport: &APIKeyTransport{Key: key}}
}
