package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
)

// RecordedRequest is a request seen by MockYouTubeServer.
type RecordedRequest struct {
	Path   string
	Query  url.Values
	Header http.Header
	Form   url.Values
}

// MockYouTubeServer creates a test server that mocks YouTube Data API and
// Google token endpoint responses. Handlers are keyed by URL path.
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewMockYouTubeServer creates a new mock YouTube API server.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		m.mu.Lock()
		m.requests = append(m.requests, RecordedRequest{
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Form:   r.PostForm,
		})
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// BaseURL returns the server root with a trailing slash.
func (m *MockYouTubeServer) BaseURL() string { return m.URL + "/" }

// Handle registers h for path.
func (m *MockYouTubeServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// Requests returns the requests recorded for path.
func (m *MockYouTubeServer) Requests(path string) []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RecordedRequest
	for _, r := range m.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// MockVideo answers videos.list with a single live video.
func (m *MockYouTubeServer) MockVideo(title, liveChatID string) {
	item := map[string]any{}
	if title != "" {
		item["snippet"] = map[string]string{"title": title}
	}
	if liveChatID != "" {
		item["liveStreamingDetails"] = map[string]string{"activeLiveChatId": liveChatID}
	}
	m.MockVideoItems([]map[string]any{item})
}

// MockVideoItems answers videos.list with the given items.
func (m *MockYouTubeServer) MockVideoItems(items []map[string]any) {
	m.Handle("/youtube/v3/videos", jsonHandler(map[string]any{"items": items}))
}

// MockChannel answers channels.list with the given channel ids.
func (m *MockYouTubeServer) MockChannel(ids ...string) {
	items := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]string{"id": id})
	}
	m.Handle("/youtube/v3/channels", jsonHandler(map[string]any{"items": items}))
}

// MockLiveSearch answers search.list with the given video ids.
func (m *MockYouTubeServer) MockLiveSearch(videoIDs ...string) {
	items := make([]map[string]any, 0, len(videoIDs))
	for _, id := range videoIDs {
		items = append(items, map[string]any{"id": map[string]string{"kind": "youtube#video", "videoId": id}})
	}
	m.Handle("/youtube/v3/search", jsonHandler(map[string]any{"items": items}))
}

// MockChatPages answers successive liveChat/messages requests with the given
// raw bodies. The last body is repeated once the list is exhausted.
func (m *MockYouTubeServer) MockChatPages(pages ...string) {
	var mu sync.Mutex
	next := 0
	m.Handle("/youtube/v3/liveChat/messages", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := next
		if next < len(pages)-1 {
			next++
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pages[i])) //nolint:errcheck // test mock response
	})
}

// MockOAuthTokenResponse adds a handler for the OAuth token endpoint.
func (m *MockYouTubeServer) MockOAuthTokenResponse(accessToken, refreshToken string, expiresIn int) {
	m.Handle("/token", jsonHandler(map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    expiresIn,
		"token_type":    "Bearer",
	}))
}

func jsonHandler(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
	}
}
