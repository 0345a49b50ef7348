package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/csb6/purple-youtube/chat"
	"github.com/csb6/purple-youtube/client"
)

// StatusSource reports the chat client's state.
type StatusSource interface {
	Status() client.Status
}

// HistorySource reads archived messages.
type HistorySource interface {
	Recent(ctx context.Context, videoID string, limit int) ([]chat.Message, error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	src     StatusSource
	hub     *Hub
	history HistorySource
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(src StatusSource, hub *Hub, history HistorySource) *Handlers {
	return &Handlers{src: src, hub: hub, history: history}
}

type streamJSON struct {
	VideoID    string `json:"video_id"`
	Title      string `json:"title"`
	LiveChatID string `json:"live_chat_id"`
}

type pollJSON struct {
	HasPageToken        bool       `json:"has_page_token"`
	PollIntervalMillis  int64      `json:"poll_interval_ms"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	Running             bool       `json:"running"`
}

type statusJSON struct {
	Instance    string      `json:"instance,omitempty"`
	Mode        string      `json:"mode"`
	State       string      `json:"state"`
	Authorized  bool        `json:"authorized"`
	AuthState   string      `json:"auth_state,omitempty"`
	Stream      *streamJSON `json:"stream,omitempty"`
	Poll        *pollJSON   `json:"poll,omitempty"`
	Subscribers int         `json:"sse_subscribers"`
}

// HandleStatus returns the client status as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := h.src.Status()
	out := statusJSON{
		Instance:    st.Instance,
		Mode:        string(st.Mode),
		State:       st.State.String(),
		Authorized:  st.Authorized,
		AuthState:   st.AuthState,
		Subscribers: h.hub.Subscribers(),
	}
	if st.Stream != nil {
		out.Stream = &streamJSON{VideoID: st.Stream.VideoID, Title: st.Stream.Title, LiveChatID: st.Stream.LiveChatID}
	}
	if p := st.Poll; p != nil {
		pj := &pollJSON{
			HasPageToken:        p.HasPageToken,
			PollIntervalMillis:  p.PollInterval.Milliseconds(),
			ConsecutiveFailures: p.ConsecutiveFailures,
			Running:             p.Running,
		}
		if !p.LastSuccess.IsZero() {
			ls := p.LastSuccess
			pj.LastSuccess = &ls
		}
		out.Poll = pj
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
