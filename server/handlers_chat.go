package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/csb6/purple-youtube/chat"
	"github.com/csb6/purple-youtube/telemetry"
)

// HandleChatRecent returns archived messages for a video, defaulting to the
// stream currently being polled.
func (h *Handlers) HandleChatRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.history == nil {
		http.Error(w, "archive not configured", http.StatusNotFound)
		return
	}
	videoID := r.URL.Query().Get("video_id")
	if videoID == "" {
		if st := h.src.Status(); st.Stream != nil {
			videoID = st.Stream.VideoID
		}
	}
	if videoID == "" {
		http.Error(w, "video_id required", http.StatusBadRequest)
		return
	}
	limit := parseIntQuery(r, "limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	msgs, err := h.history.Recent(r.Context(), videoID, limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("archive query failed", slog.Any("err", err))
		http.Error(w, "archive query failed", http.StatusInternalServerError)
		return
	}
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

type messageJSON struct {
	ID        string    `json:"id,omitempty"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

func toMessageJSON(m chat.Message) messageJSON {
	return messageJSON{ID: m.ID, Author: m.DisplayName, Timestamp: m.Timestamp, Message: m.Content}
}

// HandleChatStream relays live chat messages as Server-Sent Events, one
// event per message.
func (h *Handlers) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	log := telemetry.LoggerWithCorr(ctx)

	batches, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(": connected\n\n")); err != nil {
		return
	}
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-batches:
			for _, m := range batch {
				if _, err := w.Write([]byte("data: ")); err != nil {
					log.Warn("failed to write SSE data prefix", slog.Any("err", err))
					return
				}
				if err := enc.Encode(toMessageJSON(m)); err != nil {
					log.Warn("failed to write SSE message", slog.Any("err", err))
					return
				}
				if _, err := w.Write([]byte("\n")); err != nil {
					log.Warn("failed to write SSE newline", slog.Any("err", err))
					return
				}
			}
			flusher.Flush()
		}
	}
}
