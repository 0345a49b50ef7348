package server

import (
	"net/http"

	"github.com/csb6/purple-youtube/client"
)

// HandleHealthz responds to liveness probe requests.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz reports ready once the client is polling a live chat.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	st := h.src.Status()
	if st.State != client.Polling {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"state":  st.State.String(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
