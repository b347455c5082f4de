package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Harshitk-cp/hivecast/internal/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// streamCandidates upgrades to a WebSocket and pushes every local candidate
// with an index greater than since as it is gathered. The stream ends when
// the session closes or the client goes away.
func (h *HTTPHandler) streamCandidates(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	since, err := parseSince(r)
	if err != nil {
		respondWithError(w, model.ErrInvalidRequest.WithDetails(err.Error()))
		return
	}
	if _, err := h.service.Get(id); err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "session", id, "error", err)
		return
	}
	defer conn.Close()

	// The reader only handles control frames and notices the client leaving.
	gone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		updated, done, err := h.service.CandidateUpdates(id)
		if err != nil {
			h.closeStream(conn, websocket.CloseNormalClosure, "session closed")
			return
		}
		candidates, next, err := h.service.LocalCandidates(id, since)
		if err != nil {
			h.closeStream(conn, websocket.CloseNormalClosure, "session closed")
			return
		}
		for _, c := range candidates {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(c); err != nil {
				h.log.Debug("Candidate stream write failed", "session", id, "error", err)
				return
			}
		}
		since = next

	wait:
		for {
			select {
			case <-updated:
				break wait
			case <-done:
				h.closeStream(conn, websocket.CloseNormalClosure, "session closed")
				return
			case <-gone:
				return
			case <-r.Context().Done():
				return
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

func (h *HTTPHandler) closeStream(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil {
		h.log.Debug("Failed to send close frame", "error", err)
	}
}
