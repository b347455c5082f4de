package input

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LogInjector logs events instead of injecting them.
type LogInjector struct {
	Log *slog.Logger
}

// Passthrough logs ev at debug level.
func (l LogInjector) Passthrough(ev Event) error {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Debug("Input event", "kind", ev.Kind(), "event", ev)
	return nil
}

// envelope is the wire form of an event sent to the host input service.
type envelope struct {
	Kind  string `json:"kind"`
	Event Event  `json:"event"`
}

// WebSocketInjector forwards events as JSON text frames to a host input
// service. The connection is dialed lazily and redialed after a write error.
type WebSocketInjector struct {
	url    string
	header http.Header
	dialer websocket.Dialer
	log    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocketInjector creates an injector for url. token, when set, is sent
// as a bearer token on the handshake.
func NewWebSocketInjector(url, token string, log *slog.Logger) *WebSocketInjector {
	if log == nil {
		log = slog.Default()
	}
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return &WebSocketInjector{
		url:    url,
		header: h,
		dialer: websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log.With("component", "injector"),
	}
}

// Passthrough sends ev to the host input service.
func (w *WebSocketInjector) Passthrough(ev Event) error {
	b, err := json.Marshal(envelope{Kind: ev.Kind(), Event: ev})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		if err := w.dialLocked(); err != nil {
			return err
		}
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		w.conn.Close()
		w.conn = nil
		return fmt.Errorf("failed to write input event: %w", err)
	}
	return nil
}

func (w *WebSocketInjector) dialLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, resp, err := w.dialer.DialContext(ctx, w.url, w.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to dial %s: %w (http %d)", w.url, err, resp.StatusCode)
		}
		return fmt.Errorf("failed to dial %s: %w", w.url, err)
	}
	w.log.Info("Connected to input service", "url", w.url)
	w.conn = conn
	return nil
}

// Close closes the connection.
func (w *WebSocketInjector) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
