// Package handler exposes the session service over HTTP, WebSocket and gRPC.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Harshitk-cp/hivecast/internal/capture"
	"github.com/Harshitk-cp/hivecast/internal/config"
	"github.com/Harshitk-cp/hivecast/internal/engine"
	"github.com/Harshitk-cp/hivecast/internal/health"
	"github.com/Harshitk-cp/hivecast/internal/input"
	"github.com/Harshitk-cp/hivecast/internal/metrics"
	"github.com/Harshitk-cp/hivecast/internal/model"
	"github.com/Harshitk-cp/hivecast/internal/service"
	"github.com/Harshitk-cp/hivecast/internal/util"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	cfg       *config.Config
	service   *service.Service
	checker   *health.Checker
	metrics   metrics.Collector
	log       *slog.Logger
	router    *mux.Router
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewHTTPHandler creates a new HTTP handler. Route middleware runs inside the
// router so it sees the matched route.
func NewHTTPHandler(cfg *config.Config, svc *service.Service, checker *health.Checker, collector metrics.Collector, log *slog.Logger, mw ...mux.MiddlewareFunc) *HTTPHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	h := &HTTPHandler{
		cfg:     cfg,
		service: svc,
		checker: checker,
		metrics: collector,
		log:     log.With("component", "handler"),
		router:  mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		startTime: time.Now(),
	}
	h.router.Use(mw...)
	h.setupRoutes()
	return h
}

// ServeHTTP implements the http.Handler interface
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// setupRoutes sets up the HTTP routes
func (h *HTTPHandler) setupRoutes() {
	api := h.router.PathPrefix("/api/v1").Subrouter()

	sessions := api.PathPrefix("/sessions").Subrouter()
	sessions.HandleFunc("", h.listSessions).Methods(http.MethodGet)
	sessions.HandleFunc("", h.createSession).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}", h.getSession).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}", h.closeSession).Methods(http.MethodDelete)
	sessions.HandleFunc("/{id}/capture", h.ensureCapture).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/offer", h.setOffer).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/answer", h.getAnswer).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/candidates", h.addCandidate).Methods(http.MethodPost)
	sessions.HandleFunc("/{id}/candidates", h.listCandidates).Methods(http.MethodGet)
	sessions.HandleFunc("/{id}/candidates/ws", h.streamCandidates).Methods(http.MethodGet)

	api.HandleFunc("/legacy", h.setLegacy).Methods(http.MethodPut)
	api.HandleFunc("/legacy", h.clearLegacy).Methods(http.MethodDelete)
	api.HandleFunc("/feedback", h.sendFeedback).Methods(http.MethodPost)

	h.router.HandleFunc("/health", h.healthCheck).Methods(http.MethodGet)
	h.router.HandleFunc("/ready", h.readyCheck).Methods(http.MethodGet)
	if h.cfg.Metrics.Enabled {
		h.router.Handle(h.cfg.Metrics.Path, h.metrics.Handler()).Methods(http.MethodGet)
	}
}

// healthCheck reports component health
func (h *HTTPHandler) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := model.HealthStatusOK
	checks := map[string]string{}
	if h.checker != nil {
		for _, c := range h.checker.Components() {
			checks[c.Name] = string(c.Status)
		}
		if h.checker.Overall() != health.StatusUp {
			status = model.HealthStatusDegraded
		}
	}

	respondWithJSON(w, http.StatusOK, model.Health{
		Status:    string(status),
		Uptime:    int64(time.Since(h.startTime).Seconds()),
		StartTime: h.startTime,
		Checks:    checks,
		Version:   h.cfg.Service.Version,
	})
}

// readyCheck answers 200 once every component is up
func (h *HTTPHandler) readyCheck(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil && h.checker.Overall() != health.StatusUp {
		respondWithError(w, model.ErrServiceUnavailable)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HTTPHandler) listSessions(w http.ResponseWriter, r *http.Request) {
	list := h.service.List()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": list,
		"count":    len(list),
	})
}

func (h *HTTPHandler) createSession(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	state, err := h.service.Create(req)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, state)
}

func (h *HTTPHandler) getSession(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.Get(mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, state)
}

func (h *HTTPHandler) closeSession(w http.ResponseWriter, r *http.Request) {
	if !h.service.Close(mux.Vars(r)["id"]) {
		respondWithError(w, model.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ensureCapture(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.EnsureCapture(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, model.CaptureStatus{Started: true, Key: key.String()})
}

func (h *HTTPHandler) setOffer(w http.ResponseWriter, r *http.Request) {
	var req model.SessionDescription
	if !decodeBody(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.service.SetRemoteOffer(id, engine.SessionDescription{Type: req.Type, SDP: req.SDP}); err != nil {
		h.respondWithServiceError(w, err)
		return
	}

	state, err := h.service.Get(id)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, state)
}

// getAnswer returns the local answer. With ?wait=<duration> it blocks until
// the answer is ready, at most the configured answer timeout; without it a
// pending answer yields 202.
func (h *HTTPHandler) getAnswer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if raw := r.URL.Query().Get("wait"); raw != "" {
		wait, err := parseWait(raw, h.cfg.Session.AnswerTimeout)
		if err != nil {
			respondWithError(w, model.ErrInvalidRequest.WithDetails(err.Error()))
			return
		}
		answer, err := h.service.WaitForLocalAnswer(r.Context(), id, wait)
		if err != nil {
			h.respondWithServiceError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, model.SessionDescription{Type: answer.Type, SDP: answer.SDP})
		return
	}

	answer, ready, err := h.service.LocalAnswer(id)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	if !ready {
		respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	}
	respondWithJSON(w, http.StatusOK, model.SessionDescription{Type: answer.Type, SDP: answer.SDP})
}

func (h *HTTPHandler) addCandidate(w http.ResponseWriter, r *http.Request) {
	var req model.CandidateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := h.service.AddICECandidate(mux.Vars(r)["id"], engine.ICECandidate{
		Mid:        req.SDPMid,
		MLineIndex: req.SDPMLineIndex,
		Candidate:  req.Candidate,
	})
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) listCandidates(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		respondWithError(w, model.ErrInvalidRequest.WithDetails(err.Error()))
		return
	}

	candidates, next, err := h.service.LocalCandidates(mux.Vars(r)["id"], since)
	if err != nil {
		h.respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, model.CandidateList{Candidates: candidates, Next: next})
}

func (h *HTTPHandler) setLegacy(w http.ResponseWriter, r *http.Request) {
	var req model.LegacyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.service.SetLegacy(req.App)
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) clearLegacy(w http.ResponseWriter, r *http.Request) {
	h.service.ClearLegacy()
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) sendFeedback(w http.ResponseWriter, r *http.Request) {
	var req model.FeedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	n, err := h.service.BroadcastFeedback(input.Feedback{
		Type:       req.Type,
		Gamepad:    req.Gamepad,
		LowFreq:    req.LowFreq,
		HighFreq:   req.HighFreq,
		Left:       req.Left,
		Right:      req.Right,
		MotionType: req.MotionType,
		ReportRate: req.ReportRate,
	})
	if err != nil {
		respondWithError(w, model.ErrInvalidRequest.WithDetails(err.Error()))
		return
	}
	respondWithJSON(w, http.StatusOK, model.FeedbackResult{Recipients: n})
}

// respondWithServiceError maps service and capture errors to API errors
func (h *HTTPHandler) respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		respondWithError(w, model.ErrNotFound)
	case errors.Is(err, service.ErrInvalidOptions), errors.Is(err, service.ErrInvalidOffer):
		respondWithError(w, model.ErrInvalidRequest.WithDetails(err.Error()))
	case errors.Is(err, service.ErrAlreadyNegotiated):
		respondWithError(w, model.NewAPIError(http.StatusConflict, "already_negotiated", "The session already has a peer"))
	case errors.Is(err, service.ErrAnswerTimeout):
		respondWithError(w, model.ErrAnswerTimeout)
	case errors.Is(err, service.ErrNegotiationFailed):
		respondWithError(w, model.NewAPIError(http.StatusBadGateway, "negotiation_failed", "The media engine rejected the offer").WithDetails(err.Error()))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, model.ErrServiceUnavailable.WithDetails(err.Error()))
	case capture.Reason(err) != capture.ReasonUnknown:
		respondWithError(w, model.ErrConflict.WithCode(capture.Reason(err)).WithDetails(err.Error()))
	default:
		h.log.Error("Request failed", "error", err)
		respondWithError(w, model.ErrInternalServer)
	}
}

// decodeBody decodes and validates a JSON body, answering 400 on failure
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, model.ErrInvalidRequest.WithDetails(fmt.Sprintf("invalid body: %v", err)))
		return false
	}
	if err := util.Validate(dst); err != nil {
		respondWithError(w, model.ErrInvalidRequest.WithDetails(err.Error()))
		return false
	}
	return true
}

// parseWait accepts a Go duration ("2s") or a number of milliseconds, capped
// at limit when limit is positive
func parseWait(raw string, limit time.Duration) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		ms, convErr := strconv.Atoi(raw)
		if convErr != nil {
			return 0, fmt.Errorf("invalid wait %q", raw)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid wait %q", raw)
	}
	if limit > 0 && d > limit {
		d = limit
	}
	return d, nil
}

func parseSince(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid since %q", raw)
	}
	return since, nil
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":"internal_server_error","message":"failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithError sends an API error response
func respondWithError(w http.ResponseWriter, apiErr model.APIError) {
	respondWithJSON(w, apiErr.Status, apiErr)
}
