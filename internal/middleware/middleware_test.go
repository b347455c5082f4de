package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuth(t *testing.T) {
	t.Parallel()
	a := NewAuthenticator("s3cret", "hivecast")
	var subject string
	h := a.Auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	valid, err := a.GenerateToken("client-1", "viewer", time.Minute)
	require.NoError(t, err)
	expired, err := a.GenerateToken("client-1", "viewer", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuthenticator("other", "hivecast").GenerateToken("client-1", "viewer", time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := NewAuthenticator("s3cret", "elsewhere").GenerateToken("client-1", "viewer", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{name: "valid header", path: "/api/v1/sessions", header: "Bearer " + valid, status: http.StatusOK},
		{name: "valid query", path: "/api/v1/sessions?access_token=" + valid, status: http.StatusOK},
		{name: "missing", path: "/api/v1/sessions", status: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/api/v1/sessions", header: "Basic " + valid, status: http.StatusUnauthorized},
		{name: "expired", path: "/api/v1/sessions", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "wrong key", path: "/api/v1/sessions", header: "Bearer " + foreign, status: http.StatusUnauthorized},
		{name: "wrong issuer", path: "/api/v1/sessions", header: "Bearer " + wrongIssuer, status: http.StatusUnauthorized},
		{name: "public", path: "/health", status: http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.name)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "client-1", subject)
}

func TestValidateTokenExpired(t *testing.T) {
	t.Parallel()
	a := NewAuthenticator("s3cret", "")
	token, err := a.GenerateToken("x", "", -time.Second)
	require.NoError(t, err)

	_, err = a.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRecoveryReturnsJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	h := Recovery(log)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_server_error")
	assert.Contains(t, buf.String(), "boom")
}

func TestTracingAndLogging(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	h := Tracing(Logging(log)(http.HandlerFunc(ok)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), "request_id=abc")
	assert.Contains(t, buf.String(), "status=200")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsUseRouteTemplate(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/api/v1/sessions/{id}", ok).Methods(http.MethodGet)

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil))
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	var paths []string
	var total float64
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					paths = append(paths, label.GetValue())
				}
			}
			total += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, []string{"/api/v1/sessions/{id}"}, paths)
	assert.Equal(t, float64(3), total)
}
