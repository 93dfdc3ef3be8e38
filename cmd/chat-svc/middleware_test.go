package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCorsMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{name: "wildcard", allowed: []string{"*"}, method: http.MethodGet, origin: "https://x.example", wantOrigin: "*", wantStatus: http.StatusOK},
		{name: "listed origin echoed", allowed: []string{"https://a.example"}, method: http.MethodGet, origin: "https://a.example", wantOrigin: "https://a.example", wantStatus: http.StatusOK},
		{name: "unlisted origin gets no header", allowed: []string{"https://a.example"}, method: http.MethodGet, origin: "https://evil.example", wantOrigin: "", wantStatus: http.StatusOK},
		{name: "preflight short-circuits", allowed: []string{"*"}, method: http.MethodOptions, origin: "https://x.example", wantOrigin: "*", wantStatus: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/messages/users", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			corsMiddleware(tt.allowed)(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "token")
		})
	}
}

func TestBodyLimitMiddleware(t *testing.T) {
	var readErr error
	h := bodyLimitMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	var tooLarge *http.MaxBytesError
	require.ErrorAs(t, readErr, &tooLarge)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short"))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NoError(t, readErr)
}

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	h := loggingMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/status", nil))

	out := buf.String()
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"path":"/api/status"`)
	assert.Contains(t, out, `"level":"info"`)
}
