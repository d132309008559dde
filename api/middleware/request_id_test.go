package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

func TestRequestIDKeepsSaneHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	resp := httptest.NewRecorder()
	RequestID(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(resp, req)

	assert.Equal(t, "req-42", resp.Header().Get(RequestIDHeader))
}

func TestRequestIDReplacesOversizedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	resp := httptest.NewRecorder()
	RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(resp, req)

	got := resp.Header().Get(RequestIDHeader)
	require.NotEmpty(t, got)
	assert.Len(t, got, 36)
}

func TestRecovererWritesInternalError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/rewards/spin", nil)
	resp := httptest.NewRecorder()
	Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("wheel misconfigured")
	})).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.NotContains(t, resp.Body.String(), "wheel misconfigured")
}

func TestRecovererReraisesAbort(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h := Recoverer(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.Panics(t, func() { h.ServeHTTP(httptest.NewRecorder(), req) })
}

func TestLoggingPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/balance", nil)
	resp := httptest.NewRecorder()
	Logging(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusTeapot, resp.Code)
}
