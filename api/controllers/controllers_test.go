package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-rewards/api/middleware"
	"github.com/angelmondragon/packfinderz-rewards/internal/affiliate"
	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type fakeClicks struct {
	in  affiliate.ClickInput
	res affiliate.ClickResult
}

func (f *fakeClicks) RecordClick(_ context.Context, in affiliate.ClickInput) (*affiliate.ClickResult, error) {
	f.in = in
	return &f.res, nil
}

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

func TestAffiliateClickUsesClientIPAndVisitor(t *testing.T) {
	svc := &fakeClicks{res: affiliate.ClickResult{Reason: affiliate.ClickSkipUnknownCode}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"ALICE"}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	req = req.WithContext(middleware.WithUserID(req.Context(), "visitor-1"))
	resp := httptest.NewRecorder()

	AffiliateClick(svc, logger.Nop()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, "ALICE", svc.in.Code)
	assert.Equal(t, "203.0.113.5", svc.in.VisitorIP)
	assert.Equal(t, "visitor-1", svc.in.VisitorUserID)
}

func TestAffiliateClickRequiresCode(t *testing.T) {
	resp := httptest.NewRecorder()
	AffiliateClick(&fakeClicks{}, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	deps := map[string]Pinger{
		"db":    pingFunc(func(context.Context) error { return nil }),
		"redis": pingFunc(func(context.Context) error { return errors.New("refused") }),
	}
	resp := httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), deps).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "redis")
}

func TestHealthReadyAllHealthy(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	deps := map[string]Pinger{"db": pingFunc(func(context.Context) error { return nil })}
	resp := httptest.NewRecorder()
	HealthReady(cfg, logger.Nop(), deps).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "test", resp.Header().Get("X-PackFinderz-Env"))
}
