package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-rewards/internal/settlement"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type fakeInbound struct {
	completed []settlement.OrderCompleted
	cancelled []string
	refunded  []string
	err       error
}

func (f *fakeInbound) OrderCompleted(_ context.Context, evt settlement.OrderCompleted) (*settlement.Outcome, error) {
	f.completed = append(f.completed, evt)
	if f.err != nil {
		return nil, f.err
	}
	return &settlement.Outcome{OrderID: evt.OrderID, Status: enums.OrderStatusCompleted, Credited: 500}, nil
}

func (f *fakeInbound) OrderCancelled(_ context.Context, orderID string) (*settlement.Outcome, error) {
	f.cancelled = append(f.cancelled, orderID)
	return &settlement.Outcome{OrderID: orderID, Status: enums.OrderStatusCancelled}, f.err
}

func (f *fakeInbound) OrderRefunded(_ context.Context, orderID string) (*settlement.Outcome, error) {
	f.refunded = append(f.refunded, orderID)
	return &settlement.Outcome{OrderID: orderID, Status: enums.OrderStatusRefunded, Revoked: 500}, f.err
}

func TestOrderCompletedForwardsEvent(t *testing.T) {
	in := &fakeInbound{}
	body := `{"order_id":"o-1","customer_id":"c-1","total_cents":10000,"affiliate_code":"ALICE","visitor_ip":"203.0.113.7"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	resp := httptest.NewRecorder()

	OrderCompleted(in, logger.Nop()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, in.completed, 1)
	assert.Equal(t, "o-1", in.completed[0].OrderID)
	assert.Equal(t, int64(10000), in.completed[0].TotalCents)
	assert.Equal(t, "ALICE", in.completed[0].AffiliateCode)

	var payload struct {
		Data settlement.Outcome `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, int64(500), payload.Data.Credited)
}

func TestOrderCompletedRejectsInvalidBody(t *testing.T) {
	in := &fakeInbound{}
	cases := []string{
		`{"customer_id":"c-1","total_cents":100}`,
		`{"order_id":"o-1","customer_id":"c-1","total_cents":-5}`,
		`{"order_id":"o-1","customer_id":"c-1","total_cents":5,"visitor_ip":"nope"}`,
		`not json`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		resp := httptest.NewRecorder()
		OrderCompleted(in, logger.Nop()).ServeHTTP(resp, req)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
	}
	assert.Empty(t, in.completed)
}

func TestOrderCompletedMapsLockTimeout(t *testing.T) {
	in := &fakeInbound{err: pkgerrors.New(pkgerrors.CodeLockTimeout, "user busy")}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_id":"o-1","customer_id":"c-1","total_cents":1}`))
	resp := httptest.NewRecorder()

	OrderCompleted(in, logger.Nop()).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestReversalRoutesToMatchingHandler(t *testing.T) {
	in := &fakeInbound{}

	resp := httptest.NewRecorder()
	OrderCancelled(in, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_id":"o-2"}`)))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	OrderRefunded(in, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_id":"o-3"}`)))
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, []string{"o-2"}, in.cancelled)
	assert.Equal(t, []string{"o-3"}, in.refunded)
}
