package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-rewards/internal/expiry"
	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/redemption"
	"github.com/angelmondragon/packfinderz-rewards/internal/referrals"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type fakeReferrals struct {
	decided []uuid.UUID
	bulkTo  enums.ReferralStatus
	bulkRes referrals.BulkResult
	bulkErr error
}

func (f *fakeReferrals) Approve(_ context.Context, id uuid.UUID) (*referrals.Decision, error) {
	f.decided = append(f.decided, id)
	return &referrals.Decision{
		Application: models.ReferralApplication{ID: id, Status: enums.ReferralStatusApproved},
		Applied:     true,
		Credit:      &ledger.Result{Entry: models.LedgerEntry{AmountCents: 500, RequestedCents: 500}, BalanceCents: 500},
	}, nil
}

func (f *fakeReferrals) Reject(_ context.Context, id uuid.UUID) (*referrals.Decision, error) {
	return &referrals.Decision{Application: models.ReferralApplication{ID: id, Status: enums.ReferralStatusApproved}}, nil
}

func (f *fakeReferrals) BulkDecide(_ context.Context, _ []uuid.UUID, to enums.ReferralStatus) (referrals.BulkResult, error) {
	f.bulkTo = to
	return f.bulkRes, f.bulkErr
}

func (f *fakeReferrals) List(context.Context, referrals.ListParams) (*referrals.ListResult, error) {
	return &referrals.ListResult{}, nil
}

type fakeLedger struct {
	input ledger.AdjustInput
}

func (f *fakeLedger) Adjust(_ context.Context, in ledger.AdjustInput) (*ledger.Result, error) {
	f.input = in
	applied := in.AmountCents
	if applied < -100 {
		applied = -100
	}
	return &ledger.Result{
		Entry:         models.LedgerEntry{AmountCents: applied, RequestedCents: in.AmountCents, Type: in.Type},
		PreviousCents: 100,
		BalanceCents:  100 + applied,
	}, nil
}

func (f *fakeLedger) GetBalance(context.Context, string) (int64, error) { return 0, nil }

func (f *fakeLedger) GetLog(context.Context, string, int) ([]models.LedgerEntry, error) {
	return nil, nil
}

type fakeGranter struct{ in redemption.GrantInput }

func (f *fakeGranter) Grant(_ context.Context, in redemption.GrantInput) (int64, error) {
	f.in = in
	return in.Amount, nil
}

type fakeSweeper struct {
	res expiry.Result
	err error
}

func (f fakeSweeper) Sweep(context.Context, time.Time) (expiry.Result, error) { return f.res, f.err }

func withParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestApproveReferral(t *testing.T) {
	svc := &fakeReferrals{}
	id := uuid.New()
	req := withParam(httptest.NewRequest(http.MethodPost, "/", nil), "applicationId", id.String())
	resp := httptest.NewRecorder()
	ApproveReferral(svc, logger.Nop()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []uuid.UUID{id}, svc.decided)
	assert.Contains(t, resp.Body.String(), `"applied":true`)
	assert.Contains(t, resp.Body.String(), `"balance_cents":500`)
}

func TestApproveReferralRejectsBadID(t *testing.T) {
	req := withParam(httptest.NewRequest(http.MethodPost, "/", nil), "applicationId", "nope")
	resp := httptest.NewRecorder()
	ApproveReferral(&fakeReferrals{}, logger.Nop()).ServeHTTP(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestBulkDecideReportsPartialFailure(t *testing.T) {
	svc := &fakeReferrals{
		bulkRes: referrals.BulkResult{Processed: 2, Failed: 1},
		bulkErr: errors.New("application x: lock timeout"),
	}
	body := `{"ids":["` + uuid.NewString() + `","` + uuid.NewString() + `","` + uuid.NewString() + `"],"decision":"rejected"}`
	resp := httptest.NewRecorder()
	BulkDecide(svc, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, enums.ReferralStatusRejected, svc.bulkTo)
	assert.Contains(t, resp.Body.String(), `"failed":1`)
}

func TestBulkDecideValidatesDecision(t *testing.T) {
	body := `{"ids":["` + uuid.NewString() + `"],"decision":"pending"}`
	resp := httptest.NewRecorder()
	BulkDecide(&fakeReferrals{}, logger.Nop()).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdjustUserDefaultsToManualAndReportsClamp(t *testing.T) {
	svc := &fakeLedger{}
	req := withParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount_cents":-500,"reason":"goodwill reversal"}`)), "userId", "u-9")
	resp := httptest.NewRecorder()
	AdjustUser(svc, logger.Nop()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "u-9", svc.input.UserID)
	assert.Equal(t, enums.LedgerEntryManual, svc.input.Type)
	assert.Contains(t, resp.Body.String(), `"clamped":true`)
}

func TestAdjustUserRejectsProgramTypesAndBareRefunds(t *testing.T) {
	cases := []string{
		`{"amount_cents":500,"reason":"x","type":"affiliate"}`,
		`{"amount_cents":500,"reason":"x","type":"refund"}`,
		`{"amount_cents":0,"reason":"x"}`,
		`{"amount_cents":5,"reason":"x","expiry_days":-1}`,
	}
	for _, body := range cases {
		svc := &fakeLedger{}
		req := withParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "userId", "u-9")
		resp := httptest.NewRecorder()
		AdjustUser(svc, logger.Nop()).ServeHTTP(resp, req)
		assert.Equal(t, http.StatusBadRequest, resp.Code, body)
		assert.Empty(t, svc.input.UserID, body)
	}
}

func TestGrantCounter(t *testing.T) {
	svc := &fakeGranter{}
	req := withParam(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"kind":"spins","amount":3,"reason":"launch promo"}`)), "userId", "u-3")
	resp := httptest.NewRecorder()
	GrantCounter(svc, logger.Nop()).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, enums.CounterSpins, svc.in.Kind)
	assert.Equal(t, int64(3), svc.in.Amount)
}

func TestRunExpirySweep(t *testing.T) {
	resp := httptest.NewRecorder()
	RunExpirySweep(fakeSweeper{res: expiry.Result{Users: 2, Entries: 3, ExpiredCents: 700}}, nil, logger.Nop()).
		ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"expired_cents":700`)

	resp = httptest.NewRecorder()
	RunExpirySweep(fakeSweeper{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}, nil, logger.Nop()).
		ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

type fakeDeadLetters struct {
	rows     []models.OutboxDLQ
	requeued []uuid.UUID
}

func (f *fakeDeadLetters) List(_ context.Context, limit int) ([]models.OutboxDLQ, error) {
	if limit < len(f.rows) {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func (f *fakeDeadLetters) Requeue(_ context.Context, id uuid.UUID) (bool, error) {
	for _, row := range f.rows {
		if row.EventID == id {
			f.requeued = append(f.requeued, id)
			return true, nil
		}
	}
	return false, nil
}

func TestDeadLettersListAndRequeue(t *testing.T) {
	msg := "max publish attempts reached: unavailable"
	id := uuid.New()
	svc := &fakeDeadLetters{rows: []models.OutboxDLQ{{
		EventID:      id,
		EventType:    enums.EventTierUpgraded,
		ErrorReason:  enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage: &msg,
		AttemptCount: 10,
		FailedAt:     time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC),
	}}}

	resp := httptest.NewRecorder()
	ListDeadLetters(svc, logger.Nop())(resp, httptest.NewRequest(http.MethodGet, "/?limit=5", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), id.String())
	assert.Contains(t, resp.Body.String(), "2026-03-01T04:00:00Z")

	resp = httptest.NewRecorder()
	RequeueDeadLetter(svc, logger.Nop())(resp, withParam(httptest.NewRequest(http.MethodPost, "/", nil), "eventId", id.String()))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []uuid.UUID{id}, svc.requeued)

	resp = httptest.NewRecorder()
	RequeueDeadLetter(svc, logger.Nop())(resp, withParam(httptest.NewRequest(http.MethodPost, "/", nil), "eventId", uuid.NewString()))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
