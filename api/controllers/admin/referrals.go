package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-rewards/api/controllers/account"
	"github.com/angelmondragon/packfinderz-rewards/api/controllers/views"
	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/api/validators"
	"github.com/angelmondragon/packfinderz-rewards/internal/referrals"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type ReferralService interface {
	Approve(ctx context.Context, id uuid.UUID) (*referrals.Decision, error)
	Reject(ctx context.Context, id uuid.UUID) (*referrals.Decision, error)
	BulkDecide(ctx context.Context, ids []uuid.UUID, to enums.ReferralStatus) (referrals.BulkResult, error)
	List(ctx context.Context, params referrals.ListParams) (*referrals.ListResult, error)
}

type bulkDecisionRequest struct {
	IDs      []uuid.UUID `json:"ids" validate:"required,min=1,max=500"`
	Decision string      `json:"decision" validate:"required,oneof=approved rejected"`
}

// ListReferrals is the moderation queue; user_id and status narrow it.
func ListReferrals(svc ReferralService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := account.ParseReferralListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))
		res, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func ApproveReferral(svc ReferralService, logg *logger.Logger) http.HandlerFunc {
	return decide(logg, func(ctx context.Context, id uuid.UUID) (*referrals.Decision, error) {
		return svc.Approve(ctx, id)
	})
}

func RejectReferral(svc ReferralService, logg *logger.Logger) http.HandlerFunc {
	return decide(logg, func(ctx context.Context, id uuid.UUID) (*referrals.Decision, error) {
		return svc.Reject(ctx, id)
	})
}

// decide answers 200 whether or not the transition applied; Applied tells
// the caller if this request moved the application.
func decide(logg *logger.Logger, apply func(context.Context, uuid.UUID) (*referrals.Decision, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "applicationId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid application id"))
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "application_id", id.String())
		}
		decision, err := apply(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromDecision(decision))
	}
}

// BulkDecide applies one decision to many applications. Per-row failures are
// reported in the counts and logged; the request itself still succeeds.
func BulkDecide(svc ReferralService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body bulkDecisionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.BulkDecide(r.Context(), body.IDs, enums.ReferralStatus(body.Decision))
		if err != nil {
			if res.Processed+res.Skipped+res.Failed == 0 {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if logg != nil {
				logCtx := logg.WithFields(r.Context(), map[string]any{"failed": res.Failed, "processed": res.Processed})
				logg.Error(logCtx, "bulk referral decision partially failed", err)
			}
		}
		responses.WriteSuccess(w, res)
	}
}
