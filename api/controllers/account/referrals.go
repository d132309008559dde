package account

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/api/validators"
	"github.com/angelmondragon/packfinderz-rewards/internal/referrals"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/pagination"
)

type ReferralService interface {
	Submit(ctx context.Context, input referrals.SubmitInput) (*referrals.SubmitResult, error)
	List(ctx context.Context, params referrals.ListParams) (*referrals.ListResult, error)
}

type submitReferralRequest struct {
	OrderID  string `json:"order_id" validate:"required,max=128"`
	Platform string `json:"platform" validate:"required,max=64"`
	VideoURL string `json:"video_url" validate:"required,http_url,max=2048"`
	Note     string `json:"note" validate:"max=1000"`
}

// SubmitReferral files a referral application for one of the caller's
// orders. A repeat submit answers 200 with the existing application.
func SubmitReferral(svc ReferralService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body submitReferralRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Submit(r.Context(), referrals.SubmitInput{
			UserID:   userID,
			OrderID:  body.OrderID,
			Platform: body.Platform,
			VideoURL: body.VideoURL,
			Note:     validators.SanitizeString(body.Note, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if res.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, referrals.ToListItem(res.Application))
	}
}

// ListReferrals is GetReferralApplications for the caller.
func ListReferrals(svc ReferralService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := ParseReferralListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.UserID = userID
		res, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// ParseReferralListParams reads status, limit and cursor from the query.
func ParseReferralListParams(r *http.Request) (referrals.ListParams, error) {
	var params referrals.ListParams
	limit, err := parseLimit(r)
	if err != nil {
		return params, err
	}
	params.Params = pagination.Params{Limit: limit, Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseReferralStatus(raw)
		if err != nil {
			return params, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
		}
		params.Status = status
	}
	return params, nil
}
