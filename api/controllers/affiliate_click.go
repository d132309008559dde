package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/packfinderz-rewards/api/middleware"
	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/api/validators"
	"github.com/angelmondragon/packfinderz-rewards/internal/affiliate"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type ClickRecorder interface {
	RecordClick(ctx context.Context, in affiliate.ClickInput) (*affiliate.ClickResult, error)
}

type clickRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

// AffiliateClick records a storefront visit through an affiliate code. Skipped
// clicks (unknown code, self click, repeat visit today) still answer 202 so the
// storefront never learns which codes exist.
func AffiliateClick(svc ClickRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body clickRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.RecordClick(r.Context(), affiliate.ClickInput{
			Code:          body.Code,
			VisitorIP:     middleware.ClientIP(r),
			VisitorUserID: middleware.UserIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil && !res.Recorded {
			logg.Debug(logg.WithField(r.Context(), "reason", res.Reason), "affiliate click skipped")
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{"accepted": true})
	}
}
