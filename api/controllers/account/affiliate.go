package account

import (
	"context"
	"net/http"

	"github.com/angelmondragon/packfinderz-rewards/api/controllers/views"
	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/api/validators"
	"github.com/angelmondragon/packfinderz-rewards/internal/affiliate"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type AffiliateService interface {
	GetOrCreateLink(ctx context.Context, userID string) (*models.AffiliateLink, error)
	SetCode(ctx context.Context, userID, raw string) (*models.AffiliateLink, error)
	Stats(ctx context.Context, userID string) (*affiliate.Stats, error)
}

type setCodeRequest struct {
	Code string `json:"code" validate:"required,min=3,max=32"`
}

// Affiliate returns the caller's link, creating one on first use, and its
// GetAffiliateStats projection.
func Affiliate(svc AffiliateService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		link, err := svc.GetOrCreateLink(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stats, err := svc.Stats(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"link":  views.FromAffiliateLink(link),
			"stats": stats,
		})
	}
}

func SetAffiliateCode(svc AffiliateService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body setCodeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		link, err := svc.SetCode(r.Context(), userID, body.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromAffiliateLink(link))
	}
}
