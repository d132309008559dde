package account

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/packfinderz-rewards/api/controllers/views"
	"github.com/angelmondragon/packfinderz-rewards/api/middleware"
	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/api/validators"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/internal/redemption"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type RewardsService interface {
	Counters(ctx context.Context, userID string) (*redemption.Counters, error)
	History(ctx context.Context, userID string, limit int) ([]models.RewardCounterEntry, error)
	Spin(ctx context.Context, in redemption.SpinInput) (*redemption.SpinResult, error)
	Purchase(ctx context.Context, in redemption.PurchaseInput) (*redemption.PurchaseResult, error)
}

type purchaseRequest struct {
	ItemID string `json:"item_id" validate:"required,max=64"`
}

// Rewards returns counters, recent counter history, the prize table and the
// shop catalogue.
func Rewards(svc RewardsService, prog program.Provider, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := parseLimit(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		counters, err := svc.Counters(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.History(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap := prog.Snapshot()
		responses.WriteSuccess(w, map[string]any{
			"counters": counters,
			"history":  views.FromCounterEntries(history),
			"prizes":   snap.Prizes,
			"shop":     snap.Shop,
		})
	}
}

// Spin spends one spin. The Idempotency-Key header doubles as the
// redemption's request id so a replay never draws twice.
func Spin(svc RewardsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := requestKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Spin(r.Context(), redemption.SpinInput{UserID: userID, IdempotencyKey: key})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func Purchase(svc RewardsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := requestKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body purchaseRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		res, err := svc.Purchase(r.Context(), redemption.PurchaseInput{UserID: userID, ItemID: body.ItemID, IdempotencyKey: key})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func requestKey(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader))
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required")
	}
	return key, nil
}
