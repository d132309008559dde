package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-rewards/api/controllers/views"
	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/api/validators"
	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/redemption"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/pagination"
)

type LedgerService interface {
	Adjust(ctx context.Context, input ledger.AdjustInput) (*ledger.Result, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetLog(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error)
}

type CounterGranter interface {
	Grant(ctx context.Context, in redemption.GrantInput) (int64, error)
}

type Eraser interface {
	Erase(ctx context.Context, userID string) error
}

// Admin adjustments are limited to the entry types an operator may book by
// hand; program-driven types only come from their own flows.
var adjustableTypes = map[enums.LedgerEntryType]struct{}{
	enums.LedgerEntryManual: {},
	enums.LedgerEntryRefund: {},
	enums.LedgerEntryCredit: {},
	enums.LedgerEntryDebit:  {},
}

type adjustRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"required,ne=0"`
	Type        string `json:"type" validate:"omitempty,oneof=manual refund credit debit"`
	Reason      string `json:"reason" validate:"required,max=500"`
	ReferenceID string `json:"reference_id" validate:"max=128"`
	ExpiryDays  *int   `json:"expiry_days" validate:"omitempty,gte=0,lte=3650"`
}

type grantRequest struct {
	Kind        string `json:"kind" validate:"required,oneof=points spins"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Reason      string `json:"reason" validate:"required,max=500"`
	ReferenceID string `json:"reference_id" validate:"max=128"`
}

func targetUser(r *http.Request) (string, error) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return userID, nil
}

// AdjustUser books a manual credit or debit. Debits below zero are clamped
// and reported as such.
func AdjustUser(svc LedgerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := targetUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body adjustRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entryType := enums.LedgerEntryManual
		if body.Type != "" {
			entryType = enums.LedgerEntryType(body.Type)
		}
		if _, ok := adjustableTypes[entryType]; !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "type not adjustable"))
			return
		}
		if entryType == enums.LedgerEntryRefund && strings.TrimSpace(body.ReferenceID) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "refund credits require reference_id"))
			return
		}
		res, err := svc.Adjust(r.Context(), ledger.AdjustInput{
			UserID:      userID,
			AmountCents: body.AmountCents,
			Type:        entryType,
			Reason:      validators.SanitizeString(body.Reason, 500),
			ReferenceID: strings.TrimSpace(body.ReferenceID),
			ExpiryDays:  body.ExpiryDays,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromResult(res))
	}
}

func UserLedger(svc LedgerService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := targetUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balance, err := svc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.GetLog(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, struct {
			views.Balance
			Items []views.LedgerEntry `json:"items"`
		}{views.FromBalance(userID, balance), views.FromLedgerEntries(entries)})
	}
}

// GrantCounter awards points or spins.
func GrantCounter(svc CounterGranter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := targetUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body grantRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		value, err := svc.Grant(r.Context(), redemption.GrantInput{
			UserID:      userID,
			Kind:        enums.CounterKind(body.Kind),
			Amount:      body.Amount,
			Reason:      validators.SanitizeString(body.Reason, 500),
			ReferenceID: strings.TrimSpace(body.ReferenceID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"user_id": userID, "kind": body.Kind, "value": value})
	}
}

// EraseUser removes every piece of rewards state held for the user.
func EraseUser(svc Eraser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := targetUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Erase(r.Context(), userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"user_id": userID, "erased": true})
	}
}
