// Package account serves the signed-in user's own rewards surface: balance,
// transaction log, referral applications, affiliate link and redemptions.
package account

import (
	"context"
	"net/http"

	"github.com/angelmondragon/packfinderz-rewards/api/middleware"
	"github.com/angelmondragon/packfinderz-rewards/api/validators"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/pagination"
)

// Ledger is the read side of the ledger service.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetLog(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error)
}

func currentUser(r *http.Request) (string, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}

func parseLimit(r *http.Request) (int, error) {
	return validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
}
