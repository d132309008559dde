package account

import (
	"net/http"

	"github.com/angelmondragon/packfinderz-rewards/api/controllers/views"
	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

func Balance(svc Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := currentUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cents, err := svc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromBalance(userID, cents))
	}
}

// LedgerLog returns the newest transaction log entries, newest first.
func LedgerLog(svc Ledger, logg *logger.Logger) http.HandlerFunc {
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
		entries, err := svc.GetLog(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": views.FromLedgerEntries(entries)})
	}
}
