package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

// RequireRole admits callers whose token carries one of allowed. It must run
// after Auth; an unauthenticated request has no role and is refused.
func RequireRole(logg *logger.Logger, allowed ...enums.ActorRole) func(http.Handler) http.Handler {
	denied := pkgerrors.New(pkgerrors.CodeForbidden, "role required")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role := RoleFromContext(r.Context()); !slices.Contains(allowed, role) {
				responses.WriteError(r.Context(), logg, w, denied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
