package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/internal/expiry"
	"github.com/angelmondragon/packfinderz-rewards/internal/reporting"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type StatsReader interface {
	Stats(ctx context.Context) (*reporting.Stats, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (expiry.Result, error)
}

type ProgramReloader interface {
	Reload() error
}

func Stats(svc StatsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// RunExpirySweep triggers the sweep out of band. Users that fail are left
// for the next run and counted in the response.
func RunExpirySweep(svc Sweeper, clock func() time.Time, logg *logger.Logger) http.HandlerFunc {
	if clock == nil {
		clock = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.Sweep(r.Context(), clock())
		if err != nil && logg != nil {
			logCtx := logg.WithField(r.Context(), "failed_users", res.Failed)
			logg.Error(logCtx, "manual expiry sweep had failures", err)
		}
		if err != nil && res.Users == 0 {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

// ReloadProgram re-reads the program file. An invalid file keeps the current
// program in force.
func ReloadProgram(svc ProgramReloader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Reload(); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "program reload rejected"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"reloaded": true})
	}
}
