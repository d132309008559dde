package admin

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-rewards/api/responses"
	"github.com/angelmondragon/packfinderz-rewards/api/validators"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

// DeadLetters is the operator view of outbound events the relay gave up on.
type DeadLetters interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) (bool, error)
}

type deadLetterView struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	AggregateType string `json:"aggregate_type"`
	AggregateID   string `json:"aggregate_id"`
	Reason        string `json:"reason"`
	Error         string `json:"error,omitempty"`
	Attempts      int    `json:"attempts"`
	FailedAt      string `json:"failed_at"`
}

func ListDeadLetters(svc DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		out := make([]deadLetterView, 0, len(rows))
		for _, row := range rows {
			out = append(out, deadLetterView{
				EventID:       row.EventID.String(),
				EventType:     string(row.EventType),
				AggregateType: string(row.AggregateType),
				AggregateID:   row.AggregateID,
				Reason:        string(row.ErrorReason),
				Attempts:      row.AttemptCount,
				Error:         row.Message(),
				FailedAt:      row.FailedAt.UTC().Format(time.RFC3339),
			})
		}
		responses.WriteSuccess(w, map[string]any{"dead_letters": out})
	}
}

// RequeueDeadLetter puts one event back in front of the relay.
func RequeueDeadLetter(svc DeadLetters, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "eventId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid event id"))
			return
		}
		ok, err := svc.Requeue(r.Context(), id)
		switch {
		case err != nil:
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue dead letter"))
		case !ok:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found"))
		default:
			if logg != nil {
				logg.Info(logg.WithField(r.Context(), "event_id", id.String()), "dead letter requeued")
			}
			responses.WriteSuccess(w, map[string]any{"requeued": true})
		}
	}
}
