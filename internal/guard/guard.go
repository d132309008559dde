// Package guard makes settling a business event safe to call more than once.
// A claim is a single insert-if-absent on (subject_id, marker_key); only the
// caller whose insert lands may go on to touch the ledger.
package guard

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/metrics"
)

// Guard claims settlement markers.
type Guard struct {
	db      *gorm.DB
	metrics *metrics.RewardsMetrics
}

func New(conn *gorm.DB, m *metrics.RewardsMetrics) (*Guard, error) {
	if conn == nil {
		return nil, fmt.Errorf("database required")
	}
	return &Guard{db: conn, metrics: m}, nil
}

// TryClaim commits a marker for (subjectID, kind) on its own and reports
// whether this call created it. A claim that is granted but whose follow-up
// action fails stays claimed; re-processing is worse than a missed credit.
func (g *Guard) TryClaim(ctx context.Context, subjectID string, kind enums.SettlementKind) (bool, error) {
	return g.TryClaimTx(ctx, g.db, subjectID, kind)
}

// TryClaimTx claims inside tx so the marker commits or rolls back with the
// caller's own writes.
func (g *Guard) TryClaimTx(ctx context.Context, tx *gorm.DB, subjectID string, kind enums.SettlementKind) (bool, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "settlement subject required")
	}
	if !kind.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid settlement kind %q", kind))
	}
	if tx == nil {
		tx = g.db
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}, {Name: "marker_key"}},
			DoNothing: true,
		}).
		Create(&models.SettlementMarker{SubjectID: subjectID, MarkerKey: string(kind)})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "claim settlement marker")
	}
	granted := res.RowsAffected == 1
	g.metrics.ObserveClaim(string(kind), granted)
	return granted, nil
}
