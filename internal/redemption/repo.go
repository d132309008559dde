package redemption

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// Repository persists reward counters and their history. Writes must run
// inside the owning user's ledger lock.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Values returns every counter the user holds; missing kinds are zero.
func (r *Repository) Values(ctx context.Context, userID string) (map[enums.CounterKind]int64, error) {
	var rows []models.RewardCounter
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := map[enums.CounterKind]int64{enums.CounterPoints: 0, enums.CounterSpins: 0}
	for _, row := range rows {
		out[row.Kind] = row.Value
	}
	return out, nil
}

// Increment adds delta (> 0) and returns the new value.
func (r *Repository) Increment(ctx context.Context, userID string, kind enums.CounterKind, delta int64, at time.Time) (int64, error) {
	conn := r.db.WithContext(ctx)
	if err := conn.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(&models.RewardCounter{UserID: userID, Kind: kind, UpdatedAt: at}).Error; err != nil {
		return 0, err
	}
	if err := conn.Model(&models.RewardCounter{}).
		Where("user_id = ? AND kind = ?", userID, kind).
		Updates(map[string]any{"value": gorm.Expr("value + ?", delta), "updated_at": at}).Error; err != nil {
		return 0, err
	}
	return r.value(ctx, userID, kind)
}

// Decrement subtracts cost only when the counter holds at least cost. The
// check and the write are one conditional update.
func (r *Repository) Decrement(ctx context.Context, userID string, kind enums.CounterKind, cost int64, at time.Time) (bool, int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RewardCounter{}).
		Where("user_id = ? AND kind = ? AND value >= ?", userID, kind, cost).
		Updates(map[string]any{"value": gorm.Expr("value - ?", cost), "updated_at": at})
	if res.Error != nil {
		return false, 0, res.Error
	}
	value, err := r.value(ctx, userID, kind)
	if err != nil {
		return false, 0, err
	}
	return res.RowsAffected == 1, value, nil
}

func (r *Repository) value(ctx context.Context, userID string, kind enums.CounterKind) (int64, error) {
	var row models.RewardCounter
	err := r.db.WithContext(ctx).Where("user_id = ? AND kind = ?", userID, kind).Take(&row).Error
	if db.IsNotFound(err) {
		return 0, nil
	}
	return row.Value, err
}

func (r *Repository) AppendEntry(ctx context.Context, entry *models.RewardCounterEntry) error {
	if entry.ReferenceID != nil && strings.TrimSpace(*entry.ReferenceID) == "" {
		entry.ReferenceID = nil
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListEntries returns the newest limit entries for the user.
func (r *Repository) ListEntries(ctx context.Context, userID string, limit int) ([]models.RewardCounterEntry, error) {
	var entries []models.RewardCounterEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *Repository) DeleteByUser(ctx context.Context, userID string) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("user_id = ?", userID).Delete(&models.RewardCounterEntry{}).Error; err != nil {
		return err
	}
	return conn.Where("user_id = ?", userID).Delete(&models.RewardCounter{}).Error
}
