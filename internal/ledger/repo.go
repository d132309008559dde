package ledger

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// Repository manages persistence for balances and the transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockBalance(ctx context.Context, userID string) (*models.Balance, error)
	SaveBalance(ctx context.Context, userID string, cents int64) error
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error
	FindBalance(ctx context.Context, userID string) (*models.Balance, error)
	ListEntries(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error)
	ListExpiringUserIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListExpiringEntries(ctx context.Context, userID string, now time.Time) ([]models.LedgerEntry, error)
	MarkExpiryProcessed(ctx context.Context, ids []int64, at time.Time) (int64, error)
	DeleteUser(ctx context.Context, userID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockBalance creates the balance row on first use and reads it back under a
// row lock. sqlite has no row locks; its single writer gives the same effect.
func (r *repository) LockBalance(ctx context.Context, userID string) (*models.Balance, error) {
	seed := &models.Balance{UserID: userID}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(seed).Error; err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx)
	if db.IsPostgres(r.db) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var bal models.Balance
	if err := q.Where("user_id = ?", userID).Take(&bal).Error; err != nil {
		return nil, err
	}
	return &bal, nil
}

func (r *repository) SaveBalance(ctx context.Context, userID string, cents int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Balance{}).
		Where("user_id = ?", userID).
		Update("balance_cents", cents)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindBalance(ctx context.Context, userID string) (*models.Balance, error) {
	var bal models.Balance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&bal).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

func (r *repository) ListEntries(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) expiring(ctx context.Context, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Where("amount_cents > 0").
		Where("expiry_processed_at IS NULL").
		Where("type NOT IN ?", []string{string(enums.LedgerEntryExpired), string(enums.LedgerEntryExpiredProcessed)})
}

func (r *repository) ListExpiringUserIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	q := r.expiring(ctx, now).Distinct("user_id").Order("user_id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) ListExpiringEntries(ctx context.Context, userID string, now time.Time) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.expiring(ctx, now).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) MarkExpiryProcessed(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id IN ? AND expiry_processed_at IS NULL", ids).
		Update("expiry_processed_at", at)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteUser(ctx context.Context, userID string) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("user_id = ?", userID).Delete(&models.LedgerEntry{}).Error; err != nil {
		return err
	}
	return conn.Where("user_id = ?", userID).Delete(&models.Balance{}).Error
}
