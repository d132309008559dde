package referrals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// ActiveIndex is the partial unique index allowing one non-rejected
// application per (user, order).
const ActiveIndex = "ux_referral_applications_active"

// Repository is the only writer of referral application rows.
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

func (r *Repository) Create(ctx context.Context, app *models.ReferralApplication) error {
	return r.db.WithContext(ctx).Create(app).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReferralApplication, error) {
	var app models.ReferralApplication
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

// FindActive returns the pending or approved application for (user, order),
// or gorm.ErrRecordNotFound.
func (r *Repository) FindActive(ctx context.Context, userID, orderID string) (*models.ReferralApplication, error) {
	var app models.ReferralApplication
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND order_id = ? AND status <> ?", userID, orderID, enums.ReferralStatusRejected).
		Take(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// Transition moves id from one status to another in a single conditional
// update and reports whether this call made the move.
func (r *Repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.ReferralStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReferralApplication{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"decided_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.ReferralApplication, error) {
	query := r.db.WithContext(ctx).Model(&models.ReferralApplication{})
	if opts.userID != "" {
		query = query.Where("user_id = ?", opts.userID)
	}
	if opts.status != "" {
		query = query.Where("status = ?", opts.status)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	var rows []models.ReferralApplication
	if err := query.Order("created_at DESC").Order("id DESC").Limit(opts.limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) DeleteByUser(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.ReferralApplication{}).Error
}
