package orders

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Record inserts the order on first sight. A redelivered completion never
// overwrites a later cancel or refund.
func (r *repository) Record(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		Create(order).Error
}

// FindByID returns nil when the order was never reported.
func (r *repository) FindByID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&order).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus moves a completed order to status and reports whether a row
// changed. Reversals are terminal.
func (r *repository) UpdateStatus(ctx context.Context, orderID string, status enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("order_id = ? AND status = ?", orderID, enums.OrderStatusCompleted).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteByCustomer(ctx context.Context, customerID string) error {
	return r.db.WithContext(ctx).Where("customer_id = ?", customerID).Delete(&models.Order{}).Error
}
