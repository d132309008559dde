// Package orders keeps the engine's record of commerce orders as reported by
// inbound lifecycle events.
package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status enums.OrderStatus) (bool, error)
	DeleteByCustomer(ctx context.Context, customerID string) error
}
