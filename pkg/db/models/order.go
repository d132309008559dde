package models

import (
	"time"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// Order is the engine's copy of a commerce order, recorded from inbound
// lifecycle events. It backs ownership checks on referral submissions.
type Order struct {
	OrderID       string            `gorm:"column:order_id;type:text;primaryKey"`
	CustomerID    string            `gorm:"column:customer_id;type:text;not null;index:idx_orders_customer"`
	TotalCents    int64             `gorm:"column:total_cents;not null"`
	Status        enums.OrderStatus `gorm:"column:status;type:text;not null"`
	AffiliateCode string            `gorm:"column:affiliate_code;type:text;not null;default:''"`
	PlacedAt      time.Time         `gorm:"column:placed_at;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
