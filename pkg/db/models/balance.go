package models

import "time"

// Balance is the current redeemable store credit of one user, in minor units.
type Balance struct {
	UserID       string    `gorm:"column:user_id;type:text;primaryKey"`
	BalanceCents int64     `gorm:"column:balance_cents;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Balance) TableName() string { return "balances" }
