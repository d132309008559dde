package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// ReferralApplication is a user's claim that an order earned a referral reward.
// At most one pending or approved application may exist per (user, order).
type ReferralApplication struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	UserID          string               `gorm:"column:user_id;type:text;not null;index:idx_referral_applications_user;uniqueIndex:ux_referral_applications_active,where:status <> 'rejected'"`
	OrderID         string               `gorm:"column:order_id;type:text;not null;uniqueIndex:ux_referral_applications_active,where:status <> 'rejected'"`
	OrderTotalCents int64                `gorm:"column:order_total_cents;not null"`
	CreditCents     int64                `gorm:"column:credit_cents;not null"`
	Platform        string               `gorm:"column:platform;type:text;not null"`
	VideoURL        string               `gorm:"column:video_url;type:text;not null"`
	Note            string               `gorm:"column:note;type:text;not null;default:''"`
	Status          enums.ReferralStatus `gorm:"column:status;type:text;not null;index:idx_referral_applications_status"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	DecidedAt       *time.Time           `gorm:"column:decided_at"`
}

func (ReferralApplication) TableName() string { return "referral_applications" }
