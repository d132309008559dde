package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// AffiliateLink maps one user to their affiliate code.
type AffiliateLink struct {
	UserID    string    `gorm:"column:user_id;type:text;primaryKey"`
	Code      string    `gorm:"column:code;type:text;not null"`
	CodeLower string    `gorm:"column:code_lower;type:text;not null;uniqueIndex:ux_affiliate_links_code_lower"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (AffiliateLink) TableName() string { return "affiliate_links" }

// AffiliateClick is a recorded visit through an affiliate code. DayKey is the
// UTC calendar day and backs the one-click-per-visitor-per-day rule.
type AffiliateClick struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ReferrerUserID string     `gorm:"column:referrer_user_id;type:text;not null;index:idx_affiliate_clicks_referrer"`
	ReferrerCode   string     `gorm:"column:referrer_code;type:text;not null;uniqueIndex:ux_affiliate_clicks_daily"`
	VisitorIP      string     `gorm:"column:visitor_ip;type:text;not null;uniqueIndex:ux_affiliate_clicks_daily"`
	DayKey         string     `gorm:"column:day_key;type:text;not null;uniqueIndex:ux_affiliate_clicks_daily"`
	ClickedAt      time.Time  `gorm:"column:clicked_at;not null"`
	Converted      bool       `gorm:"column:converted;not null;default:false"`
	OrderID        *string    `gorm:"column:order_id;type:text"`
	ConvertedAt    *time.Time `gorm:"column:converted_at"`
}

func (AffiliateClick) TableName() string { return "affiliate_clicks" }

// AffiliateConversion records the commission an order produced for a referrer.
// One row per order: direct attribution and recurring commission are exclusive.
type AffiliateConversion struct {
	ID              int64                `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID         string               `gorm:"column:order_id;type:text;not null;uniqueIndex:ux_affiliate_conversions_order"`
	Kind            enums.SettlementKind `gorm:"column:kind;type:text;not null"`
	ReferrerUserID  string               `gorm:"column:referrer_user_id;type:text;not null;index:idx_affiliate_conversions_referrer"`
	CustomerID      string               `gorm:"column:customer_id;type:text;not null"`
	OrderTotalCents int64                `gorm:"column:order_total_cents;not null"`
	Rate            decimal.Decimal      `gorm:"column:rate;type:numeric(9,4);not null"`
	CommissionCents int64                `gorm:"column:commission_cents;not null"`
	CreatedAt       time.Time            `gorm:"column:created_at;not null"`
	RevokedAt       *time.Time           `gorm:"column:revoked_at"`
}

func (AffiliateConversion) TableName() string { return "affiliate_conversions" }

// ReferredCustomer anchors the recurring commission window of a customer to
// their first directly attributed order.
type ReferredCustomer struct {
	CustomerID        string    `gorm:"column:customer_id;type:text;primaryKey"`
	ReferrerUserID    string    `gorm:"column:referrer_user_id;type:text;not null;index:idx_referred_customers_referrer"`
	FirstOrderID      string    `gorm:"column:first_order_id;type:text;not null"`
	FirstOrderAt      time.Time `gorm:"column:first_order_at;not null"`
	RecurringOrders   int       `gorm:"column:recurring_orders;not null;default:0"`
	RecurringDisabled bool      `gorm:"column:recurring_disabled;not null;default:false"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ReferredCustomer) TableName() string { return "referred_customers" }
