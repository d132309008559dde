package affiliate

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

// CodeIndex enforces case-insensitive uniqueness of affiliate codes.
const CodeIndex = "ux_affiliate_links_code_lower"

// Repository owns affiliate links, clicks, conversions and referred-customer
// anchors.
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

// FindLinkByUser returns nil when the user has no link yet.
func (r *Repository) FindLinkByUser(ctx context.Context, userID string) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&link).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// FindLinkByCode matches case-insensitively and returns nil when unknown.
func (r *Repository) FindLinkByCode(ctx context.Context, code string) (*models.AffiliateLink, error) {
	var link models.AffiliateLink
	err := r.db.WithContext(ctx).Where("code_lower = ?", strings.ToLower(code)).Take(&link).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *Repository) CreateLink(ctx context.Context, link *models.AffiliateLink) error {
	return r.db.WithContext(ctx).Create(link).Error
}

// UpdateCode replaces the user's code. It reports false when the user has no
// link.
func (r *Repository) UpdateCode(ctx context.Context, userID, code string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AffiliateLink{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"code":       code,
			"code_lower": strings.ToLower(code),
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// InsertClick records a click unless the visitor already clicked the same code
// today. It reports whether a row was written.
func (r *Repository) InsertClick(ctx context.Context, click *models.AffiliateClick) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "referrer_code"},
				{Name: "visitor_ip"},
				{Name: "day_key"},
			},
			DoNothing: true,
		}).
		Create(click)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkLatestClickConverted flags the newest unconverted click of (code, ip)
// with the order that converted it.
func (r *Repository) MarkLatestClickConverted(ctx context.Context, codeLower, visitorIP, orderID string, at time.Time) (bool, error) {
	var click models.AffiliateClick
	err := r.db.WithContext(ctx).
		Where("referrer_code = ? AND visitor_ip = ? AND converted = ?", codeLower, visitorIP, false).
		Order("clicked_at DESC").
		Take(&click).Error
	if db.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.AffiliateClick{}).
		Where("id = ? AND converted = ?", click.ID, false).
		Updates(map[string]any{
			"converted":    true,
			"order_id":     orderID,
			"converted_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CountDirectConversions is the referrer's lifetime count of directly
// attributed, unrevoked sales. It drives tier selection.
func (r *Repository) CountDirectConversions(ctx context.Context, referrerID string) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.AffiliateConversion{}).
		Where("referrer_user_id = ? AND kind = ? AND revoked_at IS NULL", referrerID, enums.SettlementAffiliate).
		Count(&n).Error
	return int(n), err
}

func (r *Repository) CreateConversion(ctx context.Context, conv *models.AffiliateConversion) error {
	return r.db.WithContext(ctx).Create(conv).Error
}

// FindConversion returns the commission an order produced, or nil.
func (r *Repository) FindConversion(ctx context.Context, orderID string) (*models.AffiliateConversion, error) {
	var conv models.AffiliateConversion
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&conv).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// RevokeConversion stamps revoked_at once and reports whether this call did.
func (r *Repository) RevokeConversion(ctx context.Context, orderID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.AffiliateConversion{}).
		Where("order_id = ? AND revoked_at IS NULL", orderID).
		Update("revoked_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindReferredCustomer returns the customer's recurring anchor, or nil.
func (r *Repository) FindReferredCustomer(ctx context.Context, customerID string) (*models.ReferredCustomer, error) {
	var rc models.ReferredCustomer
	err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Take(&rc).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

// AnchorCustomer creates the anchor unless the customer already has one. The
// first directly attributed order wins.
func (r *Repository) AnchorCustomer(ctx context.Context, rc *models.ReferredCustomer) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "customer_id"}}, DoNothing: true}).
		Create(rc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) IncrementRecurring(ctx context.Context, customerID string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReferredCustomer{}).
		Where("customer_id = ?", customerID).
		UpdateColumn("recurring_orders", gorm.Expr("recurring_orders + 1")).Error
}

// ReleaseRecurring gives back one recurring slot after a recurring order is
// reversed. The count never drops below zero.
func (r *Repository) ReleaseRecurring(ctx context.Context, customerID string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReferredCustomer{}).
		Where("customer_id = ? AND recurring_orders > 0", customerID).
		UpdateColumn("recurring_orders", gorm.Expr("recurring_orders - 1")).Error
}

// DisableRecurring stops recurring commission for an anchor whose first order
// was reversed.
func (r *Repository) DisableRecurring(ctx context.Context, customerID, firstOrderID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReferredCustomer{}).
		Where("customer_id = ? AND first_order_id = ? AND recurring_disabled = ?", customerID, firstOrderID, false).
		Update("recurring_disabled", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type clickCounts struct {
	Total     int64
	Converted int64
}

func (r *Repository) ClickCounts(ctx context.Context, referrerID string) (clickCounts, error) {
	var out clickCounts
	err := r.db.WithContext(ctx).
		Model(&models.AffiliateClick{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN converted THEN 1 ELSE 0 END), 0) AS converted").
		Where("referrer_user_id = ?", referrerID).
		Scan(&out).Error
	return out, err
}

type conversionTotals struct {
	Direct       int64
	Recurring    int64
	Revoked      int64
	EarnedCents  int64
	RevokedCents int64
}

func (r *Repository) ConversionTotals(ctx context.Context, referrerID string) (conversionTotals, error) {
	var out conversionTotals
	err := r.db.WithContext(ctx).
		Model(&models.AffiliateConversion{}).
		Select(`COALESCE(SUM(CASE WHEN kind = ? AND revoked_at IS NULL THEN 1 ELSE 0 END), 0) AS direct,
			COALESCE(SUM(CASE WHEN kind = ? AND revoked_at IS NULL THEN 1 ELSE 0 END), 0) AS recurring,
			COALESCE(SUM(CASE WHEN revoked_at IS NOT NULL THEN 1 ELSE 0 END), 0) AS revoked,
			COALESCE(SUM(commission_cents), 0) AS earned_cents,
			COALESCE(SUM(CASE WHEN revoked_at IS NOT NULL THEN commission_cents ELSE 0 END), 0) AS revoked_cents`,
			enums.SettlementAffiliate, enums.SettlementAffiliateRecurring).
		Where("referrer_user_id = ?", referrerID).
		Scan(&out).Error
	return out, err
}

// DeleteByUser removes everything the user owns as a referrer, and their own
// anchor as a referred customer. Settlement markers stay behind so erased
// orders are never settled again.
func (r *Repository) DeleteByUser(ctx context.Context, userID string) error {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("referrer_user_id = ?", userID).Delete(&models.AffiliateClick{}).Error; err != nil {
		return err
	}
	if err := conn.Where("referrer_user_id = ?", userID).Delete(&models.AffiliateConversion{}).Error; err != nil {
		return err
	}
	if err := conn.Where("referrer_user_id = ? OR customer_id = ?", userID, userID).Delete(&models.ReferredCustomer{}).Error; err != nil {
		return err
	}
	return conn.Where("user_id = ?", userID).Delete(&models.AffiliateLink{}).Error
}
