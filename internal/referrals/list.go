package referrals

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgpagination "github.com/angelmondragon/packfinderz-rewards/pkg/pagination"
)

type ListParams struct {
	UserID string
	Status enums.ReferralStatus
	pkgpagination.Params
}

type ListResult struct {
	Items  []ListItem `json:"items"`
	Cursor string     `json:"cursor"`
}

type ListItem struct {
	ID              uuid.UUID            `json:"id"`
	UserID          string               `json:"user_id"`
	OrderID         string               `json:"order_id"`
	OrderTotalCents int64                `json:"order_total_cents"`
	CreditCents     int64                `json:"credit_cents"`
	Platform        string               `json:"platform"`
	VideoURL        string               `json:"video_url"`
	Note            string               `json:"note,omitempty"`
	Status          enums.ReferralStatus `json:"status"`
	CreatedAt       time.Time            `json:"created_at"`
	DecidedAt       *time.Time           `json:"decided_at,omitempty"`
}

type listQuery struct {
	userID string
	status enums.ReferralStatus
	limit  int
	cursor *pkgpagination.Cursor
}

func ToListItem(m models.ReferralApplication) ListItem {
	return ListItem{
		ID:              m.ID,
		UserID:          m.UserID,
		OrderID:         m.OrderID,
		OrderTotalCents: m.OrderTotalCents,
		CreditCents:     m.CreditCents,
		Platform:        m.Platform,
		VideoURL:        m.VideoURL,
		Note:            m.Note,
		Status:          m.Status,
		CreatedAt:       m.CreatedAt,
		DecidedAt:       m.DecidedAt,
	}
}
