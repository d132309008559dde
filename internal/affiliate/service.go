// Package affiliate manages affiliate links and clicks and settles the
// commission an attributed order earns its referrer.
package affiliate

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-rewards/internal/commission"
	"github.com/angelmondragon/packfinderz-rewards/internal/events"
	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

const generateAttempts = 5

type userLocker interface {
	WithUserLock(ctx context.Context, userID string, fn func(ut *ledger.UserTx) error) error
}

type settlementClaimer interface {
	TryClaim(ctx context.Context, subjectID string, kind enums.SettlementKind) (bool, error)
}

type ServiceParams struct {
	Repo       *Repository
	Ledger     userLocker
	Guard      settlementClaimer
	Events     events.Publisher
	Program    program.Provider
	Logger     *logger.Logger
	CodeLength int
	Clock      func() time.Time
}

type Service struct {
	repo       *Repository
	ledger     userLocker
	guard      settlementClaimer
	events     events.Publisher
	program    program.Provider
	logg       *logger.Logger
	codeLength int
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("affiliate repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Guard == nil:
		return nil, fmt.Errorf("settlement guard required")
	case params.Events == nil:
		return nil, fmt.Errorf("event publisher required")
	case params.Program == nil:
		return nil, fmt.Errorf("program provider required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	length := params.CodeLength
	if length <= 0 {
		length = DefaultCodeLength
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:       params.Repo,
		ledger:     params.Ledger,
		guard:      params.Guard,
		events:     params.Events,
		program:    params.Program,
		logg:       params.Logger,
		codeLength: length,
		now:        func() time.Time { return clock().UTC() },
	}, nil
}

// GetOrCreateLink returns the user's link, generating a code on first use.
func (s *Service) GetOrCreateLink(ctx context.Context, userID string) (*models.AffiliateLink, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	link, err := s.repo.FindLinkByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup affiliate link")
	}
	if link != nil {
		return link, nil
	}

	for attempt := 0; attempt < generateAttempts; attempt++ {
		code, err := GenerateCode(s.codeLength)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate affiliate code")
		}
		now := s.now()
		link = &models.AffiliateLink{
			UserID:    userID,
			Code:      code,
			CodeLower: code,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.repo.CreateLink(ctx, link)
		if err == nil {
			return link, nil
		}
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create affiliate link")
		}
		// either the code collided or a concurrent call created the link
		existing, findErr := s.repo.FindLinkByUser(ctx, userID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "lookup affiliate link")
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique affiliate code")
}

// SetCode replaces the user's code with a chosen one. Codes are unique
// ignoring case; the unique index is the arbiter between concurrent claims.
func (s *Service) SetCode(ctx context.Context, userID, raw string) (*models.AffiliateLink, error) {
	code, err := NormalizeCode(raw)
	if err != nil {
		return nil, err
	}
	link, err := s.GetOrCreateLink(ctx, userID)
	if err != nil {
		return nil, err
	}
	if link.Code == code {
		return link, nil
	}

	now := s.now()
	if _, err := s.repo.UpdateCode(ctx, link.UserID, code, now); err != nil {
		if db.IsUniqueViolation(err, CodeIndex) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "affiliate code is already taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update affiliate code")
	}
	link.Code = code
	link.CodeLower = strings.ToLower(code)
	link.UpdatedAt = now

	logCtx := s.logg.WithFields(ctx, map[string]any{"user_id": link.UserID, "code": code})
	s.logg.Info(logCtx, "affiliate code changed")
	return link, nil
}

// ClickInput is one visit through an affiliate link. VisitorUserID is set
// when the visitor is signed in.
type ClickInput struct {
	Code          string
	VisitorIP     string
	VisitorUserID string
}

type ClickResult struct {
	Recorded bool
	Reason   string
}

const (
	ClickSkipUnknownCode = "unknown_code"
	ClickSkipSelf        = "self_click"
	ClickSkipDuplicate   = "duplicate"
)

// RecordClick stores at most one click per (code, visitor ip, UTC day).
// Unknown codes and owners clicking their own link are skipped.
func (s *Service) RecordClick(ctx context.Context, in ClickInput) (*ClickResult, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	}
	ip, err := netip.ParseAddr(strings.TrimSpace(in.VisitorIP))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "visitor ip is invalid")
	}

	link, err := s.repo.FindLinkByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup affiliate code")
	}
	if link == nil {
		return &ClickResult{Reason: ClickSkipUnknownCode}, nil
	}
	if visitor := strings.TrimSpace(in.VisitorUserID); visitor != "" && visitor == link.UserID {
		return &ClickResult{Reason: ClickSkipSelf}, nil
	}

	now := s.now()
	inserted, err := s.repo.InsertClick(ctx, &models.AffiliateClick{
		ID:             uuid.New(),
		ReferrerUserID: link.UserID,
		ReferrerCode:   link.CodeLower,
		VisitorIP:      ip.Unmap().String(),
		DayKey:         now.Format(time.DateOnly),
		ClickedAt:      now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record affiliate click")
	}
	if !inserted {
		return &ClickResult{Reason: ClickSkipDuplicate}, nil
	}
	return &ClickResult{Recorded: true}, nil
}

// Stats is the read projection behind GetAffiliateStats.
type Stats struct {
	UserID               string  `json:"user_id"`
	Code                 string  `json:"code"`
	Clicks               int64   `json:"clicks"`
	ConvertedClicks      int64   `json:"converted_clicks"`
	Conversions          int64   `json:"conversions"`
	RecurringConversions int64   `json:"recurring_conversions"`
	RevokedConversions   int64   `json:"revoked_conversions"`
	EarnedCents          int64   `json:"earned_cents"`
	RevokedCents         int64   `json:"revoked_cents"`
	NetCents             int64   `json:"net_cents"`
	CurrentRate          string  `json:"current_rate"`
	NextTier             *Tier   `json:"next_tier,omitempty"`
	ConversionRate       float64 `json:"conversion_rate"`
}

type Tier struct {
	MinSales int    `json:"min_sales"`
	Rate     string `json:"rate"`
}

// Stats summarises a referrer's clicks, conversions and earnings. A user
// without a link reports zeros.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	link, err := s.repo.FindLinkByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup affiliate link")
	}
	clicks, err := s.repo.ClickCounts(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count affiliate clicks")
	}
	totals, err := s.repo.ConversionTotals(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum affiliate conversions")
	}

	pol := s.program.Snapshot().Affiliate
	out := &Stats{
		UserID:               userID,
		Clicks:               clicks.Total,
		ConvertedClicks:      clicks.Converted,
		Conversions:          totals.Direct,
		RecurringConversions: totals.Recurring,
		RevokedConversions:   totals.Revoked,
		EarnedCents:          totals.EarnedCents,
		RevokedCents:         totals.RevokedCents,
		NetCents:             totals.EarnedCents - totals.RevokedCents,
		CurrentRate:          commission.TierRate(pol.Tiers, int(totals.Direct), pol.BaseRate).String(),
	}
	if link != nil {
		out.Code = link.Code
	}
	if next := nextTier(pol.Tiers, int(totals.Direct)); next != nil {
		out.NextTier = &Tier{MinSales: next.MinSales, Rate: next.Rate.String()}
	}
	if clicks.Total > 0 {
		ratio := decimal.NewFromInt(clicks.Converted).Div(decimal.NewFromInt(clicks.Total)).Mul(decimal.NewFromInt(100))
		out.ConversionRate = ratio.Round(2).InexactFloat64()
	}
	return out, nil
}

func nextTier(tiers []program.Tier, conversions int) *program.Tier {
	for i := range tiers {
		if tiers[i].MinSales > conversions {
			return &tiers[i]
		}
	}
	return nil
}

// DeleteUser erases the user's affiliate footprint inside tx.
func (s *Service) DeleteUser(ctx context.Context, ut *ledger.UserTx) error {
	if err := s.repo.WithTx(ut.DB()).DeleteByUser(ctx, ut.UserID()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "erase affiliate data")
	}
	return nil
}
