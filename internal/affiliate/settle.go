package affiliate

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-rewards/internal/commission"
	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox/payloads"
)

// errSettled aborts a locked unit whose order already produced a conversion.
var errSettled = errors.New("order already settled")

// CompletedOrder is the part of OrderCompleted the affiliate program reads.
type CompletedOrder struct {
	OrderID       string
	CustomerID    string
	TotalCents    int64
	AffiliateCode string
	VisitorIP     string
	PlacedAt      time.Time
}

// Settlement describes what an order earned. A nil Settlement means the order
// was not attributed or was already settled.
type Settlement struct {
	ReferrerID string
	Kind       enums.SettlementKind
	Quote      commission.Quote
	Credit     *ledger.Result
	TierRaised bool
}

// SettleCompleted credits the referrer of a completed order at most once.
// Direct attribution through the order's code wins over the recurring window
// of an anchored customer. The settlement marker is claimed before the ledger
// is touched; a failure after the claim leaves the order for manual review
// instead of risking a second credit.
func (s *Service) SettleCompleted(ctx context.Context, order CompletedOrder) (*Settlement, error) {
	order.OrderID = strings.TrimSpace(order.OrderID)
	order.CustomerID = strings.TrimSpace(order.CustomerID)
	if order.OrderID == "" || order.CustomerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and customer id are required")
	}
	if order.TotalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must not be negative")
	}
	if order.PlacedAt.IsZero() {
		order.PlacedAt = s.now()
	}
	order.PlacedAt = order.PlacedAt.UTC()

	link, err := s.attributedLink(ctx, order)
	if err != nil {
		return nil, err
	}
	if link != nil {
		return s.settleDirect(ctx, order, link)
	}

	anchor, err := s.repo.FindReferredCustomer(ctx, order.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup referred customer")
	}
	if anchor == nil || anchor.ReferrerUserID == order.CustomerID || anchor.FirstOrderID == order.OrderID {
		return nil, nil
	}
	pol := s.program.Snapshot().Affiliate.Recurring
	if anchor.RecurringDisabled || !commission.RecurringEligible(pol, anchor.FirstOrderAt, order.PlacedAt, anchor.RecurringOrders) {
		return nil, nil
	}
	return s.settleRecurring(ctx, order, anchor.ReferrerUserID)
}

func (s *Service) attributedLink(ctx context.Context, order CompletedOrder) (*models.AffiliateLink, error) {
	code := strings.TrimSpace(order.AffiliateCode)
	if code == "" {
		return nil, nil
	}
	link, err := s.repo.FindLinkByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup affiliate code")
	}
	if link == nil || link.UserID == order.CustomerID {
		return nil, nil
	}
	return link, nil
}

func (s *Service) claim(ctx context.Context, orderID string, kind enums.SettlementKind) (bool, error) {
	granted, err := s.guard.TryClaim(ctx, orderID, kind)
	if err != nil {
		return false, err
	}
	if !granted {
		logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID, "kind": kind})
		s.logg.Debug(logCtx, "settlement already claimed")
	}
	return granted, nil
}

func (s *Service) claimedButFailed(ctx context.Context, orderID string, kind enums.SettlementKind, err error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": orderID, "kind": kind})
	s.logg.Error(logCtx, "settlement marker claimed but ledger unit failed; needs manual review", err)
}

func (s *Service) settleDirect(ctx context.Context, order CompletedOrder, link *models.AffiliateLink) (*Settlement, error) {
	granted, err := s.claim(ctx, order.OrderID, enums.SettlementAffiliate)
	if err != nil || !granted {
		return nil, err
	}

	snap := s.program.Snapshot()
	calc := commission.New(snap)
	out := &Settlement{ReferrerID: link.UserID, Kind: enums.SettlementAffiliate}

	err = s.ledger.WithUserLock(ctx, link.UserID, func(ut *ledger.UserTx) error {
		repo := s.repo.WithTx(ut.DB())
		now := ut.Now()
		if existing, err := repo.FindConversion(ctx, order.OrderID); err != nil || existing != nil {
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup conversion")
			}
			return errSettled
		}

		prior, err := repo.CountDirectConversions(ctx, link.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count conversions")
		}
		out.Quote = calc.Affiliate(order.TotalCents, prior, order.PlacedAt)

		if out.Quote.Cents > 0 {
			res, err := ut.Adjust(ctx, ledger.AdjustInput{
				AmountCents: out.Quote.Cents,
				Type:        enums.LedgerEntryAffiliate,
				Reason:      fmt.Sprintf("affiliate commission for order %s at %s%%", order.OrderID, out.Quote.Rate),
				ReferenceID: "affiliate:" + order.OrderID,
			})
			if err != nil {
				return err
			}
			out.Credit = res
		}

		if err := repo.CreateConversion(ctx, &models.AffiliateConversion{
			OrderID:         order.OrderID,
			Kind:            enums.SettlementAffiliate,
			ReferrerUserID:  link.UserID,
			CustomerID:      order.CustomerID,
			OrderTotalCents: order.TotalCents,
			Rate:            out.Quote.Rate,
			CommissionCents: out.Quote.Cents,
			CreatedAt:       now,
		}); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errSettled
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record conversion")
		}

		if ip, err := netip.ParseAddr(strings.TrimSpace(order.VisitorIP)); err == nil {
			if _, err := repo.MarkLatestClickConverted(ctx, link.CodeLower, ip.Unmap().String(), order.OrderID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark click converted")
			}
		}

		if _, err := repo.AnchorCustomer(ctx, &models.ReferredCustomer{
			CustomerID:     order.CustomerID,
			ReferrerUserID: link.UserID,
			FirstOrderID:   order.OrderID,
			FirstOrderAt:   order.PlacedAt,
			CreatedAt:      now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "anchor referred customer")
		}

		tiers := snap.Affiliate.Tiers
		if commission.TierOf(tiers, prior+1) > commission.TierOf(tiers, prior) {
			out.TierRaised = true
			if err := s.events.TierUpgraded(ctx, ut.DB(), payloads.TierUpgraded{
				UserID:      link.UserID,
				FromRate:    commission.TierRate(tiers, prior, snap.Affiliate.BaseRate).String(),
				ToRate:      commission.TierRate(tiers, prior+1, snap.Affiliate.BaseRate).String(),
				Conversions: prior + 1,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue tier upgraded event")
			}
		}
		return s.publishSettled(ctx, ut, link.UserID, order.OrderID, enums.SettlementAffiliate, out.Quote.Rate.String(), out.Quote.Cents)
	})
	if errors.Is(err, errSettled) {
		return nil, nil
	}
	if err != nil {
		s.claimedButFailed(ctx, order.OrderID, enums.SettlementAffiliate, err)
		return nil, err
	}
	s.logSettled(ctx, out, order.OrderID)
	return out, nil
}

func (s *Service) settleRecurring(ctx context.Context, order CompletedOrder, referrerID string) (*Settlement, error) {
	granted, err := s.claim(ctx, order.OrderID, enums.SettlementAffiliateRecurring)
	if err != nil || !granted {
		return nil, err
	}

	snap := s.program.Snapshot()
	out := &Settlement{ReferrerID: referrerID, Kind: enums.SettlementAffiliateRecurring}
	err = s.ledger.WithUserLock(ctx, referrerID, func(ut *ledger.UserTx) error {
		repo := s.repo.WithTx(ut.DB())
		// re-read under the referrer's lock; the cap counts orders paid so far
		anchor, err := repo.FindReferredCustomer(ctx, order.CustomerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup referred customer")
		}
		if anchor == nil || anchor.ReferrerUserID != referrerID || anchor.RecurringDisabled ||
			!commission.RecurringEligible(snap.Affiliate.Recurring, anchor.FirstOrderAt, order.PlacedAt, anchor.RecurringOrders) {
			return errSettled
		}
		if existing, err := repo.FindConversion(ctx, order.OrderID); err != nil || existing != nil {
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup conversion")
			}
			return errSettled
		}

		out.Quote = commission.New(snap).Recurring(order.TotalCents, order.PlacedAt)
		if out.Quote.Cents > 0 {
			res, err := ut.Adjust(ctx, ledger.AdjustInput{
				AmountCents: out.Quote.Cents,
				Type:        enums.LedgerEntryAffiliateRecurring,
				Reason:      fmt.Sprintf("recurring commission for order %s at %s%%", order.OrderID, out.Quote.Rate),
				ReferenceID: "affiliate_recurring:" + order.OrderID,
			})
			if err != nil {
				return err
			}
			out.Credit = res
		}
		if err := repo.CreateConversion(ctx, &models.AffiliateConversion{
			OrderID:         order.OrderID,
			Kind:            enums.SettlementAffiliateRecurring,
			ReferrerUserID:  referrerID,
			CustomerID:      order.CustomerID,
			OrderTotalCents: order.TotalCents,
			Rate:            out.Quote.Rate,
			CommissionCents: out.Quote.Cents,
			CreatedAt:       ut.Now(),
		}); err != nil {
			if db.IsUniqueViolation(err, "") {
				return errSettled
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record conversion")
		}
		if err := repo.IncrementRecurring(ctx, order.CustomerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count recurring order")
		}
		return s.publishSettled(ctx, ut, referrerID, order.OrderID, enums.SettlementAffiliateRecurring, out.Quote.Rate.String(), out.Quote.Cents)
	})
	if errors.Is(err, errSettled) {
		return nil, nil
	}
	if err != nil {
		s.claimedButFailed(ctx, order.OrderID, enums.SettlementAffiliateRecurring, err)
		return nil, err
	}
	s.logSettled(ctx, out, order.OrderID)
	return out, nil
}

// Revocation is the compensating debit for a reversed order.
type Revocation struct {
	ReferrerID string
	Conversion models.AffiliateConversion
	Debit      *ledger.Result
	// AnchorDisabled is set when the reversed order anchored a recurring
	// window, which is now closed.
	AnchorDisabled bool
}

// Revoke reverses the commission of a cancelled or refunded order exactly
// once. Orders that never earned a commission are a no-op.
func (s *Service) Revoke(ctx context.Context, orderID string) (*Revocation, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	conv, err := s.repo.FindConversion(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup conversion")
	}
	if conv == nil || conv.RevokedAt != nil {
		return nil, nil
	}
	granted, err := s.claim(ctx, orderID, enums.SettlementAffiliateRevoke)
	if err != nil || !granted {
		return nil, err
	}

	out := &Revocation{ReferrerID: conv.ReferrerUserID, Conversion: *conv}
	err = s.ledger.WithUserLock(ctx, conv.ReferrerUserID, func(ut *ledger.UserTx) error {
		repo := s.repo.WithTx(ut.DB())
		now := ut.Now()
		moved, err := repo.RevokeConversion(ctx, orderID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke conversion")
		}
		if !moved {
			return errSettled
		}
		out.Conversion.RevokedAt = &now

		if conv.CommissionCents > 0 {
			res, err := ut.Adjust(ctx, ledger.AdjustInput{
				AmountCents: -conv.CommissionCents,
				Type:        enums.LedgerEntryAffiliateRevoke,
				Reason:      fmt.Sprintf("commission revoked for order %s", orderID),
				ReferenceID: "affiliate_revoke:" + orderID,
			})
			if err != nil {
				return err
			}
			out.Debit = res
		}

		switch conv.Kind {
		case enums.SettlementAffiliate:
			disabled, err := repo.DisableRecurring(ctx, conv.CustomerID, orderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close recurring window")
			}
			out.AnchorDisabled = disabled
		case enums.SettlementAffiliateRecurring:
			// a reversed order no longer counts against the recurring cap
			if err := repo.ReleaseRecurring(ctx, conv.CustomerID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release recurring slot")
			}
		}
		return s.publishSettled(ctx, ut, conv.ReferrerUserID, orderID, enums.SettlementAffiliateRevoke, conv.Rate.String(), -conv.CommissionCents)
	})
	if errors.Is(err, errSettled) {
		return nil, nil
	}
	if err != nil {
		s.claimedButFailed(ctx, orderID, enums.SettlementAffiliateRevoke, err)
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":          conv.ReferrerUserID,
		"order_id":         orderID,
		"commission_cents": conv.CommissionCents,
		"anchor_disabled":  out.AnchorDisabled,
	})
	s.logg.Info(logCtx, "affiliate commission revoked")
	return out, nil
}

func (s *Service) publishSettled(ctx context.Context, ut *ledger.UserTx, referrerID, orderID string, kind enums.SettlementKind, rate string, cents int64) error {
	if err := s.events.AffiliateSaleSettled(ctx, ut.DB(), payloads.AffiliateSaleSettled{
		UserID:          referrerID,
		OrderID:         orderID,
		Kind:            string(kind),
		Rate:            rate,
		CommissionCents: cents,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue affiliate sale event")
	}
	return nil
}

func (s *Service) logSettled(ctx context.Context, out *Settlement, orderID string) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":          out.ReferrerID,
		"order_id":         orderID,
		"kind":             out.Kind,
		"rate":             out.Quote.Rate.String(),
		"commission_cents": out.Quote.Cents,
		"tier_raised":      out.TierRaised,
	})
	s.logg.Info(logCtx, "affiliate commission settled")
}
