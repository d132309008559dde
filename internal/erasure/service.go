// Package erasure removes a user's rewards state on a data-erasure request.
package erasure

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/orders"
	"github.com/angelmondragon/packfinderz-rewards/internal/referrals"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type userLocker interface {
	WithUserLock(ctx context.Context, userID string, fn func(ut *ledger.UserTx) error) error
}

// userEraser deletes one component's rows inside the locked unit.
type userEraser interface {
	DeleteUser(ctx context.Context, ut *ledger.UserTx) error
}

type Params struct {
	Ledger     userLocker
	Referrals  *referrals.Repository
	Orders     orders.Repository
	Affiliate  userEraser
	Redemption userEraser
	Logger     *logger.Logger
}

type Service struct {
	ledger     userLocker
	referrals  *referrals.Repository
	orders     orders.Repository
	affiliate  userEraser
	redemption userEraser
	logg       *logger.Logger
}

func NewService(p Params) (*Service, error) {
	switch {
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case p.Referrals == nil:
		return nil, fmt.Errorf("referral repository required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Affiliate == nil:
		return nil, fmt.Errorf("affiliate eraser required")
	case p.Redemption == nil:
		return nil, fmt.Errorf("redemption eraser required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		ledger:     p.Ledger,
		referrals:  p.Referrals,
		orders:     p.Orders,
		affiliate:  p.Affiliate,
		redemption: p.Redemption,
		logg:       p.Logger,
	}, nil
}

// Erase deletes the user's balance, log, referral applications, affiliate
// data, counters and recorded orders in one transaction. Settlement markers
// are kept: they hold no personal data and stop erased orders from being
// settled again.
func (s *Service) Erase(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	err := s.ledger.WithUserLock(ctx, userID, func(ut *ledger.UserTx) error {
		if err := s.referrals.WithTx(ut.DB()).DeleteByUser(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "erase referral applications")
		}
		if err := s.orders.WithTx(ut.DB()).DeleteByCustomer(ctx, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "erase orders")
		}
		if err := s.affiliate.DeleteUser(ctx, ut); err != nil {
			return err
		}
		if err := s.redemption.DeleteUser(ctx, ut); err != nil {
			return err
		}
		return ut.Erase(ctx)
	})
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithUserID(ctx, userID), "user rewards data erased")
	return nil
}
