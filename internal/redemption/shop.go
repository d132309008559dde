package redemption

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
)

type PurchaseInput struct {
	UserID         string
	ItemID         string
	IdempotencyKey string
}

type PurchaseResult struct {
	Replayed   bool              `json:"replayed"`
	Item       *program.ShopItem `json:"item,omitempty"`
	Credit     *ledger.Result    `json:"-"`
	Balance    int64             `json:"balance_cents"`
	PointsLeft int64             `json:"points_left"`
}

// Purchase spends points on a catalogue item and credits its store-credit
// value. A user short of points gets an InsufficientBalanceError and keeps
// every counter and log unchanged.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	userID, key, err := normalizeRequest(in.UserID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	item, ok := s.program.Snapshot().ShopItem(strings.TrimSpace(in.ItemID))
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop item not found")
	}
	if item.CostPoints <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop item has no price")
	}

	out := &PurchaseResult{}
	err = s.ledger.WithUserLock(ctx, userID, func(ut *ledger.UserTx) error {
		granted, err := s.claimRequest(ctx, ut, key, enums.SettlementShop)
		if err != nil {
			return err
		}
		if !granted {
			out.Replayed = true
			return nil
		}

		left, err := s.spend(ctx, ut, enums.CounterPoints, item.CostPoints, fmt.Sprintf("shop item %s", item.ID), "shop:"+key)
		if err != nil {
			return err
		}
		out.PointsLeft = left
		out.Item = &item

		if item.CreditCents > 0 {
			res, err := ut.Adjust(ctx, ledger.AdjustInput{
				AmountCents: item.CreditCents,
				Type:        enums.LedgerEntryShop,
				Reason:      fmt.Sprintf("points shop: %s", item.Label),
				ReferenceID: "shop:" + key,
			})
			if err != nil {
				return err
			}
			out.Credit = res
		}
		out.Balance = ut.Balance()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Replayed {
		s.logRedeemed(ctx, "shop item redeemed", map[string]any{
			"user_id":     userID,
			"item_id":     item.ID,
			"cost_points": item.CostPoints,
			"points_left": out.PointsLeft,
		})
	}
	return out, nil
}

// DeleteUser erases the user's counters and counter log inside the unit.
func (s *Service) DeleteUser(ctx context.Context, ut *ledger.UserTx) error {
	if err := s.repo.WithTx(ut.DB()).DeleteByUser(ctx, ut.UserID()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "erase reward counters")
	}
	return nil
}
