package redemption

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
)

// Draw picks the prize whose cumulative weight bracket contains roll, a value
// in [0, total weight). Prizes with no weight are never drawn.
func Draw(prizes []program.Prize, roll int) (program.Prize, bool) {
	for _, p := range prizes {
		if p.Weight <= 0 {
			continue
		}
		if roll < p.Weight {
			return p, true
		}
		roll -= p.Weight
	}
	return program.Prize{}, false
}

func totalWeight(prizes []program.Prize) int {
	total := 0
	for _, p := range prizes {
		if p.Weight > 0 {
			total += p.Weight
		}
	}
	return total
}

type SpinInput struct {
	UserID         string
	IdempotencyKey string
}

// SpinResult is the prize a spin paid out. Replayed is set, and nothing else,
// when the idempotency key was already used.
type SpinResult struct {
	Replayed  bool           `json:"replayed"`
	Prize     *program.Prize `json:"prize,omitempty"`
	Credit    *ledger.Result `json:"-"`
	Balance   int64          `json:"balance_cents"`
	SpinsLeft int64          `json:"spins_left"`
	Points    int64          `json:"points"`
}

// Spin consumes one spin and pays out a weighted-random prize.
func (s *Service) Spin(ctx context.Context, in SpinInput) (*SpinResult, error) {
	userID, key, err := normalizeRequest(in.UserID, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	prizes := s.program.Snapshot().Prizes
	total := totalWeight(prizes)
	if total == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "spin wheel has no prizes configured")
	}

	out := &SpinResult{}
	err = s.ledger.WithUserLock(ctx, userID, func(ut *ledger.UserTx) error {
		granted, err := s.claimRequest(ctx, ut, key, enums.SettlementSpin)
		if err != nil {
			return err
		}
		if !granted {
			out.Replayed = true
			return nil
		}

		left, err := s.spend(ctx, ut, enums.CounterSpins, 1, "spin", "spin:"+key)
		if err != nil {
			return err
		}
		out.SpinsLeft = left

		// drawn only once the spin is paid for
		prize, ok := Draw(prizes, s.intn(total))
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInternal, "prize draw out of range")
		}
		out.Prize = &prize

		switch prize.Kind {
		case program.PrizeCredit:
			if prize.CreditCents > 0 {
				res, err := ut.Adjust(ctx, ledger.AdjustInput{
					AmountCents: prize.CreditCents,
					Type:        enums.LedgerEntrySpin,
					Reason:      fmt.Sprintf("spin prize %s", prize.ID),
					ReferenceID: "spin:" + key,
				})
				if err != nil {
					return err
				}
				out.Credit = res
			}
		case program.PrizePoints:
			if prize.Points > 0 {
				points, err := s.grant(ctx, ut, GrantInput{
					Kind:        enums.CounterPoints,
					Amount:      prize.Points,
					Reason:      fmt.Sprintf("spin prize %s", prize.ID),
					ReferenceID: "spin:" + key,
				})
				if err != nil {
					return err
				}
				out.Points = points
			}
		}
		out.Balance = ut.Balance()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Replayed {
		s.logRedeemed(ctx, "spin redeemed", map[string]any{
			"user_id":    userID,
			"prize_id":   out.Prize.ID,
			"prize_kind": out.Prize.Kind,
			"spins_left": out.SpinsLeft,
		})
	}
	return out, nil
}
