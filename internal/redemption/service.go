// Package redemption spends non-monetary counters (spins, points) on prizes.
// Every redemption decrements its counter inside the user's ledger lock
// before a prize is chosen, so no prize is ever granted against an attempt
// that was not consumed.
package redemption

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/pagination"
)

const maxIdempotencyKeyLen = 128

type userLocker interface {
	WithUserLock(ctx context.Context, userID string, fn func(ut *ledger.UserTx) error) error
}

type requestClaimer interface {
	TryClaimTx(ctx context.Context, tx *gorm.DB, subjectID string, kind enums.SettlementKind) (bool, error)
}

type ServiceParams struct {
	Repo    *Repository
	Ledger  userLocker
	Guard   requestClaimer
	Program program.Provider
	Logger  *logger.Logger
	// Intn returns a uniform int in [0, n). Defaults to math/rand/v2.
	Intn func(n int) int
}

type Service struct {
	repo    *Repository
	ledger  userLocker
	guard   requestClaimer
	program program.Provider
	logg    *logger.Logger
	intn    func(n int) int
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("counter repository required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case params.Guard == nil:
		return nil, fmt.Errorf("settlement guard required")
	case params.Program == nil:
		return nil, fmt.Errorf("program provider required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	intn := params.Intn
	if intn == nil {
		intn = rand.IntN
	}
	return &Service{
		repo:    params.Repo,
		ledger:  params.Ledger,
		guard:   params.Guard,
		program: params.Program,
		logg:    params.Logger,
		intn:    intn,
	}, nil
}

// Counters is a user's redeemable non-monetary balance.
type Counters struct {
	Points int64 `json:"points"`
	Spins  int64 `json:"spins"`
}

func (s *Service) Counters(ctx context.Context, userID string) (*Counters, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	values, err := s.repo.Values(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reward counters")
	}
	return &Counters{Points: values[enums.CounterPoints], Spins: values[enums.CounterSpins]}, nil
}

// History returns the newest counter log entries.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]models.RewardCounterEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	entries, err := s.repo.ListEntries(ctx, userID, pagination.LimitOrDefault(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list counter entries")
	}
	return entries, nil
}

type GrantInput struct {
	UserID      string
	Kind        enums.CounterKind
	Amount      int64
	Reason      string
	ReferenceID string
}

// Grant credits a counter, e.g. points earned or spins awarded.
func (s *Service) Grant(ctx context.Context, in GrantInput) (int64, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	switch {
	case in.UserID == "":
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	case !in.Kind.IsValid():
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid counter kind %q", in.Kind))
	case in.Amount <= 0:
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	var value int64
	err := s.ledger.WithUserLock(ctx, in.UserID, func(ut *ledger.UserTx) error {
		var err error
		value, err = s.grant(ctx, ut, in)
		return err
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

func (s *Service) grant(ctx context.Context, ut *ledger.UserTx, in GrantInput) (int64, error) {
	repo := s.repo.WithTx(ut.DB())
	now := ut.Now()
	value, err := repo.Increment(ctx, ut.UserID(), in.Kind, in.Amount, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment counter")
	}
	if err := repo.AppendEntry(ctx, &models.RewardCounterEntry{
		UserID:      ut.UserID(),
		Kind:        in.Kind,
		Delta:       in.Amount,
		ValueAfter:  value,
		Reason:      strings.TrimSpace(in.Reason),
		ReferenceID: refPtr(in.ReferenceID),
		CreatedAt:   now,
	}); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append counter entry")
	}
	return value, nil
}

// spend atomically takes cost from the counter and logs it. A counter that
// cannot cover cost fails with an InsufficientBalanceError and is untouched.
func (s *Service) spend(ctx context.Context, ut *ledger.UserTx, kind enums.CounterKind, cost int64, reason, ref string) (int64, error) {
	repo := s.repo.WithTx(ut.DB())
	now := ut.Now()
	ok, value, err := repo.Decrement(ctx, ut.UserID(), kind, cost, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement counter")
	}
	if !ok {
		return value, insufficient(kind, value, cost)
	}
	if err := repo.AppendEntry(ctx, &models.RewardCounterEntry{
		UserID:      ut.UserID(),
		Kind:        kind,
		Delta:       -cost,
		ValueAfter:  value,
		Reason:      reason,
		ReferenceID: refPtr(ref),
		CreatedAt:   now,
	}); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append counter entry")
	}
	return value, nil
}

// claimRequest makes a client-keyed redemption run at most once. The marker
// commits with the redemption itself.
func (s *Service) claimRequest(ctx context.Context, ut *ledger.UserTx, key string, kind enums.SettlementKind) (bool, error) {
	return s.guard.TryClaimTx(ctx, ut.DB(), ut.UserID()+":"+key, kind)
}

func normalizeRequest(userID, key string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	key = strings.TrimSpace(key)
	switch {
	case userID == "":
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	case key == "":
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	case len(key) > maxIdempotencyKeyLen:
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is too long")
	}
	return userID, key, nil
}

func refPtr(ref string) *string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	return &ref
}

func (s *Service) logRedeemed(ctx context.Context, msg string, fields map[string]any) {
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}
