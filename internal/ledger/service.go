package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db/models"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/metrics"
	"github.com/angelmondragon/packfinderz-rewards/pkg/pagination"
)

const (
	defaultLockTimeout = 5 * time.Second
	pgLockNotAvailable = "55P03"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AdjustInput describes one balance mutation.
type AdjustInput struct {
	UserID      string
	AmountCents int64
	Type        enums.LedgerEntryType
	Reason      string
	ReferenceID string
	// ExpiryDays overrides the program's expiry policy for this entry type.
	// Only positive adjustments expire.
	ExpiryDays *int
}

// Result is the outcome of a committed adjustment.
type Result struct {
	Entry         models.LedgerEntry
	PreviousCents int64
	BalanceCents  int64
}

// Clamped reports whether the zero floor reduced the requested debit.
func (r Result) Clamped() bool {
	return r.Entry.AmountCents != r.Entry.RequestedCents
}

// ServiceParams wires the ledger service.
type ServiceParams struct {
	Repo        Repository
	DB          txRunner
	Logger      *logger.Logger
	Metrics     *metrics.RewardsMetrics
	Program     program.Provider
	Locker      *KeyedLocker
	LockTimeout time.Duration
	Clock       func() time.Time
}

// Service is the only writer of balances and the transaction log.
type Service struct {
	repo        Repository
	db          txRunner
	logg        *logger.Logger
	metrics     *metrics.RewardsMetrics
	program     program.Provider
	locker      *KeyedLocker
	lockTimeout time.Duration
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Program == nil {
		return nil, fmt.Errorf("program provider required")
	}
	locker := params.Locker
	if locker == nil {
		locker = NewKeyedLocker()
	}
	timeout := params.LockTimeout
	if timeout <= 0 {
		timeout = defaultLockTimeout
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:        params.Repo,
		db:          params.DB,
		logg:        params.Logger,
		metrics:     params.Metrics,
		program:     params.Program,
		locker:      locker,
		lockTimeout: timeout,
		now:         func() time.Time { return clock().UTC() },
	}, nil
}

// Now returns the service clock in UTC.
func (s *Service) Now() time.Time {
	return s.now()
}

// WithUserLock runs fn as one atomic unit holding the exclusive lock of
// userID: an in-process keyed lock first, then the balance row lock inside a
// database transaction. Operations on different users never contend. A lock
// that cannot be obtained within the configured timeout fails with a
// retryable LOCK_TIMEOUT error. Hooks registered with UserTx.AfterCommit run
// only once the transaction has committed.
func (s *Service) WithUserLock(ctx context.Context, userID string, fn func(ut *UserTx) error) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	start := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	unlock, err := s.locker.Lock(lockCtx, userID)
	cancel()
	if err != nil {
		s.metrics.ObserveLockWait(time.Since(start), true)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, "user ledger busy")
	}
	defer unlock()

	var ut *UserTx
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if db.IsPostgres(tx) {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set lock timeout")
			}
		}
		repo := s.repo.WithTx(tx)
		bal, err := repo.LockBalance(ctx, userID)
		if err != nil {
			return classifyStorageErr(err, "lock balance")
		}
		s.metrics.ObserveLockWait(time.Since(start), false)

		ut = &UserTx{svc: s, tx: tx, repo: repo, userID: userID, balance: bal.BalanceCents}
		return fn(ut)
	})
	if err != nil {
		return err
	}
	for _, hook := range ut.hooks {
		hook()
	}
	return nil
}

// Adjust applies one signed delta to a user's balance and appends the matching
// log entry. The new balance is max(0, current+amount).
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (*Result, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	var res *Result
	err := s.WithUserLock(ctx, input.UserID, func(ut *UserTx) error {
		var err error
		res, err = ut.Adjust(ctx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetBalance returns the user's current balance; unknown users hold zero.
func (s *Service) GetBalance(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	bal, err := s.repo.FindBalance(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load balance")
	}
	if bal == nil {
		return 0, nil
	}
	return bal.BalanceCents, nil
}

// GetLog returns up to limit entries, newest first. A larger limit returns a
// longer prefix of the same sequence.
func (s *Service) GetLog(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	entries, err := s.repo.ListEntries(ctx, userID, pagination.LimitOrDefault(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	return entries, nil
}

// UsersWithExpiringCredit lists users holding at least one lapsed, unswept
// positive entry at now.
func (s *Service) UsersWithExpiringCredit(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := s.repo.ListExpiringUserIDs(ctx, now.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expiring users")
	}
	return ids, nil
}

func (in AdjustInput) validate() error {
	if strings.TrimSpace(in.UserID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if in.AmountCents == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-zero")
	}
	if !in.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", in.Type))
	}
	if in.ExpiryDays != nil && *in.ExpiryDays < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "expiry days must not be negative")
	}
	return nil
}

func classifyStorageErr(err error, action string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, action)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeLockTimeout, err, action)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func addWouldOverflow(a, b int64) bool {
	return b > 0 && a > math.MaxInt64-b
}
