// Package expiry reclaims lapsed store credit. Each user is swept in one
// locked ledger unit: a single expired debit for the sum of their lapsed
// positive entries, and those entries flagged so no later sweep sees them.
package expiry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/metrics"
)

const (
	defaultConcurrency = 4
	defaultBatchSize   = 200
)

type sweepLedger interface {
	UsersWithExpiringCredit(ctx context.Context, now time.Time, limit int) ([]string, error)
	WithUserLock(ctx context.Context, userID string, fn func(ut *ledger.UserTx) error) error
}

type Params struct {
	Ledger      sweepLedger
	Logger      *logger.Logger
	Metrics     *metrics.RewardsMetrics
	Concurrency int
	BatchSize   int
}

type Sweeper struct {
	ledger      sweepLedger
	logg        *logger.Logger
	metrics     *metrics.RewardsMetrics
	concurrency int
	batchSize   int
}

func NewSweeper(params Params) (*Sweeper, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Sweeper{
		ledger:      params.Ledger,
		logg:        params.Logger,
		metrics:     params.Metrics,
		concurrency: concurrency,
		batchSize:   batch,
	}, nil
}

// Result totals one sweep.
type Result struct {
	Users        int   `json:"users"`
	Entries      int   `json:"entries"`
	ExpiredCents int64 `json:"expired_cents"`
	Failed       int   `json:"failed"`
}

// Sweep expires every entry with expires_at <= now. Users are independent: a
// failure leaves that user untouched and eligible for the next run while the
// others commit. The returned error aggregates per-user failures.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Result, error) {
	now = now.UTC()
	var (
		mu     sync.Mutex
		result Result
		errs   error
		failed = map[string]struct{}{}
	)

	for {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		// swept users drop out of the query; failed ones stay and are skipped
		limit := s.batchSize + len(failed)
		ids, err := s.ledger.UsersWithExpiringCredit(ctx, now, limit)
		if err != nil {
			return result, multierr.Append(errs, err)
		}
		pending := ids[:0]
		for _, id := range ids {
			if _, skip := failed[id]; !skip {
				pending = append(pending, id)
			}
		}
		if len(pending) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for _, userID := range pending {
			g.Go(func() error {
				entries, cents, err := s.sweepUser(gctx, userID, now)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed[userID] = struct{}{}
					result.Failed++
					errs = multierr.Append(errs, fmt.Errorf("user %s: %w", userID, err))
					return nil
				}
				if entries > 0 {
					result.Users++
					result.Entries += entries
					result.ExpiredCents += cents
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(ids) < limit {
			break
		}
	}

	s.metrics.ObserveSweep(result.Users, result.ExpiredCents)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"users":         result.Users,
		"entries":       result.Entries,
		"expired_cents": result.ExpiredCents,
		"failed":        result.Failed,
	})
	s.logg.Info(logCtx, "expiry sweep finished")
	return result, errs
}

// sweepUser debits the sum of the user's lapsed entries and flags them, all
// under the user's lock. It reports the debit actually applied.
func (s *Sweeper) sweepUser(ctx context.Context, userID string, now time.Time) (int, int64, error) {
	var (
		count   int
		applied int64
	)
	err := s.ledger.WithUserLock(ctx, userID, func(ut *ledger.UserTx) error {
		entries, err := ut.ExpiringEntries(ctx, now)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		var sum int64
		for _, e := range entries {
			sum += e.AmountCents
		}
		if sum > 0 {
			res, err := ut.Adjust(ctx, ledger.AdjustInput{
				AmountCents: -sum,
				Type:        enums.LedgerEntryExpired,
				Reason:      fmt.Sprintf("%d credit entries expired", len(entries)),
				ReferenceID: "expiry:" + now.Format(time.DateOnly),
			})
			if err != nil {
				return err
			}
			applied = -res.Entry.AmountCents
		}
		if err := ut.MarkExpiryProcessed(ctx, entries); err != nil {
			return err
		}
		count = len(entries)
		return nil
	})
	return count, applied, err
}
