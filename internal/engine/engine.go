// Package engine assembles the rewards services on top of shared database and
// redis clients. Every binary builds the same graph so a balance mutation
// follows one code path whether it arrives over HTTP, Pub/Sub, or cron.
package engine

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-rewards/internal/affiliate"
	"github.com/angelmondragon/packfinderz-rewards/internal/erasure"
	"github.com/angelmondragon/packfinderz-rewards/internal/events"
	"github.com/angelmondragon/packfinderz-rewards/internal/expiry"
	"github.com/angelmondragon/packfinderz-rewards/internal/guard"
	"github.com/angelmondragon/packfinderz-rewards/internal/ledger"
	"github.com/angelmondragon/packfinderz-rewards/internal/orders"
	"github.com/angelmondragon/packfinderz-rewards/internal/program"
	"github.com/angelmondragon/packfinderz-rewards/internal/redemption"
	"github.com/angelmondragon/packfinderz-rewards/internal/referrals"
	"github.com/angelmondragon/packfinderz-rewards/internal/reporting"
	"github.com/angelmondragon/packfinderz-rewards/internal/settlement"
	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/metrics"
	"github.com/angelmondragon/packfinderz-rewards/pkg/outbox"
)

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Locks      referrals.LockStore
	Registerer prometheus.Registerer
}

type Engine struct {
	Program *program.Store
	Metrics *metrics.RewardsMetrics
	Orders  orders.Repository
	Outbox  *outbox.Repository
	// DeadLetters holds outbound events the relay gave up on.
	DeadLetters *outbox.DLQRepository
	Ledger      *ledger.Service
	Referrals   *referrals.Service
	Affiliate   *affiliate.Service
	Redemption  *redemption.Service
	Settlement  *settlement.Handler
	Erasure     *erasure.Service
	Reporting   *reporting.Service
	Sweeper     *expiry.Sweeper
}

func New(p Params) (*Engine, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil {
		return nil, fmt.Errorf("config, logger, and db required")
	}
	cfg, logg, conn := p.Config, p.Logger, p.DB.DB()

	reg := p.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := metrics.NewRewardsMetrics(reg)

	prog, err := program.NewStore(cfg.Program.Path)
	if err != nil {
		return nil, fmt.Errorf("load rewards program: %w", err)
	}

	g, err := guard.New(conn, m)
	if err != nil {
		return nil, err
	}
	outboxRepo := outbox.NewRepository(conn)
	evts, err := events.NewOutbox(outbox.NewService(outboxRepo, logg))
	if err != nil {
		return nil, err
	}
	ordersRepo := orders.NewRepository(conn)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:        ledger.NewRepository(conn),
		DB:          p.DB,
		Logger:      logg,
		Metrics:     m,
		Program:     prog,
		Locker:      ledger.NewKeyedLocker(),
		LockTimeout: cfg.Ledger.LockTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	referralRepo := referrals.NewRepository(conn)
	referralSvc, err := referrals.NewService(referrals.ServiceParams{
		Repo:     referralRepo,
		Orders:   ordersRepo,
		Ledger:   ledgerSvc,
		Guard:    g,
		Events:   evts,
		Coupons:  evts,
		Program:  prog,
		Locks:    p.Locks,
		Logger:   logg,
		LockTTL:  cfg.Referral.SubmissionLockTTL,
		LockWait: cfg.Referral.SubmissionWait,
	})
	if err != nil {
		return nil, fmt.Errorf("referrals: %w", err)
	}

	affiliateSvc, err := affiliate.NewService(affiliate.ServiceParams{
		Repo:       affiliate.NewRepository(conn),
		Ledger:     ledgerSvc,
		Guard:      g,
		Events:     evts,
		Program:    prog,
		Logger:     logg,
		CodeLength: cfg.Affiliate.CodeLength,
	})
	if err != nil {
		return nil, fmt.Errorf("affiliate: %w", err)
	}

	redemptionSvc, err := redemption.NewService(redemption.ServiceParams{
		Repo:    redemption.NewRepository(conn),
		Ledger:  ledgerSvc,
		Guard:   g,
		Program: prog,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("redemption: %w", err)
	}

	settlementHandler, err := settlement.NewHandler(ordersRepo, affiliateSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("settlement: %w", err)
	}

	erasureSvc, err := erasure.NewService(erasure.Params{
		Ledger:     ledgerSvc,
		Referrals:  referralRepo,
		Orders:     ordersRepo,
		Affiliate:  affiliateSvc,
		Redemption: redemptionSvc,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("erasure: %w", err)
	}

	reportingSvc, err := reporting.NewService(conn, logg)
	if err != nil {
		return nil, fmt.Errorf("reporting: %w", err)
	}

	sweeper, err := expiry.NewSweeper(expiry.Params{
		Ledger:      ledgerSvc,
		Logger:      logg,
		Metrics:     m,
		Concurrency: cfg.Cron.SweepConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("expiry: %w", err)
	}

	return &Engine{
		Program:     prog,
		Metrics:     m,
		Orders:      ordersRepo,
		Outbox:      outboxRepo,
		DeadLetters: outbox.NewDLQRepository(conn),
		Ledger:      ledgerSvc,
		Referrals:   referralSvc,
		Affiliate:   affiliateSvc,
		Redemption:  redemptionSvc,
		Settlement:  settlementHandler,
		Erasure:     erasureSvc,
		Reporting:   reportingSvc,
		Sweeper:     sweeper,
	}, nil
}
