package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-rewards/internal/expiry"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

type sweeper interface {
	Sweep(ctx context.Context, now time.Time) (expiry.Result, error)
}

type ExpirySweepJobParams struct {
	Logger  *logger.Logger
	Sweeper sweeper
	Clock   func() time.Time
}

// NewExpirySweepJob runs the credit expiry sweep once per cycle. Per-user
// failures fail the job so they surface in cron metrics; the users that did
// sweep stay committed.
func NewExpirySweepJob(params ExpirySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &expirySweepJob{logg: params.Logger, sweeper: params.Sweeper, now: clock}, nil
}

type expirySweepJob struct {
	logg    *logger.Logger
	sweeper sweeper
	now     func() time.Time
}

func (j *expirySweepJob) Name() string { return "expiry-sweep" }

func (j *expirySweepJob) Run(ctx context.Context) error {
	res, err := j.sweeper.Sweep(ctx, j.now())
	if err != nil {
		return fmt.Errorf("expiry sweep (%d users failed): %w", res.Failed, err)
	}
	return nil
}
