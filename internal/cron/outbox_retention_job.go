package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

const defaultRetentionDays = 30

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository publishedPruner
	// Retention in days; zero or negative means thirty.
	Retention int
	Clock     func() time.Time
}

// NewOutboxRetentionJob deletes published outbox rows older than the
// retention window. Pending rows are left alone regardless of age.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = defaultRetentionDays
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &outboxRetentionJob{logg: params.Logger, pruner: params.Repository, days: days, now: clock}, nil
}

type outboxRetentionJob struct {
	logg   *logger.Logger
	pruner publishedPruner
	days   int
	now    func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)
	n, err := j.pruner.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune published outbox rows: %w", err)
	}
	ctx = j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff.Format(time.RFC3339), "deleted": n})
	j.logg.Info(ctx, "outbox.pruned")
	return nil
}
