package db

import (
	"context"
	"fmt"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
)

// queryLogger routes gorm's statement log into the service logger. Only slow
// statements and real failures are reported; record-not-found is a normal
// outcome for lookups.
type queryLogger struct {
	logg *logger.Logger
	slow time.Duration
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	return &queryLogger{logg: logg, slow: slow}
}

func (q *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	q.logg.Debug(ctx, fmt.Sprintf(msg, args...))
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	q.logg.Error(ctx, "gorm", fmt.Errorf(msg, args...))
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	took := time.Since(begin)
	failed := err != nil && !IsNotFound(err)
	isSlow := q.slow > 0 && took >= q.slow
	if !failed && !isSlow {
		return
	}
	sql, rows := fc()
	ctx = q.logg.WithFields(ctx, map[string]any{"sql": sql, "rows": rows, "took_ms": took.Milliseconds()})
	if failed {
		q.logg.Warn(ctx, "db.query_failed")
		return
	}
	q.logg.Warn(ctx, "db.slow_query")
}
