// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"testing"

	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns a private in-memory sqlite database migrated for models. The
// pool is pinned to one connection so writers serialise the way row locks
// would on postgres.
func Open(t *testing.T, models ...any) *gorm.DB {
	t.Helper()

	dsn := "file:rewards_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(models) > 0 {
		if err := conn.AutoMigrate(models...); err != nil {
			t.Fatalf("migrate sqlite: %v", err)
		}
	}
	return conn
}

// Client wraps Open in a db.Client.
func Client(t *testing.T, models ...any) *db.Client {
	t.Helper()
	return db.Wrap(Open(t, models...))
}
