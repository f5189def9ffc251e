package testutil

import (
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

// OpenTestDB returns an isolated in-memory SQLite database with the full
// schema migrated, plus a quiet logger for repo constructors.
func OpenTestDB(t *testing.T) (*gorm.DB, *logger.Logger) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := "file:" + name + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// Shared-cache in-memory SQLite is one database per connection pool;
	// keep a single connection so parallel tests do not collide.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&domain.Asset{}, &domain.Job{}, &domain.Segment{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return db, log
}
