package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/dubwise/dubwise-backend/internal/domain"
	"github.com/dubwise/dubwise-backend/internal/platform/logger"
)

type Service struct {
	db  *gorm.DB
	log *logger.Logger
}

// New opens the database named by databaseURL. Postgres URLs are passed
// through; anything else is treated as a SQLite path (optionally prefixed
// with sqlite://), matching the local data/app.db default.
func New(log *logger.Logger, databaseURL string) (*Service, error) {
	serviceLog := log.With("service", "DBService")
	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}

	var (
		conn *gorm.DB
		err  error
	)
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		serviceLog.Info("Connecting to Postgres")
		conn, err = gorm.Open(postgres.Open(databaseURL), gormCfg)
	default:
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if dir := filepath.Dir(path); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, fmt.Errorf("create db directory: %w", mkErr)
			}
		}
		serviceLog.Info("Opening SQLite database", "path", path)
		conn, err = gorm.Open(sqlite.Open(path), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Service{db: conn, log: serviceLog}, nil
}

func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables")
	if err := s.db.AutoMigrate(
		&domain.Asset{},
		&domain.Job{},
		&domain.Segment{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
