package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"seer/internal/config"
)

var (
	// ErrNotFound indicates the requested record was not found.
	ErrNotFound = errors.New("store: not found")

	// ErrJobExists indicates a job with the given id already exists and is
	// still in flight.
	ErrJobExists = errors.New("store: job already exists")

	// ErrStatusRegression indicates a job status update that would move a
	// job backwards or out of a terminal state.
	ErrStatusRegression = errors.New("store: job status regression")

	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("store: duplicate record")
)

// Store wraps the relational datastore.
type Store struct {
	db *gorm.DB
}

// Open connects to PostgreSQL, applies the pool settings and migrates the
// schema.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to connect: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: failed to access connection pool: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return NewWithDB(db)
}

// NewWithDB wraps an existing GORM connection and migrates the schema.
// Tests use it with an in-memory SQLite database.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&CrawlJob{},
		&CrawledPage{},
		&PageIndicator{},
		&ThreatRecord{},
		&ThreatActorRow{},
		&ThreatIndicatorRow{},
		&AffectedSystemRow{},
		&AlertRule{},
		&AlertHistory{},
		&GraphNode{},
		&GraphEdge{},
	); err != nil {
		return nil, fmt.Errorf("store: failed to migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateNotFound maps GORM's sentinel to the store's.
func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// isUniqueViolation reports whether err is a uniqueness-constraint failure.
// GORM normalizes driver errors to ErrDuplicatedKey for recent drivers; the
// string fallback covers SQLite's raw constraint message.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
