// Package store persists prediction records through GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Tutortoise/catascan-service/config"
	"github.com/Tutortoise/catascan-service/models"

	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidUserID = errors.New("invalid user id")
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type Store struct {
	db     *gorm.DB
	driver string
	logger *slog.Logger
}

// Open connects to the configured database. Postgres goes through the lib/pq
// database/sql driver.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn})
	case config.DriverMySQL:
		dialector = mysql.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger, cfg.SlowQuery),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.Driver == config.DriverSQLite {
		// one writer, and an in-memory database lives on a single connection
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	return New(db, cfg.Driver, logger), nil
}

// New wraps an already opened GORM handle.
func New(db *gorm.DB, driver string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, driver: driver, logger: logger}
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&models.PredictionRecord{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", models.PredictionRecord{}.TableName(), err)
	}
	return nil
}

// SavePrediction inserts rec and fills in its generated id and timestamps.
func (s *Store) SavePrediction(ctx context.Context, rec *models.PredictionRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}
	s.logger.Debug("prediction saved",
		"id", rec.ID,
		"prediction", rec.Prediction,
		"image_path", rec.ImagePath)
	return nil
}

// ListByUser returns the user's predictions, newest first.
func (s *Store) ListByUser(ctx context.Context, userID int64, limit int) ([]models.PredictionRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var records []models.PredictionRecord
	err := s.db.WithContext(ctx).
		Where(&models.PredictionRecord{UserID: &userID}).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "createdAt"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: true},
		}}).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list predictions for user %d: %w", userID, err)
	}
	return records, nil
}

func (s *Store) Get(ctx context.Context, id uint) (*models.PredictionRecord, error) {
	var rec models.PredictionRecord
	err := s.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("prediction %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction %d: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.PredictionRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count predictions: %w", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ParseUserID converts the raw form value to the integer UserId column. An
// empty value is stored as NULL. The value is not checked against any users
// table.
func ParseUserID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidUserID, raw)
	}
	return &id, nil
}
