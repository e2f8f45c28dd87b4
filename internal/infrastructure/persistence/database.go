package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/mxi/presale/internal/infrastructure/config"
	"github.com/mxi/presale/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database holds the database connection and provides methods for database operations
type Database struct {
	DB *gorm.DB
}

// Options configures how a Database is opened
type Options struct {
	// Logger is the GORM logger; silent when nil
	Logger gormlogger.Interface
	// Instrumentation enables otelgorm spans and query metrics when set
	Instrumentation *telemetry.DBInstrumentation
	// Meter receives query and pool metrics; nil skips them
	Meter metric.Meter
	// ZapLogger receives slow query warnings from the instrumentation
	ZapLogger *zap.Logger
	// PrepareStmt caches prepared statements; disabled for sqlmock tests
	PrepareStmt bool
}

// NewDatabase connects to PostgreSQL with the given configuration
func NewDatabase(cfg *config.DatabaseConfig, opts Options) (*Database, error) {
	d, err := Open(postgres.Open(cfg.DSN()), opts)
	if err != nil {
		return nil, err
	}

	sqlDB, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return d, nil
}

// Open opens a Database on any GORM dialector. Tests use it with SQLite.
func Open(dialector gorm.Dialector, opts Options) (*Database, error) {
	gl := opts.Logger
	if gl == nil {
		gl = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gl,
		SkipDefaultTransaction: true,
		PrepareStmt:            opts.PrepareStmt,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Instrumentation != nil {
		if err := telemetry.InstrumentDB(db, opts.Meter, *opts.Instrumentation, opts.ZapLogger); err != nil {
			return nil, fmt.Errorf("failed to instrument database: %w", err)
		}
	}
	return &Database{DB: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns database connection pool statistics
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}
