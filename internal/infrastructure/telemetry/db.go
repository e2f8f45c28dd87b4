package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBInstrumentation configures query tracing and metrics on a GORM handle.
type DBInstrumentation struct {
	Tracing            bool
	IncludeVariables   bool
	SlowQueryThreshold time.Duration
}

type dbStartKey struct{}

// dbPlugin times every GORM operation, flags slow queries on the active span
// and feeds db_query_* instruments.
type dbPlugin struct {
	cfg      DBInstrumentation
	duration *Histogram
	slow     *Counter
	logger   *zap.Logger
}

func (p *dbPlugin) Name() string { return "mxi:db_instrumentation" }

func (p *dbPlugin) Initialize(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		if tx.Statement.Context == nil {
			tx.Statement.Context = context.Background()
		}
		tx.Statement.Context = context.WithValue(tx.Statement.Context, dbStartKey{}, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) { p.observe(tx, op) }
	}

	cb := db.Callback()
	steps := []struct {
		name string
		reg  func(string, func(*gorm.DB)) error
		post func(string, func(*gorm.DB)) error
		op   string
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register, "INSERT"},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register, "SELECT"},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register, "UPDATE"},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register, "DELETE"},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register, ""},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register, ""},
	}
	for _, s := range steps {
		if err := s.reg("mxi:before_"+s.name, before); err != nil {
			return err
		}
		if err := s.post("mxi:after_"+s.name, after(s.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *dbPlugin) observe(tx *gorm.DB, op string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	if op == "" {
		op = sqlOperation(tx.Statement.SQL.String())
	}
	start, ok := ctx.Value(dbStartKey{}).(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	status := "ok"
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		status = "error"
	}
	attrs := []attribute.KeyValue{
		AttrDBOperation.String(op),
		AttrDBTable.String(tx.Statement.Table),
		attribute.String("status", status),
	}
	if p.duration != nil {
		p.duration.RecordDuration(ctx, elapsed, attrs...)
	}
	if elapsed < p.cfg.SlowQueryThreshold {
		return
	}
	if p.slow != nil {
		p.slow.Inc(ctx, attrs[:2]...)
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attribute.Bool("db.slow_query", true))
	}
	p.logger.Warn("Slow query",
		zap.String("operation", op),
		zap.String("table", tx.Statement.Table),
		zap.Duration("elapsed", elapsed))
}

// InstrumentDB registers otelgorm spans (when cfg.Tracing) and query/pool
// metrics on db. meter may be nil to skip metrics.
func InstrumentDB(db *gorm.DB, meter metric.Meter, cfg DBInstrumentation, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName("mxi")}
		if !cfg.IncludeVariables {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return fmt.Errorf("register otelgorm: %w", err)
		}
	}

	plugin := &dbPlugin{cfg: cfg, logger: logger}
	if meter != nil {
		var err error
		if plugin.duration, err = NewHistogram(meter, HistogramOpts{
			Name:        "db_query_duration_seconds",
			Description: "Database query latency",
			Unit:        "s",
			Boundaries:  DBDurationBuckets,
		}); err != nil {
			return err
		}
		if plugin.slow, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the configured threshold", "{query}"); err != nil {
			return err
		}
		if err := registerPoolGauge(db, meter); err != nil {
			return err
		}
	}
	return db.Use(plugin)
}

func registerPoolGauge(db *gorm.DB, meter metric.Meter) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	gauge, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := sqlDB.Stats()
		o.ObserveInt64(gauge, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(gauge, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(gauge, int64(stats.MaxOpenConnections), metric.WithAttributes(AttrDBState.String("max")))
		return nil
	}, gauge)
	return err
}

func sqlOperation(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}
