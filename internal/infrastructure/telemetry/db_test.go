package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/mxi/presale/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type probeRow struct {
	ID   uint
	Name string
}

func openInstrumentedDB(t *testing.T, cfg telemetry.DBInstrumentation) (*gorm.DB, *sdkmetric.ManualReader) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&probeRow{}))

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	require.NoError(t, telemetry.InstrumentDB(db, provider.Meter("db"), cfg, nil))
	return db, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestInstrumentDB_RecordsQueryDurationAndPool(t *testing.T) {
	db, reader := openInstrumentedDB(t, telemetry.DBInstrumentation{SlowQueryThreshold: time.Hour})

	require.NoError(t, db.Create(&probeRow{Name: "a"}).Error)
	var rows []probeRow
	require.NoError(t, db.Find(&rows).Error)

	metrics := collect(t, reader)
	hist, ok := metrics["db_query_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	ops := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		op, _ := dp.Attributes.Value(telemetry.AttrDBOperation)
		ops[op.AsString()] += dp.Count
	}
	assert.Equal(t, uint64(1), ops["INSERT"])
	assert.Equal(t, uint64(1), ops["SELECT"])

	_, hasSlow := metrics["db_slow_query_total"]
	assert.False(t, hasSlow)
	_, hasPool := metrics["db_pool_connections"]
	assert.True(t, hasPool)
}

func TestInstrumentDB_CountsSlowQueries(t *testing.T) {
	db, reader := openInstrumentedDB(t, telemetry.DBInstrumentation{SlowQueryThreshold: time.Nanosecond})

	require.NoError(t, db.Create(&probeRow{Name: "slow"}).Error)

	sum, ok := collect(t, reader)["db_slow_query_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.GreaterOrEqual(t, total, int64(1))
}

func TestInstrumentDB_TracingPlugin(t *testing.T) {
	setupTestTracer(t)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, telemetry.InstrumentDB(db, nil, telemetry.DBInstrumentation{Tracing: true}, nil))
	require.NoError(t, db.AutoMigrate(&probeRow{}))
	assert.NoError(t, db.Create(&probeRow{Name: "traced"}).Error)
}
