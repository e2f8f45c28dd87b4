package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig configures continuous profiling against a Pyroscope server.
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
}

// Profiler wraps a running Pyroscope session.
type Profiler struct {
	profiler *pyroscope.Profiler
}

// NewProfiler starts CPU, allocation and goroutine profiling. A disabled
// config returns an inert profiler.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Profiler{}, nil
	}
	if cfg.ServerAddress == "" || cfg.ApplicationName == "" {
		return nil, fmt.Errorf("profiler requires server address and application name")
	}

	tags := map[string]string{}
	if host, err := os.Hostname(); err == nil {
		tags["hostname"] = host
	}
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            pyroscopeLogger{logger.Sugar()},
		Tags:              tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start profiler: %w", err)
	}
	logger.Info("Profiler started", zap.String("server_address", cfg.ServerAddress))
	return &Profiler{profiler: p}, nil
}

// IsRunning reports whether profiles are being uploaded.
func (p *Profiler) IsRunning() bool {
	return p != nil && p.profiler != nil
}

// Stop flushes and stops profiling. Safe on an inert profiler.
func (p *Profiler) Stop() error {
	if !p.IsRunning() {
		return nil
	}
	err := p.profiler.Stop()
	p.profiler = nil
	return err
}

// WithJobLabels runs fn with a pprof "job" label so background work such as
// the vesting sweep can be told apart in flame graphs.
func WithJobLabels(ctx context.Context, job string, fn func(context.Context)) {
	pprof.Do(ctx, pprof.Labels("job", job), fn)
}

// Profiling label keys for HTTP requests.
const (
	ProfilingLabelMethod = "http_method"
	ProfilingLabelRoute  = "http_route"
	ProfilingLabelGroup  = "api_group"
)

// WithProfilingLabels runs fn with the given labels attached to every sample
// taken while it runs. Empty values are dropped.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := make([]string, 0, len(labels)*2)
	for k, v := range labels {
		if v != "" {
			pairs = append(pairs, k, v)
		}
	}
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

type pyroscopeLogger struct {
	s *zap.SugaredLogger
}

func (l pyroscopeLogger) Infof(format string, args ...any)  { l.s.Debugf(format, args...) }
func (l pyroscopeLogger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l pyroscopeLogger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }
