package core

import (
	"log/slog"
	"time"
)

// Logger is the structured logging surface used by the engine. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies timestamps for created_at/updated_at.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option customises a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	clock      Clock
	logger     Logger
	metrics    MetricsRecorder
	tracer     Tracer
	querier    Querier
	scopeLimit int
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:      ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:     slog.Default(),
		metrics:    noopMetricsRecorder{},
		tracer:     noopTracer{},
		scopeLimit: DefaultScopeLimit,
	}
}

// WithClock overrides the timestamp source.
func WithClock(clock Clock) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger overrides the logger. A nil logger silences the engine.
func WithLogger(logger Logger) Option {
	return func(o *serviceOptions) {
		if logger == nil {
			o.logger = noopLogger{}
			return
		}
		o.logger = logger
	}
}

// WithMetrics installs a metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer installs a tracer for save and load spans.
func WithTracer(tracer Tracer) Option {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithQuerier replaces the query collaborator used by relationship proxies
// and Service.Query. The default scans the driver's key index.
func WithQuerier(q Querier) Option {
	return func(o *serviceOptions) {
		o.querier = q
	}
}

// WithScopeLimit bounds the number of live request scopes.
func WithScopeLimit(n int) Option {
	return func(o *serviceOptions) {
		if n > 0 {
			o.scopeLimit = n
		}
	}
}
