package container

import (
	"log/slog"
	"time"
)

type options struct {
	logger         *slog.Logger
	resolveTimeout time.Duration
	eagerInit      bool
}

func newOptions(opts []Option) options {
	o := options{eagerInit: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Container at construction.
type Option func(*options)

// WithLogger sets the base logger for container traces. Without it, logging
// goes through whatever logger the caller's context carries, falling back to
// slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithResolveTimeout bounds each top-level Get, including any waiting on a
// construction owned by another goroutine, and gives each construction flight
// its own window of the same length. Zero means unbounded.
func WithResolveTimeout(d time.Duration) Option {
	return func(o *options) { o.resolveTimeout = d }
}

// WithEagerInit controls whether Seal constructs non-lazy singletons up
// front. Enabled by default; disabling it makes Seal validate only.
func WithEagerInit(enabled bool) Option {
	return func(o *options) { o.eagerInit = enabled }
}
