package poorlock

import (
	"io"
	"log/slog"
	"time"
)

const (
	defaultPollDelay = 500 * time.Millisecond
	defaultKeyPrefix = "poorlock:"
)

// Option configures a Locker.
type Option func(*Locker)

// WithPollDelay sets the delay between acquisition attempts inside Wait.
func WithPollDelay(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.delay = d
		}
	}
}

// WithBackoff grows the poll delay by multiplier after every failed attempt,
// capped at maxDelay. A multiplier <= 1 keeps the delay fixed.
func WithBackoff(multiplier float64, maxDelay time.Duration) Option {
	return func(l *Locker) {
		l.multiplier = multiplier
		l.maxDelay = maxDelay
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(l *Locker) {
		if m != nil {
			l.metrics = m
		}
	}
}

// StoreOption configures a backing store adapter.
type StoreOption func(*storeOptions)

type storeOptions struct {
	schema Schema
	prefix string
	now    func() time.Time
	logger *slog.Logger
}

func newStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{
		schema: DefaultSchema(),
		prefix: defaultKeyPrefix,
		now:    time.Now,
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSchema overrides the record field names.
func WithSchema(s Schema) StoreOption {
	return func(o *storeOptions) {
		o.schema = s
	}
}

// WithKeyPrefix sets the prefix prepended to keys by stores with a flat
// keyspace (Redis, memcache).
func WithKeyPrefix(prefix string) StoreOption {
	return func(o *storeOptions) {
		o.prefix = prefix
	}
}

// WithClock sets the time source for the locked_at field.
func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
