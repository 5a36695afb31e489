package guard

import (
	"log/slog"
	"time"
)

const (
	DefaultFailureThreshold = 3
	DefaultBlockDuration    = 30 * time.Second
)

type options struct {
	failureThreshold int
	blockDuration    time.Duration
	clock            Clock
	logger           *slog.Logger
	observer         Observer
	maxEntries       int
	idleTTL          time.Duration
	halfOpenProbe    bool
}

// Option configures a Guard.
type Option func(*options)

func defaultOptions() options {
	return options{
		failureThreshold: DefaultFailureThreshold,
		blockDuration:    DefaultBlockDuration,
		clock:            SystemClock,
		logger:           slog.New(slog.DiscardHandler),
	}
}

// WithFailureThreshold sets how many consecutive failures open a key.
// Values below 1 keep the default.
func WithFailureThreshold(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.failureThreshold = n
		}
	}
}

// WithBlockDuration sets the length of the block window. Non-positive values
// keep the default.
func WithBlockDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.blockDuration = d
		}
	}
}

func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithMaxEntries caps the number of tracked keys. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxEntries = n
		}
	}
}

// WithIdleTTL lets Sweep drop entries that are not blocked and have not been
// updated for d. Zero disables idle expiry.
func WithIdleTTL(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.idleTTL = d
		}
	}
}

// WithHalfOpenProbe makes Admit let a single caller through once a block
// window elapses, instead of every caller at once.
func WithHalfOpenProbe(enabled bool) Option {
	return func(o *options) {
		o.halfOpenProbe = enabled
	}
}
