package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/angeloszaimis/querygate/internal/guard"
)

// Outcome is what an attempt reports back to the guard.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeIgnored // attempt abandoned, nothing is recorded
)

// Classifier maps the error returned by an attempt to an Outcome.
type Classifier func(err error) Outcome

// DefaultClassifier treats nil as success, a cancelled context as abandoned
// and every other error as a failure.
func DefaultClassifier(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled):
		return OutcomeIgnored
	default:
		return OutcomeFailure
	}
}

type Executor struct {
	guard    *guard.Guard
	logger   *slog.Logger
	classify Classifier
}

type Option func(*Executor)

func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.classify = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewExecutor(g *guard.Guard, opts ...Option) *Executor {
	e := &Executor{
		guard:    g,
		logger:   slog.New(slog.DiscardHandler),
		classify: DefaultClassifier,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Guard() *guard.Guard {
	return e.guard
}

// Do runs fn under key. A blocked key returns an *UnavailableError without
// calling fn; otherwise fn's error is returned unchanged after its outcome has
// been recorded.
func (e *Executor) Do(ctx context.Context, key any, fn func(context.Context) error) error {
	_, err := Run(ctx, e, key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Run is Do for operations that produce a value.
func Run[T any](ctx context.Context, e *Executor, key any, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if !e.guard.Admit(key) {
		st := e.guard.Inspect(key)
		e.logger.Debug("Query short-circuited",
			slog.String("key", st.Key),
			slog.String("state", st.State.String()),
			slog.Duration("retry_after", st.RetryAfter))
		return zero, &UnavailableError{Key: st.Key, RetryAfter: retryAfter(e.guard, st)}
	}

	result, err := fn(ctx)

	switch e.classify(err) {
	case OutcomeSuccess:
		e.guard.RecordSuccess(key)
	case OutcomeFailure:
		e.guard.RecordFailure(key)
		e.logger.Debug("Query failed", slog.Any("key", key), slog.Any("err", err))
	}

	return result, err
}

// retryAfter falls back to a full window for keys refused while a probe is in
// flight, which have no block deadline of their own.
func retryAfter(g *guard.Guard, st guard.Status) time.Duration {
	if st.RetryAfter > 0 {
		return st.RetryAfter
	}
	return g.BlockDuration()
}
