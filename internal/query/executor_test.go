package query_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/querygate/internal/guard"
	"github.com/angeloszaimis/querygate/internal/query"
)

var errBackend = errors.New("backend down")

var _ = Describe("Executor", func() {
	var (
		ctx   context.Context
		clock *guard.ManualClock
		g     *guard.Guard
		exec  *query.Executor
		calls int
		key   guard.Key
	)

	failing := func(context.Context) error {
		calls++
		return errBackend
	}

	succeeding := func(context.Context) error {
		calls++
		return nil
	}

	BeforeEach(func() {
		ctx = context.Background()
		clock = guard.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		g = guard.New(guard.WithClock(clock))
		exec = query.NewExecutor(g)
		calls = 0
		key = guard.Key{"profile", map[string]any{"user": 42}}
	})

	Describe("Do", func() {
		It("should run the operation and record success", func() {
			Expect(exec.Do(ctx, key, succeeding)).To(Succeed())
			Expect(calls).To(Equal(1))
			Expect(g.Len()).To(BeZero())
		})

		It("should return the operation error unchanged and record a failure", func() {
			err := exec.Do(ctx, key, failing)
			Expect(err).To(MatchError(errBackend))
			Expect(g.Inspect(key).ConsecutiveFailures).To(Equal(1))
		})

		It("should stop calling the operation once the key is blocked", func() {
			for i := 0; i < 3; i++ {
				Expect(exec.Do(ctx, key, failing)).To(MatchError(errBackend))
			}

			err := exec.Do(ctx, key, failing)
			Expect(calls).To(Equal(3))
			Expect(query.IsUnavailable(err)).To(BeTrue())
			Expect(err).To(MatchError(query.ErrTemporarilyUnavailable))

			var unavailable *query.UnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
			Expect(unavailable.RetryAfter).To(Equal(30 * time.Second))
			Expect(unavailable.Error()).To(Equal("too many recent failures, try again in 30 seconds"))
		})

		It("should present the same outcome for the whole window", func() {
			for i := 0; i < 3; i++ {
				_ = exec.Do(ctx, key, failing)
			}

			for i := 0; i < 5; i++ {
				clock.Advance(5 * time.Second)
				err := exec.Do(ctx, key, failing)
				Expect(query.IsUnavailable(err)).To(BeTrue())
			}
			Expect(calls).To(Equal(3))
		})

		It("should try again once the window has elapsed", func() {
			for i := 0; i < 3; i++ {
				_ = exec.Do(ctx, key, failing)
			}
			clock.Advance(30 * time.Second)

			Expect(exec.Do(ctx, key, succeeding)).To(Succeed())
			Expect(calls).To(Equal(4))
			Expect(g.State(key)).To(Equal(guard.StateClosed))
		})

		It("should not record anything for a cancelled attempt", func() {
			err := exec.Do(ctx, key, func(context.Context) error {
				return fmt.Errorf("fetch: %w", context.Canceled)
			})
			Expect(err).To(MatchError(context.Canceled))
			Expect(g.Len()).To(BeZero())
		})

		It("should record deadline errors as failures", func() {
			_ = exec.Do(ctx, key, func(context.Context) error {
				return context.DeadlineExceeded
			})
			Expect(g.Inspect(key).ConsecutiveFailures).To(Equal(1))
		})

		It("should pass the context through", func() {
			type ctxKey struct{}
			ctx = context.WithValue(ctx, ctxKey{}, "value")
			Expect(exec.Do(ctx, key, func(inner context.Context) error {
				Expect(inner.Value(ctxKey{})).To(Equal("value"))
				return nil
			})).To(Succeed())
		})
	})

	Describe("WithClassifier", func() {
		It("should let the caller decide what counts as failure", func() {
			errNotFound := errors.New("not found")
			exec = query.NewExecutor(g, query.WithClassifier(func(err error) query.Outcome {
				if err == nil || errors.Is(err, errNotFound) {
					return query.OutcomeSuccess
				}
				return query.OutcomeFailure
			}))

			for i := 0; i < 5; i++ {
				Expect(exec.Do(ctx, key, func(context.Context) error { return errNotFound })).
					To(MatchError(errNotFound))
			}
			Expect(g.Classify(key)).To(BeFalse())
		})
	})

	Describe("Run", func() {
		It("should return the produced value", func() {
			games, err := query.Run(ctx, exec, key, func(context.Context) ([]string, error) {
				return []string{"Hades", "Celeste"}, nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(games).To(ConsistOf("Hades", "Celeste"))
		})

		It("should return the zero value when blocked", func() {
			for i := 0; i < 3; i++ {
				g.RecordFailure(key)
			}
			n, err := query.Run(ctx, exec, key, func(context.Context) (int, error) {
				return 7, nil
			})
			Expect(query.IsUnavailable(err)).To(BeTrue())
			Expect(n).To(BeZero())
		})
	})

	Context("with half-open probing", func() {
		BeforeEach(func() {
			g = guard.New(guard.WithClock(clock), guard.WithHalfOpenProbe(true))
			exec = query.NewExecutor(g)
			for i := 0; i < 3; i++ {
				g.RecordFailure(key)
			}
			clock.Advance(31 * time.Second)
		})

		It("should refuse callers while the probe is in flight", func() {
			var inner error
			err := exec.Do(ctx, key, func(context.Context) error {
				inner = exec.Do(ctx, key, succeeding)
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(query.IsUnavailable(inner)).To(BeTrue())

			var unavailable *query.UnavailableError
			Expect(errors.As(inner, &unavailable)).To(BeTrue())
			Expect(unavailable.RetryAfter).To(Equal(30 * time.Second))
		})
	})
})

var _ = Describe("UnavailableError", func() {
	It("should round retry time up to whole seconds", func() {
		err := &query.UnavailableError{RetryAfter: 1500 * time.Millisecond}
		Expect(err.RetrySeconds()).To(Equal(2))
	})

	It("should never report less than one second", func() {
		err := &query.UnavailableError{}
		Expect(err.RetrySeconds()).To(Equal(1))
	})

	It("should survive wrapping", func() {
		err := fmt.Errorf("load games: %w", &query.UnavailableError{RetryAfter: time.Second})
		Expect(query.IsUnavailable(err)).To(BeTrue())
	})
})
