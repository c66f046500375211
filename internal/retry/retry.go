// Package retry runs exchange calls until they succeed, waiting a fixed
// interval between attempts. Only errors that declare themselves recoverable
// are retried; everything else ends the loop immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"margin-trader/internal/monitor"
)

// DefaultInterval is the pause between attempts.
const DefaultInterval = 3 * time.Second

type fatalError struct{ err error }

func (e *fatalError) Error() string { return "fatal: " + e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Fatal marks err as a condition the process cannot continue past.
// Fatal errors are never retried.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with Fatal.
func IsFatal(err error) bool {
	var f *fatalError
	return errors.As(err, &f)
}

// Permanent stops the retry loop and returns err to the caller unchanged in meaning.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Transient marks err as worth another attempt.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Recoverable reports whether the executor would try again after err.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	var (
		f *fatalError
		p *permanentError
		t *transientError
	)
	switch {
	case errors.As(err, &f), errors.As(err, &p):
		return false
	case errors.As(err, &t):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var r interface{ Recoverable() bool }
	if errors.As(err, &r) {
		return r.Recoverable()
	}
	return false
}

// Executor retries operations at a constant interval.
type Executor struct {
	interval time.Duration
	logger   zerolog.Logger
	level    zerolog.Level
	metrics  *monitor.Metrics
	newTimer func() backoff.Timer
}

// NewExecutor creates an executor that waits interval between attempts.
// A nil metrics is allowed.
func NewExecutor(interval time.Duration, logger zerolog.Logger, metrics *monitor.Metrics) *Executor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Executor{
		interval: interval,
		logger:   logger.With().Str("component", "retry").Logger(),
		level:    zerolog.WarnLevel,
		metrics:  metrics,
	}
}

// Quiet returns a copy of e that reports retries at debug level.
func (e *Executor) Quiet() *Executor {
	q := *e
	q.level = zerolog.DebugLevel
	return &q
}

// Do calls fn until it returns a nil error or an error that is not
// recoverable, or until ctx is done. The value of the successful attempt is
// returned as produced by fn.
func Do[T any](ctx context.Context, e *Executor, op string, fn func() (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !Recoverable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		e.metrics.IncrementRetries()
		e.logger.WithLevel(e.level).
			Str("op", op).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Err(err).
			Msg("operation failed, retrying")
	}

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(e.interval), ctx)
	v, err := backoff.RetryNotifyWithTimerAndData(operation, b, notify, timer)
	if err != nil && IsFatal(err) {
		e.metrics.IncrementFatals()
	}
	return v, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, e *Executor, op string, fn func() error) error {
	_, err := Do(ctx, e, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
