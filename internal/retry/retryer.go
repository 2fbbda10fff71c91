// Package retry runs operations repeatedly until they succeed, fail with a
// non-retryable error, or the retry budget is used up.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/amerr"
	"github.com/simplesurance/automerger/internal/logfields"
)

const (
	DefTimeout         = 20 * time.Minute
	DefInitialInterval = 5 * time.Second
	// DefMaxTries is the default ceiling on how often an operation is
	// run. 0 means unlimited, only the timeout applies.
	DefMaxTries = 0
)

// ErrShutdown is returned by Run when Stop() was called while the operation
// was waiting for its next try.
var ErrShutdown = errors.New("retryer is shutting down")

// Retryer executes a function repeatedly until it was successful or cancel
// condition happened.
type Retryer struct {
	logger       *zap.Logger
	shutdownChan chan struct{}

	defTimeout                 time.Duration
	backoffInitialInterval     time.Duration
	backoffRandomizationFactor float64
	backoffMaxInterval         time.Duration
	maxTries                   uint
}

type Option func(*Retryer)

// WithTimeout sets the maximum duration of a Run() call including all
// retries.
func WithTimeout(d time.Duration) Option {
	return func(r *Retryer) {
		r.defTimeout = d
	}
}

// WithInitialInterval sets the pause before the first retry.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retryer) {
		r.backoffInitialInterval = d
	}
}

// WithMaxTries limits how often the function is run per Run() call.
func WithMaxTries(n uint) Option {
	return func(r *Retryer) {
		r.maxTries = n
	}
}

func NewRetryer(opts ...Option) *Retryer {
	r := Retryer{
		logger:                     zap.L().Named("retryer"),
		shutdownChan:               make(chan struct{}),
		defTimeout:                 DefTimeout,
		backoffInitialInterval:     DefInitialInterval,
		backoffRandomizationFactor: backoff.DefaultRandomizationFactor,
		backoffMaxInterval:         backoff.DefaultMaxInterval,
		maxTries:                   DefMaxTries,
	}

	for _, opt := range opts {
		opt(&r)
	}

	return &r
}

func logFieldResult(val string) zap.Field {
	return zap.String("operation_result", val)
}

func (r *Retryer) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffInitialInterval
	bo.RandomizationFactor = r.backoffRandomizationFactor
	bo.MaxInterval = r.backoffMaxInterval
	// termination is controlled via the context timeout
	bo.MaxElapsedTime = 0
	bo.Reset()

	return bo
}

// Run executes fn until it was successful, it returned an error that
// does not wrap amerr.RetryableError, the maximum number of tries was
// reached or the execution was aborted via the context.
// The retry timeout of the Retryer is applied to ctx.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint

	ctx, cancelFn := context.WithTimeout(ctx, r.defTimeout)
	defer cancelFn()

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	bo := r.newBackoff()
	logger := r.logger.With(logF...)

	for {
		select {
		case <-ctx.Done():
			logger.Info(
				"operation cancelled",
				logfields.Event("operation_cancelled"),
				logFieldResult("cancelled"),
				zap.Uint("try_count", tryCnt),
				zap.Error(ctx.Err()),
			)

			return ctx.Err()

		case <-r.shutdownChan:
			logger.Info(
				"retryer terminating, operation not executed",
				logfields.Event("operation_cancelled_retryer_terminated"),
				logFieldResult("cancelled"),
			)

			return ErrShutdown

		case <-retryTimer.C:
			tryCnt++
			logger := logger.With(zap.Uint("try_count", tryCnt))

			logger.Debug(
				"running operation",
				logfields.Event("operation_running"),
				zap.Duration("age", bo.GetElapsedTime()),
				zap.Duration("retry_timeout", r.defTimeout),
			)

			err := fn(ctx)
			if err == nil {
				logger.Debug(
					"operation executed successfully",
					logfields.Event("operation_executed_successfully"),
					logFieldResult("success"),
				)

				return nil
			}

			logger = logger.With(zap.Error(err))

			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.Debug(
					"operation cancelled",
					logfields.Event("operation_cancelled"),
					logFieldResult("cancelled"),
				)

				return err
			}

			var retryError *amerr.RetryableError
			if !errors.As(err, &retryError) {
				logger.Debug(
					"operation failed, not retryable",
					logfields.Event("operation_failed"),
					logFieldResult("failure"),
				)

				return err
			}

			if r.maxTries != 0 && tryCnt >= r.maxTries {
				logger.Warn(
					"operation failed, giving up, max tries reached",
					logfields.Event("operation_failed_max_tries"),
					logFieldResult("failure"),
					zap.Uint("max_tries", r.maxTries),
				)

				return fmt.Errorf("giving up after %d tries: %w", tryCnt, err)
			}

			if deadline, ok := ctx.Deadline(); ok && retryError.After.After(deadline) {
				logger.Warn(
					"operation failed, next possible retry time is after timeout expiration",
					logfields.Event("operation_failed"),
					logFieldResult("failure"),
					zap.Time("earliest_allowed_retry", retryError.After),
				)

				return err
			}

			retryIn := bo.NextBackOff()
			if !retryError.After.IsZero() {
				if d := time.Until(retryError.After); d > retryIn {
					retryIn = d
				}
			}

			retryTimer.Reset(retryIn)
			logger.Info(
				"operation failed, retry scheduled",
				logfields.Event("operation_retry_scheduled"),
				zap.Duration("retry_in", retryIn),
			)
		}
	}
}

// Stop notifies all Run() methods to terminate.
// It does not wait for their termination.
func (r *Retryer) Stop() {
	r.logger.Debug("retryer terminating", logfields.Event("retryer_terminating"))

	select {
	case <-r.shutdownChan:
		return // already closed
	default:
		close(r.shutdownChan)
	}
}
