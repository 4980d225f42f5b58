package attempt

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rhyrak/go-allocate/internal/solver"
)

var (
	// ErrDataUnavailable means input data the attempt refers to could not be
	// read. It is assumed to be transient.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrNotOffline is returned when a solution is uploaded for a live attempt.
	ErrNotOffline = errors.New("attempt is not an offline attempt")
	// ErrNotPrepared is returned when a solution is uploaded before the model
	// files of the attempt were written.
	ErrNotPrepared = errors.New("attempt has not been prepared")
)

// IsRetryable reports whether err is an environment fault worth running the
// attempt again for.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDataUnavailable) || errors.Is(err, solver.ErrBackend)
}

// RetryPolicy runs a task up to MaxAttempts times, Interval apart.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Retry calls f until it succeeds, fails with an error that is not
// retryable, the policy is exhausted or ctx is done. It returns the last error.
func Retry(ctx context.Context, p RetryPolicy, f func() error) error {
	for attempt := 1; ; attempt++ {
		err := f()
		if err == nil || !IsRetryable(err) || attempt >= p.MaxAttempts {
			return err
		}
		log.WithError(err).WithFields(log.Fields{
			"try":      attempt,
			"max":      p.MaxAttempts,
			"interval": p.Interval,
		}).Warn("retrying")

		select {
		case <-ctx.Done():
			return err
		case <-time.After(p.Interval):
		}
	}
}
