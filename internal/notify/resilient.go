package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Resilient bounds every delivery attempt with a timeout, retries failed attempts
// and stops calling a failing channel once the breaker opens.
type Resilient struct {
	next    Notifier
	timeout time.Duration
	retries int
	backoff time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *zap.Logger
}

// NewResilient wraps next. retries is the number of attempts after the first.
func NewResilient(next Notifier, timeout time.Duration, retries int, log *zap.Logger) *Resilient {
	if retries < 0 {
		retries = 0
	}
	settings := gobreaker.Settings{
		Name:        "receipt-notifier",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Resilient{
		next:    next,
		timeout: timeout,
		retries: retries,
		backoff: 100 * time.Millisecond,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		log:     log,
	}
}

// Notify implements Notifier
func (r *Resilient) Notify(ctx context.Context, rc Receipt) error {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff * time.Duration(attempt)):
			}
		}

		_, err = r.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, r.attempt(ctx, rc)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return err
		}
		r.log.Debug("Receipt delivery attempt failed",
			zap.String("bill_id", rc.BillID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return err
}

func (r *Resilient) attempt(ctx context.Context, rc Receipt) error {
	if r.timeout <= 0 {
		return r.next.Notify(ctx, rc)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.Notify(ctx, rc)
}
