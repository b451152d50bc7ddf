package tensorchat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// RetryPolicy bounds how often a whole stream attempt is repeated after a
// transport failure. Delays are deterministic: attempt n (1-based) that
// failed is followed by BaseDelay·2^(n-1), capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; < 1 means 1
	BaseDelay   time.Duration // delay after the first failed attempt
	MaxDelay    time.Duration // cap; 0 = uncapped

	// OnRetry, when set, is called before each delay with the attempt that
	// just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Validate checks universal constraints on RetryPolicy.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d: %w", p.MaxAttempts, ErrValidation)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay must be non-negative, got %s: %w", p.BaseDelay, ErrValidation)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("max delay must be non-negative, got %s: %w", p.MaxDelay, ErrValidation)
	}
	return nil
}

// Delay returns the wait after failed attempt n (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
		if d > math.MaxInt64/2 {
			d = math.MaxInt64
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retryable reports whether err is worth another attempt. Only transport
// failures qualify. Cancellation of the caller's context is checked
// separately by the client.
func Retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
