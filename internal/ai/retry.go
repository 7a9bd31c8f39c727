package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xxxsen/docqa/internal/config"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

// RetryPolicy bounds one logical call to an external model endpoint.
// Every attempt gets its own timeout; only retryable errors are retried and a
// cancelled parent context stops the loop immediately.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
	Limiter        *rate.Limiter
}

func NewRetryPolicy(c config.RetryConfig) *RetryPolicy {
	p := &RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: time.Duration(c.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(c.MaxBackoffMs) * time.Millisecond,
		Timeout:        time.Duration(c.TimeoutMs) * time.Millisecond,
	}
	if c.RatePerSecond > 0 {
		burst := c.Burst
		if burst <= 0 {
			burst = 1
		}
		p.Limiter = rate.NewLimiter(rate.Limit(c.RatePerSecond), burst)
	}
	return p
}

func (p *RetryPolicy) attempts() int {
	if p == nil || p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p *RetryPolicy) backoff(attempt int) time.Duration {
	if p == nil || p.InitialBackoff <= 0 {
		return 0
	}
	d := p.InitialBackoff << uint(attempt)
	if p.MaxBackoff > 0 && (d > p.MaxBackoff || d <= 0) {
		d = p.MaxBackoff
	}
	return d
}

// Do runs fn until it succeeds, fails permanently or attempts run out.
// Exhausted retryable failures are reported as ErrTransient.
func (p *RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	logger := logutil.GetLogger(ctx).With(zap.String("op", op))
	var lastErr error
	total := p.attempts()
	for attempt := 0; attempt < total; attempt++ {
		if attempt > 0 {
			wait := p.backoff(attempt - 1)
			logger.Warn("retrying model call", zap.Int("attempt", attempt+1), zap.Duration("backoff", wait), zap.Error(lastErr))
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}
		if p != nil && p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := p.runAttempt(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w: %w", op, total, appErr.ErrTransient, lastErr)
}

func (p *RetryPolicy) runAttempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p == nil || p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	err := fn(attemptCtx)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("attempt timed out after %s: %w: %w", p.Timeout, context.DeadlineExceeded, err)
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
