package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often a transport failure is retried. MaxAttempts
// counts the first try.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

type retrySender struct {
	next   Sender
	policy RetryPolicy
	logger *slog.Logger
}

// WithRetry wraps next so transport errors are retried with exponential
// backoff. Replies, including Failure replies, are never retried, and neither
// is a malformed body. A policy of one attempt or less returns next unchanged.
func WithRetry(next Sender, policy RetryPolicy, logger *slog.Logger) Sender {
	if policy.MaxAttempts <= 1 {
		return next
	}
	return &retrySender{
		next:   next,
		policy: policy,
		logger: logger.With(slog.String("component", "gateway-retry")),
	}
}

func (r *retrySender) Send(ctx context.Context, message string) (Reply, error) {
	expo := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		expo.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		expo.MaxInterval = r.policy.MaxInterval
	}

	attempt := 0
	op := func() (Reply, error) {
		attempt++
		reply, err := r.next.Send(ctx, message)
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, ErrMalformedReply) || ctx.Err() != nil {
			return Reply{}, backoff.Permanent(err)
		}
		r.logger.Warn("assistant request failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		return Reply{}, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)))
}
