package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// RetryConfig bounds the retries of a single completion.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrying decorates a Completer with exponential backoff.
type Retrying struct {
	next   Completer
	cfg    RetryConfig
	logger zerolog.Logger
}

// NewRetrying wraps next. MaxRetries of zero performs exactly one attempt.
func NewRetrying(next Completer, cfg RetryConfig, logger zerolog.Logger) *Retrying {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	return &Retrying{
		next:   next,
		cfg:    cfg,
		logger: logger.With().Str("component", "llm.retry").Logger(),
	}
}

// Complete calls the wrapped completer until it succeeds, the attempts are
// exhausted or the context is done.
func (r *Retrying) Complete(ctx context.Context, p Prompt) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval

	attempt := 0
	op := func() (string, error) {
		attempt++
		out, err := r.next.Complete(ctx, p)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).
			Str("label", p.Label).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("completion failed, retrying")
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.cfg.MaxRetries+1)),
		backoff.WithNotify(notify),
	)
}
