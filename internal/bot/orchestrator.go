package bot

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	// MaxAttempts bounds the upstream calls made for one query.
	MaxAttempts = 5

	// FallbackText is delivered when every attempt failed.
	FallbackText = "Sorry, I am unable to process that request right now."

	// Name is the display name bot replies are broadcast under.
	Name = "Gemini Bot"
)

// SleepFunc blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSleep replaces the timer-based wait between attempts.
func WithSleep(fn SleepFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithMaxAttempts overrides MaxAttempts. Values below one are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// Orchestrator retries a Querier with exponential backoff.
// It holds no per-query state, so one instance serves concurrent queries.
type Orchestrator struct {
	client      Querier
	log         *zap.Logger
	maxAttempts int
	sleep       SleepFunc
}

// NewOrchestrator returns an Orchestrator driving client.
func NewOrchestrator(client Querier, log *zap.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		client:      client,
		log:         log.Named("bot"),
		maxAttempts: MaxAttempts,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run queries the bot for prompt and never fails: after the last failed
// attempt, or once ctx is cancelled during a wait, it returns FallbackText.
func (o *Orchestrator) Run(ctx context.Context, prompt string) string {
	attempt := 0
	var lastErr error

	for attempt < o.maxAttempts {
		text, err := o.client.Query(ctx, prompt)
		if err == nil {
			if attempt > 0 {
				o.log.Info("Bot query succeeded after retries", zap.Int("attempts", attempt+1))
			}
			return text
		}

		attempt++
		lastErr = err
		if attempt >= o.maxAttempts {
			break
		}

		delay := Delay(attempt)
		o.log.Warn("Bot query attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := o.sleep(ctx, delay); err != nil {
			o.log.Info("Bot query abandoned during backoff", zap.Int("attempt", attempt), zap.Error(err))
			return FallbackText
		}
	}

	o.log.Error("Bot query exhausted all attempts",
		zap.Int("attempts", attempt),
		zap.Error(lastErr))
	return FallbackText
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
