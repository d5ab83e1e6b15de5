package appkit

import (
	"context"
	"time"

	"go.uber.org/ratelimit"
)

const DefaultFocusPollInterval = 100 * time.Millisecond

// FocusSource reports whether the page hosting the modal has focus.
type FocusSource interface {
	Focused() bool
}

// FocusWaiter blocks until the page hosting the modal has focus.
type FocusWaiter interface {
	WaitForFocus(ctx context.Context) error
}

type noFocusWait struct{}

func (noFocusWait) WaitForFocus(ctx context.Context) error { return ctx.Err() }

// PollingFocusWaiter polls a FocusSource at a fixed rate. There is no
// timeout; only ctx ends the wait.
type PollingFocusWaiter struct {
	source   FocusSource
	interval time.Duration
}

func NewPollingFocusWaiter(source FocusSource, interval time.Duration) *PollingFocusWaiter {
	if interval <= 0 {
		interval = DefaultFocusPollInterval
	}
	return &PollingFocusWaiter{source: source, interval: interval}
}

func (w *PollingFocusWaiter) WaitForFocus(ctx context.Context) error {
	if w.source.Focused() {
		return ctx.Err()
	}
	limiter := ratelimit.New(1, ratelimit.Per(w.interval), ratelimit.WithoutSlack)
	limiter.Take()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		limiter.Take()
		if w.source.Focused() {
			return nil
		}
	}
}
