// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bootctl

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// CountdownState is the terminal state of a countdown run.
type CountdownState int

// Countdown states.
const (
	CountdownIdle CountdownState = iota
	CountdownRunning
	CountdownCancelled
	CountdownExpired
)

func (s CountdownState) String() string {
	switch s {
	case CountdownIdle:
		return "idle"
	case CountdownRunning:
		return "running"
	case CountdownCancelled:
		return "cancelled"
	case CountdownExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Countdown is a timed, cancellable waiting period gating either update
// application or default boot. At most one countdown is ever live
// system-wide, so a single shared flag is unambiguous. The flag is
// deliberately race-tolerant: it only gates a UX cancellation window,
// never disk correctness.
type Countdown struct {
	live atomic.Bool

	tick   time.Duration
	logger *zap.Logger
}

// NewCountdown builds the shared countdown primitive.
func NewCountdown(logger *zap.Logger, setters ...CountdownOption) *Countdown {
	countdown := &Countdown{
		tick:   time.Second,
		logger: logger,
	}

	for _, setter := range setters {
		setter(countdown)
	}

	return countdown
}

// CountdownOption configures the countdown.
type CountdownOption func(*Countdown)

// WithTick overrides the one-second tick, for tests.
func WithTick(tick time.Duration) CountdownOption {
	return func(c *Countdown) {
		c.tick = tick
	}
}

// Run counts down the given number of ticks, returning
// CountdownExpired when the full duration elapsed with no cancellation
// and CountdownCancelled otherwise. Both are terminal for this run.
func (c *Countdown) Run(action string, seconds int) CountdownState {
	c.live.Store(true)

	c.logger.Info("press a key to cancel this countdown", zap.String("action", action))

	for remaining := seconds; remaining > 0 && c.live.Load(); remaining-- {
		c.logger.Info("automatic action pending", zap.String("action", action), zap.Int("seconds", remaining))

		time.Sleep(c.tick)
	}

	if c.live.Swap(false) {
		return CountdownExpired
	}

	return CountdownCancelled
}

// Cancel clears the live flag; a no-op when no countdown is live.
func (c *Countdown) Cancel() {
	if c.live.Swap(false) {
		c.logger.Info("countdown disabled")
	}
}
