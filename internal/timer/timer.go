// Package timer implements the interview countdown.
//
// Remaining time is always recomputed from the absolute session start, so
// wall-clock drift, reloads, and suspended ticks cannot stretch a session.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Style classifies the remaining time for display purposes.
type Style int

const (
	StyleNeutral Style = iota
	StyleWarning
	StyleUrgent
)

const (
	warningThreshold = 5 * time.Minute
	urgentThreshold  = time.Minute
)

// String returns the display name of the style tier.
func (s Style) String() string {
	switch s {
	case StyleWarning:
		return "warning"
	case StyleUrgent:
		return "urgent"
	default:
		return "neutral"
	}
}

// Remaining returns the time left in a session that started at startedAt
// with the given total duration, as observed at now. Never negative.
func Remaining(startedAt time.Time, duration time.Duration, now time.Time) time.Duration {
	deadline := startedAt.Add(duration)
	remaining := deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StyleFor returns the display tier for a remaining duration:
// urgent at one minute or less, warning at five minutes or less,
// neutral above that.
func StyleFor(remaining time.Duration) Style {
	switch {
	case remaining <= urgentThreshold:
		return StyleUrgent
	case remaining <= warningThreshold:
		return StyleWarning
	default:
		return StyleNeutral
	}
}

// Format renders a duration as MM:SS, rounded down to whole seconds.
// Durations of 100 minutes or more widen the minutes field.
func Format(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	total := int64(remaining / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Tick is one countdown observation.
type Tick struct {
	Remaining time.Duration
	Style     Style
}

// Countdown drives a per-session countdown and fires OnExpired exactly once
// when the deadline passes. OnTick and OnExpired run on the countdown's
// goroutine; they must not block for long.
type Countdown struct {
	startedAt time.Time
	duration  time.Duration
	interval  time.Duration
	now       func() time.Time

	onTick    func(Tick)
	onExpired func()

	mu      sync.Mutex
	expired bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// CountdownConfig configures a Countdown.
type CountdownConfig struct {
	StartedAt time.Time
	Duration  time.Duration

	// TickInterval defaults to one second.
	TickInterval time.Duration

	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time

	OnTick    func(Tick)
	OnExpired func()
}

// NewCountdown creates a countdown. Start must be called to begin ticking.
func NewCountdown(cfg CountdownConfig) (*Countdown, error) {
	if cfg.StartedAt.IsZero() {
		return nil, fmt.Errorf("startedAt is required")
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Countdown{
		startedAt: cfg.StartedAt,
		duration:  cfg.Duration,
		interval:  cfg.TickInterval,
		now:       cfg.Now,
		onTick:    cfg.OnTick,
		onExpired: cfg.OnExpired,
		done:      make(chan struct{}),
	}, nil
}

// Start begins ticking until the deadline passes, Stop is called, or ctx
// is canceled. It returns immediately; the countdown runs on its own
// goroutine.
func (c *Countdown) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil || c.stopped {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop halts ticking. It does not fire OnExpired. Safe to call more than
// once and concurrently with expiry; whichever happens first wins.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// Expired reports whether OnExpired has fired.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Countdown) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Observe immediately so a countdown started past its deadline
	// still expires without waiting a full interval.
	if c.observe() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.observe() {
				return
			}
		}
	}
}

// observe emits one tick and returns true when the countdown is finished.
func (c *Countdown) observe() bool {
	remaining := Remaining(c.startedAt, c.duration, c.now())

	if c.onTick != nil {
		c.onTick(Tick{Remaining: remaining, Style: StyleFor(remaining)})
	}
	if remaining > 0 {
		return false
	}

	c.mu.Lock()
	if c.expired || c.stopped {
		c.mu.Unlock()
		return true
	}
	c.expired = true
	c.mu.Unlock()

	if c.onExpired != nil {
		c.onExpired()
	}
	return true
}
