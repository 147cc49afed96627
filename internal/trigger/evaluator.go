// Package trigger decides which closed speech segments matter.
//
// The evaluator is the policy stage after the segmenter: it gates segments
// by duration so that coughs and long rambles are ignored, and it suppresses
// triggering for a cool-down window after each accepted segment so the
// client's own synthesized reply, played back near the microphone, cannot
// re-trigger it.
//
// The cool-down is a blunt deadline timer, not echo cancellation. The seam
// is deliberately small so a smarter evaluator can replace it later.
package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/evoxlab/eva/internal/segment"
)

// Config holds the evaluator's fixed parameters.
type Config struct {
	// MinDuration is the shortest segment worth acting on. Shorter segments
	// are discarded with no further effect.
	MinDuration time.Duration

	// MaxDuration is the longest segment worth acting on.
	MaxDuration time.Duration

	// Cooldown is the suppression window entered after each accepted
	// segment. Segments offered inside the window are discarded.
	Cooldown time.Duration
}

// DefaultConfig approximates a spoken wake phrase: 0.3–1.5 s, with a 3 s
// cool-down.
func DefaultConfig() Config {
	return Config{
		MinDuration: 300 * time.Millisecond,
		MaxDuration: 1500 * time.Millisecond,
		Cooldown:    3 * time.Second,
	}
}

func (c Config) validate() error {
	if c.MinDuration <= 0 {
		return fmt.Errorf("trigger: min duration %v must be positive", c.MinDuration)
	}
	if c.MaxDuration < c.MinDuration {
		return fmt.Errorf("trigger: max duration %v must be ≥ min duration %v", c.MaxDuration, c.MinDuration)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("trigger: cooldown %v must be positive", c.Cooldown)
	}
	return nil
}

// Trigger is an accepted segment.
type Trigger struct {
	// Segment is the speech segment that fired the trigger. Ownership moves
	// from the evaluator to the receiver.
	Segment *segment.Segment

	// At is when the trigger fired.
	At time.Time
}

// Reason explains why an offered segment did not trigger. Used for metrics.
type Reason string

const (
	ReasonTooShort Reason = "too_short"
	ReasonTooLong  Reason = "too_long"
	ReasonCooldown Reason = "cooldown"
)

// Evaluator applies the duration gate and cool-down window.
//
// Offer runs on the capture goroutine while Suppress is driven by playback
// starting on another, so the deadline is mutex-guarded. All methods are
// safe for concurrent use.
type Evaluator struct {
	cfg Config

	// now is the clock, injectable for tests.
	now func() time.Time

	mu         sync.Mutex
	quietUntil time.Time
}

// Option configures an [Evaluator] during construction.
type Option func(*Evaluator)

// WithClock replaces the evaluator's time source. Tests use this to step
// through cool-down windows deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New creates an Evaluator. Invalid configuration is a startup-time fatal
// error.
func New(cfg Config, opts ...Option) (*Evaluator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Evaluator{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Offer evaluates a closed segment. On acceptance it returns the trigger and
// arms the cool-down; otherwise it returns the discard reason.
//
// The segmenter's state is never touched: a discarded segment has already
// been handed off and is simply dropped here.
func (e *Evaluator) Offer(seg *segment.Segment) (Trigger, Reason, bool) {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if now.Before(e.quietUntil) {
		return Trigger{}, ReasonCooldown, false
	}

	d := seg.Duration()
	if d < e.cfg.MinDuration {
		return Trigger{}, ReasonTooShort, false
	}
	if d > e.cfg.MaxDuration {
		return Trigger{}, ReasonTooLong, false
	}

	e.quietUntil = now.Add(e.cfg.Cooldown)
	return Trigger{Segment: seg, At: now}, "", true
}

// Suppress extends the cool-down so that it ends no earlier than d from now.
// The app arms this when reply playback starts, keeping the trigger quiet
// for the playback's expected duration plus the configured cool-down.
func (e *Evaluator) Suppress(d time.Duration) {
	until := e.now().Add(d)
	e.mu.Lock()
	defer e.mu.Unlock()
	if until.After(e.quietUntil) {
		e.quietUntil = until
	}
}

// Suppressed reports whether the evaluator is currently inside a cool-down.
func (e *Evaluator) Suppressed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now().Before(e.quietUntil)
}
