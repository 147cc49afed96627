package exchange

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrUnavailable is returned by a [Breaker] while the circuit is open: the
// remote service has failed repeatedly and calls are rejected without
// touching the network until the reset timeout elapses.
var ErrUnavailable = errors.New("exchange: service unavailable, circuit open")

// BreakerState represents the current operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed is the normal operating state — all calls forwarded.
	BreakerClosed BreakerState = iota

	// BreakerOpen means the breaker tripped on consecutive transport
	// failures. Calls fail fast with [ErrUnavailable] until the reset
	// timeout elapses.
	BreakerOpen

	// BreakerHalfOpen is the probe state after the reset timeout. A limited
	// number of calls go through; success closes the breaker, failure
	// re-opens it.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// MaxFailures is the number of consecutive transport failures in the
	// closed state before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before transitioning
	// to half-open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state. Default: 3.
	HalfOpenMax int
}

// Breaker decorates a [Contract] with a three-state circuit breaker so a
// dead or unreachable service fails fast instead of stalling every
// interaction for a full request timeout.
//
// Only transport-level failures (KindNetwork, KindTimeout) trip the breaker.
// A KindServer error means the service answered — it counts as liveness.
//
// Safe for concurrent use.
type Breaker struct {
	next Contract

	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	lastFailure     time.Time
	halfOpenCalls   int
	halfOpenFails   int
}

var _ Contract = (*Breaker)(nil)

// NewBreaker wraps next with a circuit breaker. Zero-value config fields are
// replaced with defaults.
func NewBreaker(next Contract, cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &Breaker{
		next:         next,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		state:        BreakerClosed,
	}
}

// SendVoice forwards to the wrapped client when the breaker allows it.
func (b *Breaker) SendVoice(ctx context.Context, wav []byte, userID string) (*Reply, error) {
	inHalfOpen, err := b.allow()
	if err != nil {
		return nil, err
	}
	reply, err := b.next.SendVoice(ctx, wav, userID)
	b.record(inHalfOpen, err)
	return reply, err
}

// SendText forwards to the wrapped client when the breaker allows it.
func (b *Breaker) SendText(ctx context.Context, text, userID string) (*Reply, error) {
	inHalfOpen, err := b.allow()
	if err != nil {
		return nil, err
	}
	reply, err := b.next.SendText(ctx, text, userID)
	b.record(inHalfOpen, err)
	return reply, err
}

// CheckHealth forwards to the wrapped client when the breaker allows it.
func (b *Breaker) CheckHealth(ctx context.Context) (*Health, error) {
	inHalfOpen, err := b.allow()
	if err != nil {
		return nil, err
	}
	h, err := b.next.CheckHealth(ctx)
	b.record(inHalfOpen, err)
	return h, err
}

// State returns the breaker's current state. An open breaker whose reset
// timeout has elapsed reports half-open; the actual transition happens on
// the next call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.resetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to closed, clearing all failure counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.consecutiveFail = 0
	b.halfOpenCalls = 0
	b.halfOpenFails = 0
	slog.Info("exchange breaker manually reset")
}

// allow decides whether a call may proceed. It reports whether the call is
// a half-open probe.
func (b *Breaker) allow() (inHalfOpen bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if time.Since(b.lastFailure) < b.resetTimeout {
			return false, ErrUnavailable
		}
		b.state = BreakerHalfOpen
		b.halfOpenCalls = 0
		b.halfOpenFails = 0
		slog.Info("exchange breaker transitioning to half-open")

	case BreakerHalfOpen:
		if b.halfOpenCalls >= b.halfOpenMax {
			return false, ErrUnavailable
		}
	}

	if b.state == BreakerHalfOpen {
		b.halfOpenCalls++
		return true, nil
	}
	return false, nil
}

// record updates the failure accounting after a forwarded call.
func (b *Breaker) record(inHalfOpen bool, err error) {
	trips := tripsBreaker(err)

	b.mu.Lock()
	defer b.mu.Unlock()

	if trips {
		b.lastFailure = time.Now()
		if inHalfOpen {
			b.halfOpenFails++
			b.state = BreakerOpen
			b.consecutiveFail = b.maxFailures
			slog.Warn("exchange breaker re-opened from half-open")
			return
		}
		b.consecutiveFail++
		if b.consecutiveFail >= b.maxFailures {
			b.state = BreakerOpen
			slog.Warn("exchange breaker opened",
				"consecutive_failures", b.consecutiveFail)
		}
		return
	}

	if inHalfOpen {
		successes := b.halfOpenCalls - b.halfOpenFails
		if successes >= b.halfOpenMax {
			b.state = BreakerClosed
			b.consecutiveFail = 0
			b.halfOpenCalls = 0
			b.halfOpenFails = 0
			slog.Info("exchange breaker closed after successful probes")
		}
		return
	}
	b.consecutiveFail = 0
}

// tripsBreaker reports whether err counts as a service-down signal.
func tripsBreaker(err error) bool {
	if err == nil {
		return false
	}
	var xerr *Error
	if errors.As(err, &xerr) {
		return xerr.Kind == KindNetwork || xerr.Kind == KindTimeout
	}
	// Unclassified errors are treated as transport failures.
	return true
}
