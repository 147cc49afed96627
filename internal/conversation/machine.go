// Package conversation owns the interaction phase of the EVA client.
//
// The package separates the what from the when: [Transition] is a pure,
// total mapping from (state, command) to (state, effects), and [Machine]
// wraps it in a single-goroutine command processor so that concurrent
// producers — the capture loop, the exchange goroutine, playback callbacks,
// the UI — can only influence the phase by enqueuing immutable commands.
// All phase mutations are serialized through that one goroutine; no
// collaborator ever sees two overlapping phases.
package conversation

import (
	"context"
	"log/slog"
	"sync"
)

// defaultHistorySize bounds the conversation log.
const defaultHistorySize = 50

// commandBuffer sizes the command queue. Producers never block: if the
// queue is full the command is dropped with a warning, which only happens
// when the processor has stalled.
const commandBuffer = 64

// Change is one observed phase transition, delivered to subscribers.
type Change struct {
	Old State
	New State

	// Command is the short name of the command that caused the change.
	Command string
}

// EffectHandler executes one effect requested by a transition. Handlers run
// on the machine's processor goroutine and must not block; long-running
// work (network, playback) is launched asynchronously and reports back via
// Dispatch.
type EffectHandler func(Effect)

// Machine is the single authority for the interaction phase.
type Machine struct {
	handler EffectHandler
	log     *Log

	cmds chan Command

	mu    sync.RWMutex
	state State
	subs  map[int]chan Change
	subID int
}

// Option configures a [Machine] during construction.
type Option func(*Machine)

// WithHistorySize caps the conversation log. The default is 50 messages.
func WithHistorySize(n int) Option {
	return func(m *Machine) { m.log = NewLog(n) }
}

// New creates a Machine in the Idle phase. handler receives every effect the
// transitions request; pass nil to discard effects (tests of pure phase
// behaviour do this).
func New(handler EffectHandler, opts ...Option) *Machine {
	m := &Machine{
		handler: handler,
		log:     NewLog(defaultHistorySize),
		cmds:    make(chan Command, commandBuffer),
		state:   State{Phase: PhaseIdle},
		subs:    make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dispatch enqueues a command for the processor. It never blocks; when the
// queue is full the command is dropped and logged, preserving liveness of
// the producers over completeness of a stalled machine.
func (m *Machine) Dispatch(cmd Command) {
	select {
	case m.cmds <- cmd:
	default:
		slog.Warn("conversation: command queue full, dropping", "command", commandName(cmd))
	}
}

// Run processes commands until ctx is cancelled. It is the only goroutine
// that mutates the state, which is what guarantees the phase's global
// consistency. Returns ctx.Err().
func (m *Machine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-m.cmds:
			m.step(cmd)
		}
	}
}

// step applies one command: transition, state swap, effect dispatch,
// subscriber notification.
func (m *Machine) step(cmd Command) {
	m.mu.Lock()
	old := m.state
	next, effects := Transition(old, cmd)
	m.state = next
	m.mu.Unlock()

	if next != old {
		slog.Debug("phase transition",
			"from", old.Phase,
			"to", next.Phase,
			"command", commandName(cmd),
		)
	}

	for _, eff := range effects {
		// Message appends are the machine's own bookkeeping; everything
		// else belongs to the app's handler.
		if ap, ok := eff.(EffectAppendMessage); ok {
			m.log.Append(ap.Text, ap.FromUser, ap.AudioRef, ap.Emotion)
		}
		if m.handler != nil {
			m.handler(eff)
		}
	}

	if next != old {
		m.publish(Change{Old: old, New: next, Command: commandName(cmd)})
	}
}

// State returns a snapshot of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// History returns up to n recent messages, oldest first.
func (m *Machine) History(n int) []Message {
	return m.log.Recent(n)
}

// Subscribe registers an observer of phase changes and returns its channel
// plus a cancel function. The channel is buffered; a slow subscriber loses
// changes rather than stalling the machine.
func (m *Machine) Subscribe() (<-chan Change, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.subID
	m.subID++
	ch := make(chan Change, 16)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// publish fans a change out to all subscribers without blocking.
func (m *Machine) publish(ch Change) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		select {
		case sub <- ch:
		default:
		}
	}
}
