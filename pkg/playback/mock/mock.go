// Package mock provides a controllable playback.Player for tests.
package mock

import (
	"context"
	"sync"

	"github.com/evoxlab/eva/pkg/playback"
)

var _ playback.Player = (*Player)(nil)

// Player is a scripted playback.Player. Play blocks until Stop, Finish or
// context cancellation, mirroring the real driver's lifecycle.
type Player struct {
	// PlayErr, when set, is returned immediately by Play.
	PlayErr error

	mu      sync.Mutex
	playing bool
	release chan struct{}
	refs    []string
	stops   int
	updates chan bool
}

// New creates a mock Player.
func New() *Player {
	return &Player{updates: make(chan bool, 16)}
}

// Play records the reference and blocks until released.
func (p *Player) Play(ctx context.Context, audioRef string) error {
	p.mu.Lock()
	if p.PlayErr != nil {
		err := p.PlayErr
		p.mu.Unlock()
		return err
	}
	release := make(chan struct{})
	p.release = release
	p.playing = true
	p.refs = append(p.refs, audioRef)
	p.mu.Unlock()

	p.publish(true)
	defer func() {
		p.mu.Lock()
		p.playing = false
		p.release = nil
		p.mu.Unlock()
		p.publish(false)
	}()

	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases a blocked Play and counts the call.
func (p *Player) Stop() {
	p.mu.Lock()
	p.stops++
	release := p.release
	p.release = nil
	p.mu.Unlock()
	if release != nil {
		close(release)
	}
}

// Finish completes the current clip as if it played to the end.
func (p *Player) Finish() {
	p.mu.Lock()
	release := p.release
	p.release = nil
	p.mu.Unlock()
	if release != nil {
		close(release)
	}
}

// Playing returns the busy/idle transition stream.
func (p *Player) Playing() <-chan bool { return p.updates }

// IsPlaying reports whether a Play call is currently blocked.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// PlayedRefs returns every reference handed to Play.
func (p *Player) PlayedRefs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.refs...)
}

// StopCalls returns how many times Stop was called.
func (p *Player) StopCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func (p *Player) publish(playing bool) {
	select {
	case p.updates <- playing:
	default:
	}
}
