// Package playback defines the reply-audio playback contract.
package playback

import "context"

// Player plays remote reply audio through the local output device.
//
// Implementations publish their busy/idle transitions on the Playing
// stream: true when playback starts, false when it ends for any reason
// (completion, Stop, failure). At most one clip plays at a time.
type Player interface {
	// Play fetches and plays the referenced audio, blocking until playback
	// ends or ctx is cancelled. A cancelled context stops the audio.
	Play(ctx context.Context, audioRef string) error

	// Stop halts the current clip. Calling Stop while nothing is playing
	// is a no-op.
	Stop()

	// Playing is the state-change stream. The channel is buffered; slow
	// readers lose intermediate transitions, never the player's liveness.
	Playing() <-chan bool
}
