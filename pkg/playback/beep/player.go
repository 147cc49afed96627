// Package beep plays reply audio through the default output device using
// the faiface/beep speaker.
package beep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/evoxlab/eva/pkg/playback"
)

var _ playback.Player = (*Player)(nil)

// maxClipBytes caps how much reply audio we are willing to buffer.
const maxClipBytes = 32 << 20

// Player fetches reply audio over HTTP and plays it through the speaker.
// One clip at a time; Play blocks until the clip ends.
type Player struct {
	http    *http.Client
	timeout time.Duration

	mu      sync.Mutex
	halt    chan struct{} // non-nil while a clip is playing
	updates chan bool

	initOnce  sync.Once
	initErr   error
	speakerSR beep.SampleRate
}

// Option configures a [Player].
type Option func(*Player)

// WithHTTPClient replaces the client used to fetch reply audio.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Player) { p.http = c }
}

// WithFetchTimeout bounds the audio download. The default is 30 seconds.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Player) { p.timeout = d }
}

// New creates a Player. The speaker device is claimed lazily on the first
// Play so that constructing a Player never touches audio hardware.
func New(opts ...Option) *Player {
	p := &Player{
		http:    &http.Client{},
		timeout: 30 * time.Second,
		updates: make(chan bool, 16),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Play downloads audioRef, decodes it and plays it to completion. It returns
// when the clip finishes, Stop is called, or ctx is cancelled.
func (p *Player) Play(ctx context.Context, audioRef string) error {
	streamer, format, err := p.fetch(ctx, audioRef)
	if err != nil {
		return err
	}
	defer streamer.Close()

	if err := p.initSpeaker(format.SampleRate); err != nil {
		return err
	}

	p.mu.Lock()
	if p.halt != nil {
		p.mu.Unlock()
		return fmt.Errorf("playback: already playing")
	}
	halt := make(chan struct{})
	p.halt = halt
	p.mu.Unlock()

	p.announce(true)
	defer func() {
		p.mu.Lock()
		p.halt = nil
		p.mu.Unlock()
		p.announce(false)
	}()

	done := make(chan struct{})
	stream := beep.Streamer(streamer)
	if format.SampleRate != p.speakerSR {
		stream = beep.Resample(4, format.SampleRate, p.speakerSR, stream)
	}
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-halt:
		speaker.Clear()
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Stop halts the current clip, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	halt := p.halt
	p.halt = nil
	p.mu.Unlock()
	if halt != nil {
		close(halt)
	}
}

// Playing returns the busy/idle transition stream.
func (p *Player) Playing() <-chan bool {
	return p.updates
}

// fetch downloads and decodes the referenced audio. The whole clip is read
// into memory before decoding; reply clips are short.
func (p *Player) fetch(ctx context.Context, audioRef string) (beep.StreamSeekCloser, beep.Format, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioRef, nil)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("playback: build request for %q: %w", audioRef, err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("playback: fetch %q: %w", audioRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, beep.Format{}, fmt.Errorf("playback: fetch %q: status %d", audioRef, resp.StatusCode)
	}

	body := readCloserNop{io.LimitReader(resp.Body, maxClipBytes)}

	switch clipKind(resp.Header.Get("Content-Type"), audioRef) {
	case "wav":
		streamer, format, err := wav.Decode(body)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("playback: decode wav %q: %w", audioRef, err)
		}
		return streamer, format, nil
	default:
		streamer, format, err := mp3.Decode(body)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("playback: decode mp3 %q: %w", audioRef, err)
		}
		return streamer, format, nil
	}
}

// initSpeaker claims the output device once. beep's speaker is process-global
// and resampling handles later clips with a different rate.
func (p *Player) initSpeaker(sr beep.SampleRate) error {
	p.initOnce.Do(func() {
		p.speakerSR = sr
		p.initErr = speaker.Init(sr, sr.N(100*time.Millisecond))
	})
	if p.initErr != nil {
		return fmt.Errorf("playback: init speaker: %w", p.initErr)
	}
	return nil
}

func (p *Player) announce(playing bool) {
	select {
	case p.updates <- playing:
	default:
		slog.Warn("playback: update stream full, dropping", "playing", playing)
	}
}

// clipKind resolves the decoder from the content type, falling back to the
// reference's extension.
func clipKind(contentType, audioRef string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "audio/wav", "audio/x-wav", "audio/wave":
			return "wav"
		case "audio/mpeg", "audio/mp3":
			return "mp3"
		}
	}
	if strings.HasSuffix(strings.ToLower(audioRef), ".wav") {
		return "wav"
	}
	return "mp3"
}

// readCloserNop satisfies the decoders' ReadCloser requirement over a
// LimitReader.
type readCloserNop struct{ io.Reader }

func (readCloserNop) Close() error { return nil }
