// Package portaudio adapts the PortAudio default input device to the
// audio.Source contract.
//
// The adapter opens a mono int16 stream at the configured sample rate and
// exposes PortAudio's callback-free blocking read API as a pull-based sample
// stream. PortAudio's global initialise/terminate pair is reference-counted
// by the library itself, so each Source owns exactly one Initialize and one
// Terminate.
package portaudio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/evoxlab/eva/pkg/audio"
)

// Compile-time check that *Source satisfies [audio.Source].
var _ audio.Source = (*Source)(nil)

// Source captures 16-bit mono PCM from the default input device.
// Not safe for concurrent Reads; the capture loop is its only caller.
type Source struct {
	sampleRate      int
	framesPerBuffer int

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	closed bool
}

// New creates a Source for the given sample rate and read granularity.
// framesPerBuffer is the sample count handed to PortAudio per read; Read
// calls should use a buffer of the same length.
func New(sampleRate, framesPerBuffer int) (*Source, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("portaudio: sample rate %d must be positive", sampleRate)
	}
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("portaudio: frames per buffer %d must be positive", framesPerBuffer)
	}
	return &Source{
		sampleRate:      sampleRate,
		framesPerBuffer: framesPerBuffer,
	}, nil
}

// Open initialises PortAudio and starts the default input stream.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return nil
	}
	if s.closed {
		return audio.ErrDeviceUnavailable
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", classify(err))
	}

	s.buf = make([]int16, s.framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), s.framesPerBuffer, s.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("portaudio: open default stream: %w", classify(err))
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("portaudio: start stream: %w", classify(err))
	}

	s.stream = stream
	return nil
}

// Read blocks until PortAudio fills the internal buffer, then copies the
// samples into buf. buf should hold at least framesPerBuffer samples;
// shorter buffers receive a truncated copy.
func (s *Source) Read(buf []int16) (int, error) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return 0, audio.ErrDeviceUnavailable
	}
	if err := stream.Read(); err != nil {
		return 0, fmt.Errorf("portaudio: read: %w", err)
	}
	return copy(buf, s.buf), nil
}

// Close stops the stream and releases the device. Safe to call repeatedly.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.stream == nil {
		return nil
	}

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
	}
	s.stream = nil
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
	}
	return errors.Join(errs...)
}

// classify maps PortAudio host errors onto the audio package's capture
// failure sentinels so callers can branch without knowing PortAudio.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	case strings.Contains(msg, "no default input") || strings.Contains(msg, "device unavailable") || strings.Contains(msg, "no device"):
		return fmt.Errorf("%w: %v", audio.ErrDeviceUnavailable, err)
	default:
		return err
	}
}
