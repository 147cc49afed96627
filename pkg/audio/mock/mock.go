// Package mock provides a scripted test double for the audio package's
// Source interface.
//
// Use Source to feed a predetermined sample stream to the capture loop
// without a microphone. Read drains Script in order; when the script is
// exhausted Read returns io.EOF, which the capture loop treats as
// end-of-stream.
package mock

import (
	"io"
	"sync"
)

// Source is a scripted implementation of audio.Source.
type Source struct {
	mu sync.Mutex

	// Script holds the samples Read hands out, drained front to back.
	Script []int16

	// OpenErr, if non-nil, is returned from Open.
	OpenErr error

	// ReadErr, if non-nil, is returned from Read once the script is exhausted
	// instead of io.EOF.
	ReadErr error

	// OpenCalls and CloseCalls count lifecycle invocations.
	OpenCalls  int
	CloseCalls int

	closed bool
}

// Open records the call and returns OpenErr.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls++
	return s.OpenErr
}

// Read copies the next len(buf) scripted samples into buf. A short final
// chunk is returned with its actual count; after the script is drained Read
// returns ReadErr if set, io.EOF otherwise.
func (s *Source) Read(buf []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.EOF
	}
	if len(s.Script) == 0 {
		if s.ReadErr != nil {
			return 0, s.ReadErr
		}
		return 0, io.EOF
	}

	n := copy(buf, s.Script)
	s.Script = s.Script[n:]
	return n, nil
}

// Close records the call. Reads after Close return io.EOF.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	s.closed = true
	return nil
}
