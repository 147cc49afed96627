// Package segment turns a continuous PCM frame stream into discrete speech
// segments using short-time energy.
//
// The segmenter is a pure signal-classification stage: it decides where
// speech starts and ends, nothing more. Whether a closed segment matters
// (duration gating, cool-down suppression) is the trigger package's concern.
//
// Time inside the segmenter is frame time, not wall-clock time: every
// decision derives from the Timestamp carried by the frames themselves, so a
// given frame sequence always produces the same events regardless of how
// fast it is fed in.
package segment

import (
	"fmt"
	"time"

	"github.com/evoxlab/eva/pkg/audio"
)

// EventType classifies the per-frame outcome of [Segmenter.Process].
type EventType int

const (
	// EventSilence indicates the frame was inactive and changed nothing: no
	// segment open, or an open segment tolerating a sub-timeout pause.
	EventSilence EventType = iota

	// EventSegmentStart indicates an active frame opened a new segment.
	EventSegmentStart

	// EventSegmentContinue indicates an active frame was appended to the
	// open segment.
	EventSegmentContinue

	// EventSegmentEnd indicates the open segment was closed. The Segment
	// field of the event carries the closed segment.
	EventSegmentEnd
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventSilence:
		return "silence"
	case EventSegmentStart:
		return "segment-start"
	case EventSegmentContinue:
		return "segment-continue"
	case EventSegmentEnd:
		return "segment-end"
	default:
		return "unknown"
	}
}

// Event is the detection result for a single frame.
type Event struct {
	Type EventType

	// RMS is the frame's root-mean-square energy.
	RMS float64

	// Segment carries the closed segment on [EventSegmentEnd]; nil otherwise.
	// Ownership moves to the receiver — the segmenter keeps no reference.
	Segment *Segment
}

// Segment is a contiguous span of speech frames bounded by silence.
//
// While open it is owned exclusively by the segmenter; on close it is handed
// off whole inside an [EventSegmentEnd]. Its sample store is capped: once
// the configured maximum duration is exceeded, the oldest frame's worth of
// samples is evicted for each new frame appended.
type Segment struct {
	samples    []int16
	sampleRate int
	start      time.Duration
	end        time.Duration
}

// Duration returns the total captured duration of the segment, i.e. the
// playing time of the retained samples. Always in [0, Config.MaxSegment].
func (s *Segment) Duration() time.Duration {
	if s.sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(s.samples)) * time.Second / time.Duration(s.sampleRate)
}

// Start returns the stream timestamp of the oldest retained frame.
func (s *Segment) Start() time.Duration { return s.start }

// End returns the stream timestamp just past the newest retained frame.
func (s *Segment) End() time.Duration { return s.end }

// SampleRate returns the segment's sample rate in Hz.
func (s *Segment) SampleRate() int { return s.sampleRate }

// Samples returns the retained samples. The slice is the segment's backing
// store, not a copy; callers own it once the segment has been handed off.
func (s *Segment) Samples() []int16 { return s.samples }

// PCM returns the retained samples as raw little-endian 16-bit PCM, the
// layout expected by the WAV encoder.
func (s *Segment) PCM() []byte { return audio.PCMBytes(s.samples) }

// Config holds the segmenter's fixed parameters. All fields are required.
type Config struct {
	// SampleRate of the incoming frames in Hz.
	SampleRate int

	// FrameSize is the exact sample count of every frame. Frames of any
	// other length are a fatal configuration error.
	FrameSize int

	// EnergyThreshold is the minimum RMS for a frame to count as speech.
	EnergyThreshold float64

	// SilenceTimeout is how long energy must stay below the threshold
	// before an open segment is closed. Brief dips shorter than this are
	// tolerated as mid-utterance pauses.
	SilenceTimeout time.Duration

	// MaxSegment caps a segment's retained duration. Older samples are
	// evicted ring-buffer style once the cap is exceeded.
	MaxSegment time.Duration
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("segment: sample rate %d must be positive", c.SampleRate)
	}
	if c.FrameSize <= 0 {
		return fmt.Errorf("segment: frame size %d must be positive", c.FrameSize)
	}
	if c.EnergyThreshold <= 0 {
		return fmt.Errorf("segment: energy threshold %g must be positive", c.EnergyThreshold)
	}
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("segment: silence timeout %v must be positive", c.SilenceTimeout)
	}
	if c.MaxSegment <= 0 {
		return fmt.Errorf("segment: max segment %v must be positive", c.MaxSegment)
	}
	return nil
}

// state is the segmenter's internal two-state machine.
type state int

const (
	stateIdle state = iota
	stateCapturing
)

// Segmenter consumes frames one at a time and emits segment events.
// It is owned by a single capture goroutine and is not safe for concurrent
// use.
type Segmenter struct {
	cfg        Config
	frameDur   time.Duration
	maxSamples int

	state      state
	open       *Segment
	lastActive time.Duration
}

// New creates a Segmenter. Invalid configuration is a startup-time fatal
// error, returned here rather than surfacing at runtime.
func New(cfg Config) (*Segmenter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	frameDur := time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate)
	maxSamples := int(int64(cfg.MaxSegment) * int64(cfg.SampleRate) / int64(time.Second))
	if maxSamples < cfg.FrameSize {
		return nil, fmt.Errorf("segment: max segment %v is shorter than one frame (%v)", cfg.MaxSegment, frameDur)
	}

	return &Segmenter{
		cfg:        cfg,
		frameDur:   frameDur,
		maxSamples: maxSamples,
	}, nil
}

// Capturing reports whether a segment is currently open.
func (s *Segmenter) Capturing() bool { return s.state == stateCapturing }

// Process classifies one frame and advances the segmenter's state.
//
// A frame whose sample count differs from Config.FrameSize indicates a
// misconfigured capture pipeline and returns an error; no recoverable error
// path exists in signal processing itself.
func (s *Segmenter) Process(frame audio.Frame) (Event, error) {
	if len(frame.Samples) != s.cfg.FrameSize {
		return Event{}, fmt.Errorf("segment: frame has %d samples, configured frame size is %d", len(frame.Samples), s.cfg.FrameSize)
	}

	rms := audio.RMS(frame.Samples)
	active := rms > s.cfg.EnergyThreshold

	switch s.state {
	case stateIdle:
		if !active {
			return Event{Type: EventSilence, RMS: rms}, nil
		}
		s.open = &Segment{
			samples:    append([]int16(nil), frame.Samples...),
			sampleRate: s.cfg.SampleRate,
			start:      frame.Timestamp,
			end:        frame.Timestamp + s.frameDur,
		}
		s.lastActive = frame.Timestamp
		s.state = stateCapturing
		return Event{Type: EventSegmentStart, RMS: rms}, nil

	case stateCapturing:
		if active {
			s.append(frame)
			s.lastActive = frame.Timestamp
			return Event{Type: EventSegmentContinue, RMS: rms}, nil
		}
		// Inactive frames are never appended. Close once the silence has
		// lasted the full timeout; otherwise tolerate the pause.
		if frame.Timestamp-s.lastActive >= s.cfg.SilenceTimeout {
			return Event{Type: EventSegmentEnd, RMS: rms, Segment: s.close()}, nil
		}
		return Event{Type: EventSilence, RMS: rms}, nil

	default:
		return Event{}, fmt.Errorf("segment: invalid internal state %d", s.state)
	}
}

// Flush force-closes the open segment, if any. The capture loop calls this
// on end-of-stream so that a segment in progress is still delivered.
func (s *Segmenter) Flush() (Event, bool) {
	if s.state != stateCapturing {
		return Event{}, false
	}
	return Event{Type: EventSegmentEnd, Segment: s.close()}, true
}

// append adds a frame's samples to the open segment, evicting the oldest
// samples once the retained duration exceeds the cap.
func (s *Segmenter) append(frame audio.Frame) {
	s.open.samples = append(s.open.samples, frame.Samples...)
	s.open.end = frame.Timestamp + s.frameDur
	if over := len(s.open.samples) - s.maxSamples; over > 0 {
		s.open.samples = s.open.samples[over:]
		s.open.start += time.Duration(over) * time.Second / time.Duration(s.cfg.SampleRate)
	}
}

// close hands off the open segment and returns the segmenter to idle.
func (s *Segmenter) close() *Segment {
	seg := s.open
	s.open = nil
	s.state = stateIdle
	return seg
}
