package trigger

import (
	"testing"
	"time"

	"github.com/evoxlab/eva/internal/segment"
	"github.com/evoxlab/eva/pkg/audio"
)

// makeSegment produces a closed segment of the given duration by driving a
// real segmenter with active frames and flushing.
func makeSegment(t *testing.T, d time.Duration) *segment.Segment {
	t.Helper()

	seg, err := segment.New(segment.Config{
		SampleRate:      16000,
		FrameSize:       320,
		EnergyThreshold: 500,
		SilenceTimeout:  1500 * time.Millisecond,
		MaxSegment:      30 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	samples := make([]int16, 320)
	for i := range samples {
		samples[i] = 800
	}
	frames := int(d / (20 * time.Millisecond))
	var ts time.Duration
	for range frames {
		if _, err := seg.Process(audio.Frame{Samples: samples, SampleRate: 16000, Timestamp: ts}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ts += 20 * time.Millisecond
	}
	ev, ok := seg.Flush()
	if !ok {
		t.Fatal("no open segment to flush")
	}
	return ev.Segment
}

// testClock is a manually stepped time source.
type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newEvaluator(t *testing.T) (*Evaluator, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Unix(1000, 0)}
	e, err := New(DefaultConfig(), WithClock(clock.now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return e, clock
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero min", Config{MinDuration: 0, MaxDuration: time.Second, Cooldown: time.Second}},
		{"max below min", Config{MinDuration: time.Second, MaxDuration: 500 * time.Millisecond, Cooldown: time.Second}},
		{"zero cooldown", Config{MinDuration: 300 * time.Millisecond, MaxDuration: time.Second, Cooldown: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("want error, got nil")
			}
		})
	}
}

func TestOffer_DurationBand(t *testing.T) {
	t.Parallel()

	t.Run("too short never triggers", func(t *testing.T) {
		t.Parallel()
		e, _ := newEvaluator(t)
		_, reason, ok := e.Offer(makeSegment(t, 100*time.Millisecond))
		if ok {
			t.Fatal("segment below min duration triggered")
		}
		if reason != ReasonTooShort {
			t.Fatalf("reason: got %q, want %q", reason, ReasonTooShort)
		}
	})

	t.Run("too long never triggers", func(t *testing.T) {
		t.Parallel()
		e, _ := newEvaluator(t)
		_, reason, ok := e.Offer(makeSegment(t, 4*time.Second))
		if ok {
			t.Fatal("segment above max duration triggered")
		}
		if reason != ReasonTooLong {
			t.Fatalf("reason: got %q, want %q", reason, ReasonTooLong)
		}
	})

	t.Run("in-band triggers exactly once", func(t *testing.T) {
		t.Parallel()
		e, _ := newEvaluator(t)
		seg := makeSegment(t, time.Second)
		trig, _, ok := e.Offer(seg)
		if !ok {
			t.Fatal("in-band segment did not trigger")
		}
		if trig.Segment != seg {
			t.Fatal("trigger does not carry the offered segment")
		}
	})

	t.Run("discard does not arm cooldown", func(t *testing.T) {
		t.Parallel()
		e, _ := newEvaluator(t)
		if _, _, ok := e.Offer(makeSegment(t, 100*time.Millisecond)); ok {
			t.Fatal("short segment triggered")
		}
		if e.Suppressed() {
			t.Fatal("discarded segment armed the cooldown")
		}
		if _, _, ok := e.Offer(makeSegment(t, time.Second)); !ok {
			t.Fatal("in-band segment after a discard did not trigger")
		}
	})
}

func TestOffer_Cooldown(t *testing.T) {
	t.Parallel()

	e, clock := newEvaluator(t)

	if _, _, ok := e.Offer(makeSegment(t, time.Second)); !ok {
		t.Fatal("first in-band segment did not trigger")
	}
	if !e.Suppressed() {
		t.Fatal("cooldown not armed after trigger")
	}

	// Inside the 3 s window: in-band segments are discarded.
	clock.advance(2 * time.Second)
	_, reason, ok := e.Offer(makeSegment(t, time.Second))
	if ok {
		t.Fatal("segment inside cooldown triggered")
	}
	if reason != ReasonCooldown {
		t.Fatalf("reason: got %q, want %q", reason, ReasonCooldown)
	}

	// After expiry evaluation resumes.
	clock.advance(1500 * time.Millisecond)
	if e.Suppressed() {
		t.Fatal("cooldown still armed after expiry")
	}
	if _, _, ok := e.Offer(makeSegment(t, time.Second)); !ok {
		t.Fatal("segment after cooldown expiry did not trigger")
	}
}

func TestSuppress_ExtendsWindow(t *testing.T) {
	t.Parallel()

	e, clock := newEvaluator(t)

	// Playback start suppresses for its duration.
	e.Suppress(10 * time.Second)
	if _, _, ok := e.Offer(makeSegment(t, time.Second)); ok {
		t.Fatal("segment during suppression triggered")
	}

	// A shorter suppression never shrinks the window.
	e.Suppress(time.Second)
	clock.advance(5 * time.Second)
	if !e.Suppressed() {
		t.Fatal("later shorter Suppress shrank the window")
	}

	clock.advance(6 * time.Second)
	if e.Suppressed() {
		t.Fatal("suppression outlived its deadline")
	}
}
