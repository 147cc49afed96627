// Package audio defines the primitive types and contracts for PCM capture
// within the EVA client.
//
// The two building blocks are:
//
//   - [Frame] — a fixed-length run of signed 16-bit mono samples read from a
//     capture source in one read cycle.
//   - [Source] — the microphone contract implemented by platform adapter
//     packages (e.g., audio/portaudio).
//
// This package lives under pkg/ because external code (alternative capture
// adapters, test harnesses) is expected to implement [Source].
package audio

import (
	"errors"
	"math"
	"time"
)

// Frame is one read cycle's worth of signed 16-bit mono PCM samples.
//
// Frames are ephemeral: produced by the capture loop, consumed by the
// segmenter within the same cycle, and never mutated after creation.
type Frame struct {
	// Samples holds the signed 16-bit samples in capture order.
	Samples []int16

	// SampleRate in Hz (e.g., 16000 for the EVA voice pipeline).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playing time covered by the frame's samples.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// RMS computes the root-mean-square energy of a run of samples. It is the
// scalar loudness signal the segmenter classifies against its threshold.
// An empty slice has zero energy.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Capture source failure reasons. Adapter packages translate their native
// open errors into one of these so callers can branch with [errors.Is].
var (
	// ErrPermissionDenied means the platform refused microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrDeviceUnavailable means no usable capture device was found or the
	// device is held by another process.
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")
)

// Source is the microphone contract. Implementations wrap a platform audio
// API and expose a pull-based stream of 16-bit mono PCM.
//
// The calling sequence is Open, repeated Read, Close. Read fills buf with up
// to len(buf) samples and returns the count; it returns [io.EOF] when the
// stream has ended. Close releases the device and is safe to call more than
// once; concurrent use beyond Close racing Read is not required.
type Source interface {
	// Open acquires the capture device. Failures are wrapped around
	// [ErrPermissionDenied] or [ErrDeviceUnavailable].
	Open() error

	// Read blocks until it has filled buf with captured samples and returns
	// the number of samples written.
	Read(buf []int16) (int, error)

	// Close releases the capture device deterministically.
	Close() error
}

// PCMBytes converts samples to raw little-endian 16-bit PCM, the byte layout
// used by the WAV container and the remote exchange.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// SamplesFromPCM converts raw little-endian 16-bit PCM back to samples.
// A trailing odd byte is ignored.
func SamplesFromPCM(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}
