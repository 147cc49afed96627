package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evoxlab/eva/pkg/exchange"
)

// Message is an immutable record of one conversational turn.
type Message struct {
	// ID is a unique identifier assigned on append.
	ID string

	// Text is the turn's content.
	Text string

	// FromUser distinguishes user turns from assistant turns.
	FromUser bool

	// CreatedAt records when the turn was appended.
	CreatedAt time.Time

	// AudioRef is the reply audio reference, if any.
	AudioRef string

	// Emotion is the turn's emotion tag; neutral unless the server said
	// otherwise.
	Emotion exchange.Emotion
}

// Log is the append-only, bounded conversation history. Once the cap is
// reached the oldest entries are evicted. Persistence beyond this window is
// an external collaborator's concern.
//
// All methods are safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []Message
	maxSize int
}

// NewLog creates a Log retaining at most maxSize messages.
func NewLog(maxSize int) *Log {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Log{
		entries: make([]Message, 0, maxSize),
		maxSize: maxSize,
	}
}

// Append records a turn and returns the stored message with its assigned
// identifier and timestamp.
func (l *Log) Append(text string, fromUser bool, audioRef string, emotion exchange.Emotion) Message {
	if emotion == "" {
		emotion = exchange.EmotionNeutral
	}
	msg := Message{
		ID:        uuid.NewString(),
		Text:      text,
		FromUser:  fromUser,
		CreatedAt: time.Now(),
		AudioRef:  audioRef,
		Emotion:   emotion,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, msg)
	if len(l.entries) > l.maxSize {
		// Copy to a fresh backing array so evicted entries can be collected.
		fresh := make([]Message, l.maxSize)
		copy(fresh, l.entries[len(l.entries)-l.maxSize:])
		l.entries = fresh
	}
	return msg
}

// Recent returns up to n messages in chronological order (oldest first).
// n ≤ 0 returns everything retained.
func (l *Log) Recent(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Message, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Len returns the number of retained messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
