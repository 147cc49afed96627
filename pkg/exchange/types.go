package exchange

import "fmt"

// Emotion is the closed set of reply emotion tags understood by the client.
// The server sends free-form strings; [ParseEmotion] maps anything
// unrecognised to [EmotionNeutral] so display-layer concerns never leak into
// the pipeline.
type Emotion string

const (
	EmotionNeutral    Emotion = "neutral"
	EmotionFriendly   Emotion = "friendly"
	EmotionSupportive Emotion = "supportive"
	EmotionPlayful    Emotion = "playful"
	EmotionConcerned  Emotion = "concerned"
	EmotionExcited    Emotion = "excited"
	EmotionCalm       Emotion = "calm"
)

// ParseEmotion maps a wire emotion tag to the closed enumeration, falling
// back to [EmotionNeutral] for unknown or empty input.
func ParseEmotion(s string) Emotion {
	switch Emotion(s) {
	case EmotionFriendly, EmotionSupportive, EmotionPlayful,
		EmotionConcerned, EmotionExcited, EmotionCalm, EmotionNeutral:
		return Emotion(s)
	default:
		return EmotionNeutral
	}
}

// Reply is the structured outcome of a successful exchange.
type Reply struct {
	// RecognizedText is what the server heard. Voice path only; empty for
	// text exchanges.
	RecognizedText string

	// Text is the assistant's reply.
	Text string

	// AudioRef is the absolute URL of the synthesized reply audio. Empty
	// when the server produced no audio.
	AudioRef string

	// Emotion is the reply's emotion tag, already normalised through
	// [ParseEmotion].
	Emotion Emotion
}

// Health is the server's self-reported status.
type Health struct {
	Status  string
	Version string
}

// Kind distinguishes the failure classes an exchange can produce.
type Kind string

const (
	// KindNetwork covers connection failures: refused, reset, DNS.
	KindNetwork Kind = "network"

	// KindTimeout covers connect and read deadline expiry.
	KindTimeout Kind = "timeout"

	// KindServer covers responses the server produced but the client
	// cannot use: HTTP error status or a malformed/unsuccessful body.
	KindServer Kind = "server"
)

// Error is the tagged failure returned by every client method. It never
// escapes as a panic; callers branch on Kind.
type Error struct {
	Kind Kind

	// Op names the failed operation: "send voice", "send text", "check health".
	Op string

	// Err is the underlying cause, if any.
	Err error

	// Detail is a human-readable description suitable for the Error phase.
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("exchange: %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("exchange: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
