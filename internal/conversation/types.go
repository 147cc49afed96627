package conversation

import "github.com/evoxlab/eva/pkg/exchange"

// Phase is the single authoritative interaction state. Exactly one phase is
// active at any instant; every collaborator consults it before acting.
type Phase int

const (
	// PhaseIdle means nothing is in flight; recording and text input are
	// both allowed.
	PhaseIdle Phase = iota

	// PhaseRecording means the capture pipeline is accumulating an utterance.
	PhaseRecording

	// PhaseProcessing means exactly one remote exchange is outstanding.
	PhaseProcessing

	// PhasePlaying means the reply audio is being played back.
	PhasePlaying

	// PhaseError means a failure was surfaced and awaits acknowledgment.
	PhaseError
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseProcessing:
		return "processing"
	case PhasePlaying:
		return "playing"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a phase plus the error message that accompanies [PhaseError].
// Err is empty in every other phase.
type State struct {
	Phase Phase
	Err   string
}

// Command is the closed set of inputs the state machine accepts. Commands
// not matching the current phase's allowed set are absorbed as no-ops; the
// machine never rejects with an error.
type Command interface{ isCommand() }

// StartRecording asks the machine to begin capturing an utterance.
// Allowed from Idle only.
type StartRecording struct{}

// StopRecording delivers the captured utterance (or the capture failure)
// and asks for a voice exchange. Allowed from Recording only.
type StopRecording struct {
	// WAV is the encoded utterance. Empty means the capture produced no
	// usable audio.
	WAV []byte

	// Err is the capture failure, if any.
	Err error
}

// SendText submits a typed message for a text exchange. Allowed from Idle;
// blank text is absorbed.
type SendText struct {
	Text string
}

// ExchangeSucceeded delivers the remote reply. Allowed from Processing only.
type ExchangeSucceeded struct {
	Reply *exchange.Reply

	// Voice marks a voice-path exchange, whose reply carries the
	// recognized user text.
	Voice bool
}

// ExchangeFailed delivers the remote failure. Allowed from Processing only.
type ExchangeFailed struct {
	Err error
}

// PlaybackFinished reports that reply playback ran to completion. Allowed
// from Playing; repeats are absorbed.
type PlaybackFinished struct{}

// PlaybackFailed reports that reply playback broke down. Allowed from
// Playing only.
type PlaybackFailed struct {
	Err error
}

// StopPlayback is the user-initiated playback halt. Allowed from Playing;
// calling it from Idle is a safe no-op.
type StopPlayback struct{}

// Acknowledge clears a surfaced error. Allowed from Error only.
type Acknowledge struct{}

func (StartRecording) isCommand()    {}
func (StopRecording) isCommand()     {}
func (SendText) isCommand()          {}
func (ExchangeSucceeded) isCommand() {}
func (ExchangeFailed) isCommand()    {}
func (PlaybackFinished) isCommand()  {}
func (PlaybackFailed) isCommand()    {}
func (StopPlayback) isCommand()      {}
func (Acknowledge) isCommand()       {}

// commandName returns a short label for logging and metrics.
func commandName(cmd Command) string {
	switch cmd.(type) {
	case StartRecording:
		return "start-recording"
	case StopRecording:
		return "stop-recording"
	case SendText:
		return "send-text"
	case ExchangeSucceeded:
		return "exchange-succeeded"
	case ExchangeFailed:
		return "exchange-failed"
	case PlaybackFinished:
		return "playback-finished"
	case PlaybackFailed:
		return "playback-failed"
	case StopPlayback:
		return "stop-playback"
	case Acknowledge:
		return "acknowledge"
	default:
		return "unknown"
	}
}

// Effect is the closed set of side effects a transition can request. The
// transition function only names them; the machine's command processor
// hands them to the app for asynchronous execution.
type Effect interface{ isEffect() }

// EffectBeginCapture starts the capture pipeline.
type EffectBeginCapture struct{}

// EffectEndCapture releases the capture pipeline.
type EffectEndCapture struct{}

// EffectSendVoice starts the single in-flight voice exchange.
type EffectSendVoice struct {
	WAV []byte
}

// EffectSendText starts the single in-flight text exchange.
type EffectSendText struct {
	Text string
}

// EffectAppendMessage records one conversational turn.
type EffectAppendMessage struct {
	Text     string
	FromUser bool
	AudioRef string
	Emotion  exchange.Emotion
}

// EffectPlay starts playback of the reply audio.
type EffectPlay struct {
	AudioRef string
}

// EffectHaltPlayback stops playback immediately.
type EffectHaltPlayback struct{}

func (EffectBeginCapture) isEffect()  {}
func (EffectEndCapture) isEffect()    {}
func (EffectSendVoice) isEffect()     {}
func (EffectSendText) isEffect()      {}
func (EffectAppendMessage) isEffect() {}
func (EffectPlay) isEffect()          {}
func (EffectHaltPlayback) isEffect()  {}
