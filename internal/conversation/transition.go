package conversation

import "strings"

// Transition is the machine's pure transition function: a total, synchronous
// mapping from (state, command) to (state, effect list).
//
// Totality is the design: any command that does not match the current
// phase's allowed set returns the state unchanged with no effects, so the
// guards double as idempotence (start-recording while Recording is absorbed,
// a second playback-finished is absorbed, and so on). No locking, no I/O, no
// clock — everything observable happens through the returned effects, which
// the caller dispatches asynchronously.
func Transition(s State, cmd Command) (State, []Effect) {
	switch c := cmd.(type) {
	case StartRecording:
		if s.Phase != PhaseIdle {
			return s, nil
		}
		return State{Phase: PhaseRecording}, []Effect{EffectBeginCapture{}}

	case StopRecording:
		if s.Phase != PhaseRecording {
			return s, nil
		}
		if c.Err != nil {
			return State{Phase: PhaseError, Err: c.Err.Error()}, []Effect{EffectEndCapture{}}
		}
		if len(c.WAV) == 0 {
			return State{Phase: PhaseError, Err: "recording produced no usable audio"}, []Effect{EffectEndCapture{}}
		}
		return State{Phase: PhaseProcessing}, []Effect{EffectEndCapture{}, EffectSendVoice{WAV: c.WAV}}

	case SendText:
		if s.Phase != PhaseIdle {
			return s, nil
		}
		text := strings.TrimSpace(c.Text)
		if text == "" {
			return s, nil
		}
		return State{Phase: PhaseProcessing}, []Effect{
			EffectAppendMessage{Text: text, FromUser: true},
			EffectSendText{Text: text},
		}

	case ExchangeSucceeded:
		if s.Phase != PhaseProcessing {
			return s, nil
		}
		var effects []Effect
		if c.Voice && c.Reply.RecognizedText != "" {
			effects = append(effects, EffectAppendMessage{Text: c.Reply.RecognizedText, FromUser: true})
		}
		effects = append(effects, EffectAppendMessage{
			Text:     c.Reply.Text,
			AudioRef: c.Reply.AudioRef,
			Emotion:  c.Reply.Emotion,
		})
		if c.Reply.AudioRef == "" {
			return State{Phase: PhaseIdle}, effects
		}
		return State{Phase: PhasePlaying}, append(effects, EffectPlay{AudioRef: c.Reply.AudioRef})

	case ExchangeFailed:
		if s.Phase != PhaseProcessing {
			return s, nil
		}
		return State{Phase: PhaseError, Err: c.Err.Error()}, nil

	case PlaybackFinished:
		if s.Phase != PhasePlaying {
			return s, nil
		}
		return State{Phase: PhaseIdle}, nil

	case PlaybackFailed:
		if s.Phase != PhasePlaying {
			return s, nil
		}
		return State{Phase: PhaseError, Err: c.Err.Error()}, nil

	case StopPlayback:
		if s.Phase != PhasePlaying {
			return s, nil
		}
		return State{Phase: PhaseIdle}, []Effect{EffectHaltPlayback{}}

	case Acknowledge:
		if s.Phase != PhaseError {
			return s, nil
		}
		return State{Phase: PhaseIdle}, nil

	default:
		return s, nil
	}
}
