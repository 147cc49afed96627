package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/evoxlab/eva/internal/config"
	"github.com/evoxlab/eva/internal/conversation"
	"github.com/evoxlab/eva/pkg/audio"
	audiomock "github.com/evoxlab/eva/pkg/audio/mock"
	exchangemock "github.com/evoxlab/eva/pkg/exchange/mock"
	playbackmock "github.com/evoxlab/eva/pkg/playback/mock"

	"github.com/evoxlab/eva/pkg/exchange"
)

// testSource is a paced capture source: Read blocks until the test feeds a
// frame, which makes pipeline timing deterministic.
type testSource struct {
	frames chan []int16
}

func newTestSource() *testSource {
	return &testSource{frames: make(chan []int16)}
}

func (s *testSource) Open() error { return nil }

func (s *testSource) Read(buf []int16) (int, error) {
	frame, ok := <-s.frames
	if !ok {
		return 0, io.EOF
	}
	return copy(buf, frame), nil
}

func (s *testSource) Close() error { return nil }

// feed pushes n frames of constant amplitude, blocking until the capture
// loop has consumed each one.
func (s *testSource) feed(n int, amplitude int16, frameSize int) {
	frame := make([]int16, frameSize)
	for i := range frame {
		frame[i] = amplitude
	}
	for range n {
		s.frames <- frame
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			BaseURL:        "http://localhost:8000",
			UserID:         "test-user",
			ConnectTimeout: config.Duration(time.Second),
			RequestTimeout: config.Duration(5 * time.Second),
		},
		Audio: config.AudioConfig{SampleRate: 16000, FrameSize: 320},
		VAD: config.VADConfig{
			EnergyThreshold: 500,
			SilenceTimeout:  config.Duration(200 * time.Millisecond),
			MaxSegment:      config.Duration(10 * time.Second),
		},
		Trigger: config.TriggerConfig{
			MinDuration: config.Duration(100 * time.Millisecond),
			MaxDuration: config.Duration(2 * time.Second),
			Cooldown:    config.Duration(50 * time.Millisecond),
		},
		Client: config.ClientConfig{LogLevel: config.LogInfo, HistorySize: 50},
	}
}

// harness builds an App on mocks and runs it for the duration of the test.
type harness struct {
	app     *App
	source  *testSource
	client  *exchangemock.Client
	player  *playbackmock.Player
	changes <-chan conversation.Change
}

func newHarness(t *testing.T, client *exchangemock.Client) *harness {
	t.Helper()

	source := newTestSource()
	player := playbackmock.New()

	a, err := New(testConfig(),
		WithSource(source),
		WithExchange(client),
		WithPlayer(player),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	changes, cancelSub := a.Subscribe()
	t.Cleanup(cancelSub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx) //nolint:errcheck // returns ctx.Err() on cleanup

	return &harness{app: a, source: source, client: client, player: player, changes: changes}
}

func (h *harness) awaitPhase(t *testing.T, phase conversation.Phase) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if h.app.State().Phase == phase {
			return
		}
		select {
		case <-h.changes:
		case <-deadline:
			t.Fatalf("timed out waiting for phase %v, stuck in %v", phase, h.app.State().Phase)
		}
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	if _, err := New(cfg); err == nil {
		t.Error("New without providers should fail")
	}
	if _, err := New(cfg, WithSource(newTestSource()), WithExchange(&exchangemock.Client{})); err == nil {
		t.Error("New without a player should fail")
	}
}

func TestNew_RejectsInvalidPipelineConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.VAD.EnergyThreshold = -1

	_, err := New(cfg,
		WithSource(newTestSource()),
		WithExchange(&exchangemock.Client{}),
		WithPlayer(playbackmock.New()),
	)
	if err == nil {
		t.Fatal("New with a negative energy threshold should fail")
	}
}

func TestRun_SourceOpenFailure(t *testing.T) {
	t.Parallel()

	source := &audiomock.Source{OpenErr: errors.New("device busy")}
	a, err := New(testConfig(),
		WithSource(source),
		WithExchange(&exchangemock.Client{}),
		WithPlayer(playbackmock.New()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = a.Run(context.Background())
	if err == nil || !errors.Is(err, source.OpenErr) {
		t.Fatalf("Run: got %v, want the open error", err)
	}
}

func TestRun_SourceReadFailure(t *testing.T) {
	t.Parallel()

	readErr := errors.New("stream torn down")
	source := &audiomock.Source{
		Script:  make([]int16, 640), // two quiet frames, then the failure
		ReadErr: readErr,
	}
	a, err := New(testConfig(),
		WithSource(source),
		WithExchange(&exchangemock.Client{}),
		WithPlayer(playbackmock.New()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = a.Run(context.Background())
	if !errors.Is(err, readErr) {
		t.Fatalf("Run: got %v, want the read error", err)
	}
	if source.CloseCalls != 1 {
		t.Errorf("source close calls: got %d, want 1", source.CloseCalls)
	}
}

func TestWakeFlow_EndToEnd(t *testing.T) {
	t.Parallel()

	client := &exchangemock.Client{
		SendVoiceReply: &exchange.Reply{
			RecognizedText: "eva what time is it",
			Text:           "It is noon.",
			AudioRef:       "http://localhost:8000/static/audio/reply.mp3",
			Emotion:        exchange.EmotionFriendly,
		},
	}
	h := newHarness(t, client)
	frameSize := 320 // 20ms at 16kHz

	// Wake utterance: 500ms of speech, then enough silence to close it.
	h.source.feed(25, 800, frameSize)
	h.source.feed(12, 50, frameSize)
	h.awaitPhase(t, conversation.PhaseRecording)

	// Command utterance: 600ms of speech, then silence.
	h.source.feed(30, 900, frameSize)
	h.source.feed(12, 50, frameSize)
	h.awaitPhase(t, conversation.PhasePlaying)

	// The exchange saw a well-formed WAV clip for the command utterance.
	if len(client.SendVoiceCalls) != 1 {
		t.Fatalf("SendVoice calls: got %d, want 1", len(client.SendVoiceCalls))
	}
	call := client.SendVoiceCalls[0]
	if call.UserID != "test-user" {
		t.Errorf("user id: got %q", call.UserID)
	}
	info, err := audio.DecodeWAVHeader(bytes.NewReader(call.WAV))
	if err != nil {
		t.Fatalf("exchange payload is not a valid WAV clip: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("WAV format: %+v", info)
	}
	// 600ms of 16-bit mono at 16kHz.
	if got, want := info.DataBytes, 30*frameSize*2; got != want {
		t.Errorf("WAV payload: got %d bytes, want %d", got, want)
	}

	// Reply audio is playing; finishing it returns the pipeline to Idle.
	if refs := h.player.PlayedRefs(); len(refs) != 1 || refs[0] != "http://localhost:8000/static/audio/reply.mp3" {
		t.Fatalf("played refs: %v", refs)
	}
	h.player.Finish()
	h.awaitPhase(t, conversation.PhaseIdle)

	history := h.app.History(0)
	if len(history) != 2 {
		t.Fatalf("history: got %d messages, want 2", len(history))
	}
	if !history[0].FromUser || history[0].Text != "eva what time is it" {
		t.Errorf("first message: %+v", history[0])
	}
	if history[1].FromUser || history[1].Text != "It is noon." {
		t.Errorf("second message: %+v", history[1])
	}
}

func TestTextFlow(t *testing.T) {
	t.Parallel()

	client := &exchangemock.Client{
		SendTextReply: &exchange.Reply{Text: "Hello!", Emotion: exchange.EmotionPlayful},
	}
	h := newHarness(t, client)

	h.app.SendText("hi eva")

	// The Processing phase is transient, so wait for the observable result:
	// both turns in the history and the pipeline back at Idle.
	deadline := time.After(5 * time.Second)
	for len(h.app.History(0)) < 2 || h.app.State().Phase != conversation.PhaseIdle {
		select {
		case <-h.changes:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("history never reached 2 messages: %+v", h.app.History(0))
		}
	}

	if len(client.SendTextCalls) != 1 || client.SendTextCalls[0].Text != "hi eva" {
		t.Fatalf("SendText calls: %+v", client.SendTextCalls)
	}
	if h.player.IsPlaying() {
		t.Error("no reply audio, nothing should be playing")
	}
}

func TestExchangeFailure_SurfacesAndRecovers(t *testing.T) {
	t.Parallel()

	client := &exchangemock.Client{
		SendTextErr: &exchange.Error{Kind: exchange.KindTimeout, Op: "send text", Err: errors.New("deadline exceeded")},
	}
	h := newHarness(t, client)

	h.app.SendText("hello?")
	h.awaitPhase(t, conversation.PhaseError)

	if h.app.State().Err == "" {
		t.Error("error phase carries no message")
	}

	h.app.Acknowledge()
	h.awaitPhase(t, conversation.PhaseIdle)
}

func TestPushToTalk(t *testing.T) {
	t.Parallel()

	client := &exchangemock.Client{
		SendVoiceReply: &exchange.Reply{RecognizedText: "take a note", Text: "Noted."},
	}
	h := newHarness(t, client)
	frameSize := 320

	h.app.StartRecording()
	h.awaitPhase(t, conversation.PhaseRecording)

	// 400ms of speech, stop, then one more frame so the capture loop
	// observes the flush request.
	h.source.feed(20, 700, frameSize)
	h.app.StopRecording()
	h.source.feed(1, 50, frameSize)

	h.awaitPhase(t, conversation.PhaseIdle)
	if len(client.SendVoiceCalls) != 1 {
		t.Fatalf("SendVoice calls: got %d, want 1", len(client.SendVoiceCalls))
	}
}

func TestPlaybackFailure_SurfacesError(t *testing.T) {
	t.Parallel()

	client := &exchangemock.Client{
		SendTextReply: &exchange.Reply{Text: "ok", AudioRef: "http://srv/broken.mp3"},
	}
	h := newHarness(t, client)
	h.player.PlayErr = errors.New("speaker unavailable")

	h.app.SendText("play something")
	h.awaitPhase(t, conversation.PhaseError)

	h.app.Acknowledge()
	h.awaitPhase(t, conversation.PhaseIdle)
}

func TestStopPlayback_HaltsPlayer(t *testing.T) {
	t.Parallel()

	client := &exchangemock.Client{
		SendTextReply: &exchange.Reply{Text: "long story", AudioRef: "http://srv/story.mp3"},
	}
	h := newHarness(t, client)

	h.app.SendText("tell me a story")
	h.awaitPhase(t, conversation.PhasePlaying)

	h.app.StopPlayback()
	h.awaitPhase(t, conversation.PhaseIdle)

	if h.player.StopCalls() == 0 {
		t.Error("player was never told to stop")
	}
}
