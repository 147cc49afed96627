// Package app wires the EVA voice client's subsystems into a running
// pipeline: microphone capture → segmentation → trigger evaluation →
// conversation machine → remote exchange → reply playback.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the concurrent loops until the context is
// cancelled. All cross-goroutine coordination happens through machine
// commands; no loop shares mutable state with another.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithExchange, WithPlayer). The providers are required — New
// fails fast when one is missing.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evoxlab/eva/internal/config"
	"github.com/evoxlab/eva/internal/conversation"
	"github.com/evoxlab/eva/internal/observe"
	"github.com/evoxlab/eva/internal/segment"
	"github.com/evoxlab/eva/internal/trigger"
	"github.com/evoxlab/eva/pkg/audio"
	"github.com/evoxlab/eva/pkg/exchange"
	"github.com/evoxlab/eva/pkg/playback"
)

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg *config.Config

	// Providers — injected via options.
	source audio.Source
	client exchange.Contract
	player playback.Player

	machine   *conversation.Machine
	segmenter *segment.Segmenter
	evaluator *trigger.Evaluator
	metrics   *observe.Metrics

	// flush asks the capture loop to close the open segment immediately,
	// implementing push-to-talk stop.
	flush chan struct{}

	// runCtx is the lifetime of Run; effect goroutines derive from it.
	runCtx context.Context
}

// Option is a functional option for New. Use these to inject providers and
// test doubles.
type Option func(*App)

// WithSource injects the microphone capture source.
func WithSource(s audio.Source) Option {
	return func(a *App) { a.source = s }
}

// WithExchange injects the remote exchange client.
func WithExchange(c exchange.Contract) Option {
	return func(a *App) { a.client = c }
}

// WithPlayer injects the reply playback driver.
func WithPlayer(p playback.Player) Option {
	return func(a *App) { a.player = p }
}

// WithMetrics injects a metrics instance instead of the process default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Misconfiguration is a
// startup failure: segmenter and trigger parameters are validated here and an
// invalid value aborts rather than degrading at runtime.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:   cfg,
		flush: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(a)
	}

	if a.source == nil {
		return nil, errors.New("app: audio source is required")
	}
	if a.client == nil {
		return nil, errors.New("app: exchange client is required")
	}
	if a.player == nil {
		return nil, errors.New("app: playback driver is required")
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	seg, err := segment.New(segment.Config{
		SampleRate:      cfg.Audio.SampleRate,
		FrameSize:       cfg.Audio.FrameSize,
		EnergyThreshold: cfg.VAD.EnergyThreshold,
		SilenceTimeout:  cfg.VAD.SilenceTimeout.Std(),
		MaxSegment:      cfg.VAD.MaxSegment.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: init segmenter: %w", err)
	}
	a.segmenter = seg

	eval, err := trigger.New(trigger.Config{
		MinDuration: cfg.Trigger.MinDuration.Std(),
		MaxDuration: cfg.Trigger.MaxDuration.Std(),
		Cooldown:    cfg.Trigger.Cooldown.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: init trigger: %w", err)
	}
	a.evaluator = eval

	a.machine = conversation.New(a.handleEffect,
		conversation.WithHistorySize(cfg.Client.HistorySize),
	)

	return a, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline and blocks until ctx is cancelled or a loop fails.
// Three loops run concurrently: the machine's command processor, the capture
// loop, and the playback watcher. The capture source is released on every
// exit path.
func (a *App) Run(ctx context.Context) error {
	a.runCtx = ctx

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.machine.Run(ctx) })
	g.Go(func() error { return a.captureLoop(ctx) })
	g.Go(func() error { return a.watchPlayback(ctx) })

	slog.Info("eva client running",
		"sample_rate", a.cfg.Audio.SampleRate,
		"frame_size", a.cfg.Audio.FrameSize,
	)
	return g.Wait()
}

// ─── Capture loop ────────────────────────────────────────────────────────────

// captureLoop reads PCM frames from the source and feeds them through the
// segmenter. Closed segments are handed to handleSegment; the rest of the
// pipeline only ever sees machine commands.
func (a *App) captureLoop(ctx context.Context) error {
	if err := a.source.Open(); err != nil {
		return fmt.Errorf("app: open capture source: %w", err)
	}
	defer func() {
		if err := a.source.Close(); err != nil {
			slog.Warn("capture source close failed", "err", err)
		}
	}()

	frameDur := time.Duration(a.cfg.Audio.FrameSize) * time.Second / time.Duration(a.cfg.Audio.SampleRate)
	buf := make([]int16, a.cfg.Audio.FrameSize)
	var ts time.Duration

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.flush:
			a.flushSegment(ctx)
			continue
		default:
		}

		n, err := a.source.Read(buf)
		if errors.Is(err, io.EOF) {
			a.flushSegment(ctx)
			slog.Info("capture stream ended")
			return nil
		}
		if err != nil {
			return fmt.Errorf("app: read capture frame: %w", err)
		}
		if n != a.cfg.Audio.FrameSize {
			// Short reads happen at device teardown; skip rather than feed
			// the segmenter a malformed frame.
			continue
		}

		frame := audio.Frame{
			Samples:    append([]int16(nil), buf...),
			SampleRate: a.cfg.Audio.SampleRate,
			Timestamp:  ts,
		}
		ts += frameDur

		ev, err := a.segmenter.Process(frame)
		if err != nil {
			return fmt.Errorf("app: segmenter: %w", err)
		}
		if ev.Type == segment.EventSegmentEnd {
			a.handleSegment(ctx, ev.Segment)
		}
	}
}

// flushSegment force-closes the open segment, if any, and routes the result.
// Used for push-to-talk stop and end-of-stream. With nothing open while the
// machine is Recording, an empty StopRecording is dispatched so the machine
// surfaces the empty-capture error.
func (a *App) flushSegment(ctx context.Context) {
	if ev, ok := a.segmenter.Flush(); ok {
		a.handleSegment(ctx, ev.Segment)
		return
	}
	if a.machine.State().Phase == conversation.PhaseRecording {
		a.machine.Dispatch(conversation.StopRecording{})
	}
}

// handleSegment routes one closed segment according to the current phase.
//
// While Recording, the segment is the awaited utterance: it is encoded as a
// WAV clip and delivered to the machine. While Idle, the segment is offered
// to the trigger evaluator; acceptance arms the machine for the next
// utterance. In any other phase the segment is dropped.
func (a *App) handleSegment(ctx context.Context, seg *segment.Segment) {
	a.metrics.RecordSegment(ctx, seg.Duration())

	switch a.machine.State().Phase {
	case conversation.PhaseRecording:
		wav, err := audio.EncodeWAVBytes(seg.PCM(), seg.SampleRate(), 1, 16)
		a.machine.Dispatch(conversation.StopRecording{WAV: wav, Err: err})

	case conversation.PhaseIdle:
		_, reason, ok := a.evaluator.Offer(seg)
		if !ok {
			a.metrics.RecordTriggerDecision(ctx, string(reason))
			slog.Debug("segment discarded",
				"reason", reason,
				"duration", seg.Duration(),
			)
			return
		}
		a.metrics.RecordTriggerDecision(ctx, "accepted")
		slog.Info("wake trigger accepted", "duration", seg.Duration())
		a.machine.Dispatch(conversation.StartRecording{})

	default:
		slog.Debug("segment dropped, pipeline busy",
			"phase", a.machine.State().Phase,
			"duration", seg.Duration(),
		)
	}
}

// ─── Effects ─────────────────────────────────────────────────────────────────

// handleEffect executes one effect requested by the machine. Runs on the
// machine's processor goroutine, so anything slow is launched asynchronously
// and reports back via Dispatch.
func (a *App) handleEffect(eff conversation.Effect) {
	switch e := eff.(type) {
	case conversation.EffectBeginCapture:
		// The microphone is already streaming for wake detection; entering
		// Recording only changes how the next closed segment is routed.
		slog.Info("listening for command")

	case conversation.EffectEndCapture:
		slog.Debug("capture window closed")

	case conversation.EffectSendVoice:
		go a.sendVoice(e.WAV)

	case conversation.EffectSendText:
		go a.sendText(e.Text)

	case conversation.EffectPlay:
		go a.play(e.AudioRef)

	case conversation.EffectHaltPlayback:
		a.player.Stop()

	case conversation.EffectAppendMessage:
		// Recorded by the machine's own log.
	}
}

// sendVoice runs one voice exchange and reports the outcome to the machine.
func (a *App) sendVoice(wav []byte) {
	ctx, cancel := context.WithTimeout(a.runCtx, a.cfg.Server.RequestTimeout.Std())
	defer cancel()

	start := time.Now()
	reply, err := a.client.SendVoice(ctx, wav, a.cfg.Server.UserID)
	if err != nil {
		a.metrics.RecordExchangeError(ctx, errorKind(err))
		slog.Error("voice exchange failed", "err", err)
		a.machine.Dispatch(conversation.ExchangeFailed{Err: err})
		return
	}
	a.metrics.RecordExchange(ctx, "voice", time.Since(start))
	slog.Info("voice exchange completed",
		"recognized", reply.RecognizedText,
		"emotion", reply.Emotion,
		"took", time.Since(start),
	)
	a.machine.Dispatch(conversation.ExchangeSucceeded{Reply: reply, Voice: true})
}

// sendText runs one text exchange and reports the outcome to the machine.
func (a *App) sendText(text string) {
	ctx, cancel := context.WithTimeout(a.runCtx, a.cfg.Server.RequestTimeout.Std())
	defer cancel()

	start := time.Now()
	reply, err := a.client.SendText(ctx, text, a.cfg.Server.UserID)
	if err != nil {
		a.metrics.RecordExchangeError(ctx, errorKind(err))
		slog.Error("text exchange failed", "err", err)
		a.machine.Dispatch(conversation.ExchangeFailed{Err: err})
		return
	}
	a.metrics.RecordExchange(ctx, "text", time.Since(start))
	a.machine.Dispatch(conversation.ExchangeSucceeded{Reply: reply})
}

// play plays one reply clip and reports completion or failure.
func (a *App) play(audioRef string) {
	start := time.Now()
	err := a.player.Play(a.runCtx, audioRef)
	a.metrics.PlaybackDuration.Record(a.runCtx, time.Since(start).Seconds())

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("playback failed", "ref", audioRef, "err", err)
		a.machine.Dispatch(conversation.PlaybackFailed{Err: err})
		return
	}
	a.machine.Dispatch(conversation.PlaybackFinished{})
}

// watchPlayback keeps the trigger quiet around reply playback so the
// client's own audio, picked up by the microphone, cannot re-trigger it.
func (a *App) watchPlayback(ctx context.Context) error {
	cooldown := a.cfg.Trigger.Cooldown.Std()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case playing, ok := <-a.player.Playing():
			if !ok {
				return nil
			}
			a.evaluator.Suppress(cooldown)
			slog.Debug("playback state", "playing", playing)
		}
	}
}

// errorKind extracts the exchange error kind for metrics.
func errorKind(err error) string {
	var xerr *exchange.Error
	if errors.As(err, &xerr) {
		return string(xerr.Kind)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return string(exchange.KindTimeout)
	}
	return "unknown"
}

// ─── External controls ───────────────────────────────────────────────────────

// StartRecording begins a push-to-talk capture. Outside Idle it is absorbed.
func (a *App) StartRecording() {
	a.machine.Dispatch(conversation.StartRecording{})
}

// StopRecording ends a push-to-talk capture: the open segment is closed
// immediately and becomes the utterance. Outside Recording it is absorbed.
func (a *App) StopRecording() {
	select {
	case a.flush <- struct{}{}:
	default:
	}
}

// SendText submits a typed message. Outside Idle, or blank, it is absorbed.
func (a *App) SendText(text string) {
	a.machine.Dispatch(conversation.SendText{Text: text})
}

// StopPlayback halts the current reply clip. Outside Playing it is absorbed.
func (a *App) StopPlayback() {
	a.machine.Dispatch(conversation.StopPlayback{})
}

// Acknowledge clears a surfaced error. Outside Error it is absorbed.
func (a *App) Acknowledge() {
	a.machine.Dispatch(conversation.Acknowledge{})
}

// State returns the current conversation state.
func (a *App) State() conversation.State {
	return a.machine.State()
}

// History returns up to n recent messages, oldest first.
func (a *App) History(n int) []conversation.Message {
	return a.machine.History(n)
}

// Subscribe returns the phase-change stream and its cancel function.
func (a *App) Subscribe() (<-chan conversation.Change, func()) {
	return a.machine.Subscribe()
}
