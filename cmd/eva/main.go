// Command eva is the desktop voice client for the EVA assistant service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evoxlab/eva/internal/app"
	"github.com/evoxlab/eva/internal/config"
	"github.com/evoxlab/eva/internal/conversation"
	"github.com/evoxlab/eva/internal/health"
	"github.com/evoxlab/eva/internal/observe"
	"github.com/evoxlab/eva/pkg/audio/portaudio"
	"github.com/evoxlab/eva/pkg/exchange"
	beepplayer "github.com/evoxlab/eva/pkg/playback/beep"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to an optional dotenv file")
	flag.Parse()

	// ── Dotenv (optional) ──────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "eva: load %q: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "eva: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "eva: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Client.LogLevel))

	slog.Info("eva starting",
		"version", version,
		"config", *configPath,
		"server", cfg.Server.BaseURL,
		"log_level", cfg.Client.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "eva",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	client, err := exchange.New(cfg.Server.BaseURL,
		cfg.Server.ConnectTimeout.Std(),
		cfg.Server.RequestTimeout.Std(),
	)
	if err != nil {
		slog.Error("failed to create exchange client", "err", err)
		return 1
	}
	// The breaker fails interactions fast while the service is down; health
	// probes keep using the raw client so /readyz reflects real reachability.
	guarded := exchange.NewBreaker(client, exchange.BreakerConfig{})

	source, err := portaudio.New(cfg.Audio.SampleRate, cfg.Audio.FrameSize)
	if err != nil {
		slog.Error("failed to create capture source", "err", err)
		return 1
	}

	player := beepplayer.New(
		beepplayer.WithFetchTimeout(cfg.Server.RequestTimeout.Std()),
	)

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg,
		app.WithSource(source),
		app.WithExchange(guarded),
		app.WithPlayer(player),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Health + metrics listener (optional) ──────────────────────────────────
	if cfg.Client.ListenAddr != "" {
		mux := http.NewServeMux()
		health.New(health.ExchangeChecker(client)).Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())

		srv := &http.Server{
			Addr:              cfg.Client.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("health/metrics listener started", "addr", cfg.Client.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("listener error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("listener shutdown error", "err", err)
			}
		}()
	}

	// ── Console phase feed ────────────────────────────────────────────────────
	changes, cancelSub := application.Subscribe()
	defer cancelSub()
	go watchPhases(ctx, application, changes)

	slog.Info("client ready — say the wake phrase or press Ctrl+C to quit")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// errorDwell is how long a surfaced error stays on screen before the
// headless client acknowledges it and returns to listening.
const errorDwell = 3 * time.Second

// watchPhases surfaces phase transitions on the console and clears errors
// after a short dwell, since the headless client has no UI to acknowledge
// them.
func watchPhases(ctx context.Context, application *app.App, changes <-chan conversation.Change) {
	metrics := observe.DefaultMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			metrics.RecordPhaseTransition(ctx, ch.Old.Phase.String(), ch.New.Phase.String())
			if ch.New.Phase == conversation.PhaseError {
				slog.Error("conversation error", "err", ch.New.Err)
				go func() {
					select {
					case <-ctx.Done():
					case <-time.After(errorDwell):
						application.Acknowledge()
					}
				}()
				continue
			}
			slog.Info("phase changed",
				"from", ch.Old.Phase,
				"to", ch.New.Phase,
				"command", ch.Command,
			)
		}
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
