package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/evoxlab/eva/internal/config"
)

const minimalYAML = `
server:
  base_url: http://localhost:8000
  user_id: desktop-1
`

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("audio.sample_rate = %d, want default 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameSize != 320 {
		t.Errorf("audio.frame_size = %d, want default 320", cfg.Audio.FrameSize)
	}
	if got := cfg.VAD.SilenceTimeout.Std(); got != 1500*time.Millisecond {
		t.Errorf("vad.silence_timeout = %s, want default 1.5s", got)
	}
	if got := cfg.Trigger.Cooldown.Std(); got != 3*time.Second {
		t.Errorf("trigger.cooldown = %s, want default 3s", got)
	}
	if cfg.Client.LogLevel != config.LogInfo {
		t.Errorf("client.log_level = %q, want default info", cfg.Client.LogLevel)
	}
	if cfg.Client.HistorySize != 50 {
		t.Errorf("client.history_size = %d, want default 50", cfg.Client.HistorySize)
	}
}

func TestLoadFromReader_ParsesDurations(t *testing.T) {
	yaml := `
server:
  base_url: http://localhost:8000
  user_id: desktop-1
  request_timeout: 45s
vad:
  energy_threshold: 750
  silence_timeout: 2s
trigger:
  min_duration: 250ms
  max_duration: 1.2s
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.Server.RequestTimeout.Std(); got != 45*time.Second {
		t.Errorf("server.request_timeout = %s, want 45s", got)
	}
	if got := cfg.VAD.SilenceTimeout.Std(); got != 2*time.Second {
		t.Errorf("vad.silence_timeout = %s, want 2s", got)
	}
	if got := cfg.Trigger.MinDuration.Std(); got != 250*time.Millisecond {
		t.Errorf("trigger.min_duration = %s, want 250ms", got)
	}
	if got := cfg.Trigger.MaxDuration.Std(); got != 1200*time.Millisecond {
		t.Errorf("trigger.max_duration = %s, want 1.2s", got)
	}
}

func TestLoadFromReader_RejectsMalformedDuration(t *testing.T) {
	yaml := `
server:
  base_url: http://localhost:8000
  user_id: desktop-1
vad:
  silence_timeout: "soon"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for malformed duration, got nil")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("error should mention invalid duration, got: %v", err)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	yaml := minimalYAML + `
wake_word: eva
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_MissingServerIdentity(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("client:\n  log_level: info\n"))
	if err == nil {
		t.Fatal("expected error for missing server settings, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "server.base_url") {
		t.Errorf("error should mention server.base_url, got: %v", err)
	}
	if !strings.Contains(errStr, "server.user_id") {
		t.Errorf("error should mention server.user_id, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	yaml := `
server:
  base_url: http://localhost:8000
  user_id: desktop-1
audio:
  sample_rate: -1
vad:
  energy_threshold: -5
trigger:
  min_duration: 2s
  max_duration: 1s
client:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{
		"audio.sample_rate",
		"vad.energy_threshold",
		"trigger.max_duration",
		"client.log_level",
	} {
		if !strings.Contains(errStr, want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoadFromReader_EnvOverrides(t *testing.T) {
	t.Setenv("EVA_SERVER_URL", "http://eva.internal:8000")
	t.Setenv("EVA_USER_ID", "env-user")

	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.BaseURL != "http://eva.internal:8000" {
		t.Errorf("server.base_url = %q, want env override", cfg.Server.BaseURL)
	}
	if cfg.Server.UserID != "env-user" {
		t.Errorf("server.user_id = %q, want env override", cfg.Server.UserID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/eva.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
