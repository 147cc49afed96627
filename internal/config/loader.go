package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [applyDefaults] when the file leaves a field unset.
const (
	defaultSampleRate     = 16000
	defaultFrameSize      = 320
	defaultThreshold      = 500
	defaultSilenceTimeout = 1500 * time.Millisecond
	defaultMaxSegment     = 10 * time.Second
	defaultMinTrigger     = 300 * time.Millisecond
	defaultMaxTrigger     = 1500 * time.Millisecond
	defaultCooldown       = 3 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultHistorySize    = 50
)

// Environment variables that override file values, so deployments can keep
// the server address and identity out of the config file.
const (
	envBaseURL = "EVA_SERVER_URL"
	envUserID  = "EVA_USER_ID"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv(envBaseURL); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv(envUserID); v != "" {
		cfg.Server.UserID = v
	}
}

// applyDefaults fills unset fields with working values.
func applyDefaults(cfg *Config) {
	if cfg.Server.ConnectTimeout == 0 {
		cfg.Server.ConnectTimeout = Duration(defaultConnectTimeout)
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = defaultSampleRate
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = defaultFrameSize
	}
	if cfg.VAD.EnergyThreshold == 0 {
		cfg.VAD.EnergyThreshold = defaultThreshold
	}
	if cfg.VAD.SilenceTimeout == 0 {
		cfg.VAD.SilenceTimeout = Duration(defaultSilenceTimeout)
	}
	if cfg.VAD.MaxSegment == 0 {
		cfg.VAD.MaxSegment = Duration(defaultMaxSegment)
	}
	if cfg.Trigger.MinDuration == 0 {
		cfg.Trigger.MinDuration = Duration(defaultMinTrigger)
	}
	if cfg.Trigger.MaxDuration == 0 {
		cfg.Trigger.MaxDuration = Duration(defaultMaxTrigger)
	}
	if cfg.Trigger.Cooldown == 0 {
		cfg.Trigger.Cooldown = Duration(defaultCooldown)
	}
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = LogInfo
	}
	if cfg.Client.HistorySize == 0 {
		cfg.Client.HistorySize = defaultHistorySize
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	}
	if cfg.Server.UserID == "" {
		errs = append(errs, errors.New("server.user_id is required"))
	}
	if cfg.Server.ConnectTimeout < 0 {
		errs = append(errs, errors.New("server.connect_timeout must not be negative"))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, errors.New("server.request_timeout must not be negative"))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	// VAD
	if cfg.VAD.EnergyThreshold <= 0 {
		errs = append(errs, fmt.Errorf("vad.energy_threshold %.1f must be positive", cfg.VAD.EnergyThreshold))
	}
	if cfg.VAD.SilenceTimeout <= 0 {
		errs = append(errs, errors.New("vad.silence_timeout must be positive"))
	}
	if cfg.VAD.MaxSegment <= 0 {
		errs = append(errs, errors.New("vad.max_segment must be positive"))
	}

	// Trigger
	if cfg.Trigger.MinDuration <= 0 {
		errs = append(errs, errors.New("trigger.min_duration must be positive"))
	}
	if cfg.Trigger.MaxDuration < cfg.Trigger.MinDuration {
		errs = append(errs, fmt.Errorf("trigger.max_duration %s must not be below trigger.min_duration %s",
			cfg.Trigger.MaxDuration.Std(), cfg.Trigger.MinDuration.Std()))
	}
	if cfg.Trigger.Cooldown < 0 {
		errs = append(errs, errors.New("trigger.cooldown must not be negative"))
	}

	// Client
	if cfg.Client.LogLevel != "" && !cfg.Client.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("client.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Client.LogLevel))
	}
	if cfg.Client.HistorySize < 0 {
		errs = append(errs, errors.New("client.history_size must not be negative"))
	}

	return errors.Join(errs...)
}
