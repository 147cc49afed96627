// Package config provides the configuration schema and loader for the EVA
// voice client.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the EVA client.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps [time.Duration] so that YAML values like "300ms" or "1.5s"
// parse directly into duration fields.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for the EVA client.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	VAD     VADConfig     `yaml:"vad"`
	Trigger TriggerConfig `yaml:"trigger"`
	Client  ClientConfig  `yaml:"client"`
}

// ServerConfig describes the remote EVA service the client talks to.
type ServerConfig struct {
	// BaseURL is the root of the EVA HTTP API (e.g., "http://localhost:8000").
	BaseURL string `yaml:"base_url"`

	// UserID identifies this client in exchange requests.
	UserID string `yaml:"user_id"`

	// ConnectTimeout bounds the TCP dial. Zero means 5s.
	ConnectTimeout Duration `yaml:"connect_timeout"`

	// RequestTimeout bounds a full exchange round trip. Zero means 30s.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	// SampleRate is the capture rate in Hz (e.g., 16000).
	SampleRate int `yaml:"sample_rate"`

	// FrameSize is the number of samples per capture frame (e.g., 320 for
	// 20ms at 16kHz).
	FrameSize int `yaml:"frame_size"`
}

// VADConfig tunes the energy-based voice segmenter.
type VADConfig struct {
	// EnergyThreshold is the RMS level above which a frame counts as speech.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// SilenceTimeout is how long the signal must stay below threshold before
	// an open segment closes.
	SilenceTimeout Duration `yaml:"silence_timeout"`

	// MaxSegment caps a segment's retained audio; older samples are evicted.
	MaxSegment Duration `yaml:"max_segment"`
}

// TriggerConfig tunes the wake trigger evaluation.
type TriggerConfig struct {
	// MinDuration is the shortest segment accepted as a wake utterance.
	MinDuration Duration `yaml:"min_duration"`

	// MaxDuration is the longest segment accepted as a wake utterance.
	MaxDuration Duration `yaml:"max_duration"`

	// Cooldown suppresses triggering for this long after each accepted
	// trigger or playback start.
	Cooldown Duration `yaml:"cooldown"`
}

// ClientConfig holds local process settings.
type ClientConfig struct {
	// ListenAddr is the TCP address of the health/metrics listener
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// HistorySize caps the retained conversation history. Zero means 50.
	HistorySize int `yaml:"history_size"`
}
