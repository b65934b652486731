package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pttype/internal/domain"
	"pttype/internal/rules"
)

// Config is the full runtime configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	Audio      AudioConfig      `yaml:"audio"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Rules      RulesConfig      `yaml:"rules"`
	Inject     InjectConfig     `yaml:"inject"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type TelemetryConfig struct {
	// PrometheusBind serves /metrics when set, e.g. "127.0.0.1:9464".
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HotkeyConfig struct {
	// Binding such as "alt+cmd+r". Empty selects the platform default.
	Binding    string `yaml:"binding"`
	DebounceMS int    `yaml:"debounce_ms"`
}

type AudioConfig struct {
	Backend      string `yaml:"backend"`
	Command      string `yaml:"command"`
	InputFormat  string `yaml:"input_format"`
	InputDevice  string `yaml:"input_device"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
	FrameSamples int    `yaml:"frame_samples"`
}

type RecognizerConfig struct {
	Backend        string         `yaml:"backend"`
	Language       string         `yaml:"language"`
	InterimResults bool           `yaml:"interim_results"`
	Deepgram       DeepgramConfig `yaml:"deepgram"`
	Whisper        WhisperConfig  `yaml:"whisper"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"api_key"`
	APIBaseURL  string `yaml:"api_base_url"`
	Model       string `yaml:"model"`
	SmartFormat bool   `yaml:"smart_format"`
}

type WhisperConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Prompt  string `yaml:"prompt"`
}

type RulesConfig struct {
	File           string       `yaml:"file"`
	IterationLimit int          `yaml:"iteration_limit"`
	Items          []rules.Rule `yaml:"items"`
}

type InjectConfig struct {
	Mode              string `yaml:"mode"`
	SettleDelayMS     int    `yaml:"settle_delay_ms"`
	ClipboardSettleMS int    `yaml:"clipboard_settle_ms"`
	KeyIntervalMS     int    `yaml:"key_interval_ms"`
	RestoreClipboard  bool   `yaml:"restore_clipboard"`
}

type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
}

const (
	AudioBackendPortAudio = "portaudio"
	AudioBackendFFmpeg    = "ffmpeg"

	RecognizerDeepgram = "deepgram"
	RecognizerWhisper  = "whisper"
)

func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Hotkey:  HotkeyConfig{DebounceMS: 300},
		Audio: AudioConfig{
			Backend:      AudioBackendPortAudio,
			Command:      "ffmpeg",
			InputFormat:  "pulse",
			InputDevice:  "default",
			SampleRate:   16000,
			Channels:     1,
			FrameSamples: 1024,
		},
		Recognizer: RecognizerConfig{
			Backend:        RecognizerDeepgram,
			Language:       "en-US",
			InterimResults: true,
			Deepgram: DeepgramConfig{
				APIBaseURL:  "https://api.deepgram.com/v1",
				Model:       "nova-2",
				SmartFormat: true,
			},
			Whisper: WhisperConfig{Model: "whisper-1"},
		},
		Rules: RulesConfig{IterationLimit: 30},
		Inject: InjectConfig{
			Mode:              string(domain.InjectionModePaste),
			SettleDelayMS:     200,
			ClipboardSettleMS: 50,
			KeyIntervalMS:     10,
		},
		Notify: NotifyConfig{Enabled: true, Title: "pttype"},
	}
}

// ResolvePath returns PTTYPE_CONFIG, else the per-user config file when it
// exists, else "".
func ResolvePath() string {
	if path := strings.TrimSpace(os.Getenv("PTTYPE_CONFIG")); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "pttype", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// Load layers the YAML file at path (when non-empty) and the environment
// over Default, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, domain.WrapError(domain.ErrorKindConfig, "config.load", fmt.Sprintf("read config file %q", path), err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, domain.WrapError(domain.ErrorKindConfig, "config.load", fmt.Sprintf("parse config file %q", path), err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, domain.WrapError(domain.ErrorKindConfig, "config.validate", "invalid configuration", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Logging.Level, "LOG_LEVEL")
	overrideString(&cfg.Logging.Level, "PTTYPE_LOG_LEVEL")
	overrideString(&cfg.Telemetry.PrometheusBind, "PTTYPE_PROMETHEUS_BIND")
	overrideString(&cfg.Hotkey.Binding, "PTTYPE_HOTKEY")
	overrideInt(&cfg.Hotkey.DebounceMS, "PTTYPE_HOTKEY_DEBOUNCE_MS")
	overrideString(&cfg.Audio.Backend, "PTTYPE_AUDIO_BACKEND")
	overrideString(&cfg.Audio.Command, "PTTYPE_FFMPEG_COMMAND")
	overrideString(&cfg.Audio.InputFormat, "PTTYPE_AUDIO_INPUT_FORMAT")
	overrideString(&cfg.Audio.InputDevice, "PTTYPE_AUDIO_INPUT_DEVICE")
	overrideInt(&cfg.Audio.SampleRate, "PTTYPE_SAMPLE_RATE")
	overrideInt(&cfg.Audio.Channels, "PTTYPE_CHANNELS")
	overrideInt(&cfg.Audio.FrameSamples, "PTTYPE_FRAME_SAMPLES")
	overrideString(&cfg.Recognizer.Backend, "PTTYPE_RECOGNIZER")
	overrideString(&cfg.Recognizer.Language, "PTTYPE_LANGUAGE")
	overrideBool(&cfg.Recognizer.InterimResults, "PTTYPE_INTERIM_RESULTS")
	overrideString(&cfg.Recognizer.Deepgram.APIKey, "DEEPGRAM_API_KEY")
	overrideString(&cfg.Recognizer.Deepgram.APIBaseURL, "DEEPGRAM_API_BASE")
	overrideString(&cfg.Recognizer.Deepgram.Model, "DEEPGRAM_MODEL")
	overrideBool(&cfg.Recognizer.Deepgram.SmartFormat, "DEEPGRAM_SMART_FORMAT")
	overrideString(&cfg.Recognizer.Whisper.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.Recognizer.Whisper.BaseURL, "OPENAI_BASE_URL")
	overrideString(&cfg.Recognizer.Whisper.Model, "PTTYPE_WHISPER_MODEL")
	overrideString(&cfg.Rules.File, "PTTYPE_RULES_FILE")
	overrideInt(&cfg.Rules.IterationLimit, "PTTYPE_RULE_ITERATION_LIMIT")
	overrideString(&cfg.Inject.Mode, "PTTYPE_INJECT_MODE")
	overrideInt(&cfg.Inject.SettleDelayMS, "PTTYPE_SETTLE_DELAY_MS")
	overrideInt(&cfg.Inject.ClipboardSettleMS, "PTTYPE_CLIPBOARD_SETTLE_MS")
	overrideInt(&cfg.Inject.KeyIntervalMS, "PTTYPE_KEY_INTERVAL_MS")
	overrideBool(&cfg.Inject.RestoreClipboard, "PTTYPE_RESTORE_CLIPBOARD")
	overrideBool(&cfg.Notify.Enabled, "PTTYPE_NOTIFY")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envKey))) {
	case "1", "true", "yes", "on":
		*target = true
	case "0", "false", "no", "off":
		*target = false
	}
}

func validate(cfg Config) error {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Hotkey.DebounceMS < 0 {
		return errors.New("hotkey.debounce_ms must not be negative")
	}
	switch cfg.Audio.Backend {
	case AudioBackendPortAudio, AudioBackendFFmpeg:
	default:
		return fmt.Errorf("audio.backend %q must be portaudio or ffmpeg", cfg.Audio.Backend)
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels < 1 || cfg.Audio.Channels > 2 {
		return errors.New("audio.channels must be 1 or 2")
	}
	if cfg.Audio.FrameSamples < 64 {
		return errors.New("audio.frame_samples must be at least 64")
	}
	switch cfg.Recognizer.Backend {
	case RecognizerDeepgram, RecognizerWhisper:
	default:
		return fmt.Errorf("recognizer.backend %q must be deepgram or whisper", cfg.Recognizer.Backend)
	}
	switch domain.InjectionMode(cfg.Inject.Mode) {
	case domain.InjectionModePaste, domain.InjectionModeType:
	default:
		return fmt.Errorf("inject.mode %q must be paste or type", cfg.Inject.Mode)
	}
	if cfg.Inject.SettleDelayMS < 0 || cfg.Inject.ClipboardSettleMS < 0 || cfg.Inject.KeyIntervalMS < 0 {
		return errors.New("inject delays must not be negative")
	}
	if cfg.Rules.IterationLimit <= 0 {
		return errors.New("rules.iteration_limit must be positive")
	}
	return nil
}

func (c InjectConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

func (c InjectConfig) ClipboardSettle() time.Duration {
	return time.Duration(c.ClipboardSettleMS) * time.Millisecond
}

func (c InjectConfig) KeyInterval() time.Duration {
	return time.Duration(c.KeyIntervalMS) * time.Millisecond
}

func (c HotkeyConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}
