package bootstrap

import (
	"errors"
	"strings"

	"pttype/internal/audio"
	"pttype/internal/config"
	"pttype/internal/domain"
	"pttype/internal/hotkey"
	"pttype/internal/inject"
	"pttype/internal/logging"
	"pttype/internal/permissions"
	"pttype/internal/ports"
	"pttype/internal/providers/deepgram"
	"pttype/internal/providers/whisper"
	"pttype/internal/rules"
	"pttype/internal/status"
	"pttype/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config       config.Config
	Orchestrator *usecase.Orchestrator
	Hub          *status.Hub
	Permissions  *permissions.Gate
	Hotkey       ports.HotkeyTrigger
	Binding      hotkey.Binding
	Rules        *rules.Engine
}

// Platform holds the OS-facing adapters. Zero fields are filled with the
// system implementations.
type Platform struct {
	Clipboard  ports.Clipboard
	Keys       ports.KeySender
	Microphone func() error
}

// Build wires all backend dependencies for cfg.
func Build(cfg config.Config, platform Platform) (Services, error) {
	platform = platform.withDefaults(cfg)

	engine, err := buildRules(cfg.Rules)
	if err != nil {
		return Services{}, err
	}

	binding, err := hotkey.ParseBinding(hotkeyBinding(cfg.Hotkey))
	if err != nil {
		return Services{}, domain.WrapError(domain.ErrorKindConfig, "bootstrap.hotkey", "invalid hotkey binding", err)
	}

	gate := permissions.NewGate(
		permissions.Microphone(platform.Microphone),
		permissions.SpeechRecognition(func() error { return recognizerCredentials(cfg.Recognizer) }),
		permissions.Accessibility(func() error { return keysTrusted(platform.Keys) }),
	)

	hub := status.NewHub()
	if cfg.Notify.Enabled {
		if err := status.NewNotifier(cfg.Notify.Title).Attach(hub); err != nil {
			logging.Warnw("desktop notifications disabled", "error", err)
		}
	}

	orchestrator := usecase.New(usecase.Deps{
		Audio:      buildAudio(cfg.Audio),
		Recognizer: buildRecognizer(cfg, engine),
		Injector: inject.New(platform.Clipboard, platform.Keys, inject.Options{
			ClipboardSettle:  cfg.Inject.ClipboardSettle(),
			KeyInterval:      cfg.Inject.KeyInterval(),
			RestoreClipboard: cfg.Inject.RestoreClipboard,
		}),
		Permissions: gate,
		Status:      hub,
	}, usecase.Config{
		SettleDelay:   cfg.Inject.SettleDelay(),
		InjectionMode: domain.InjectionMode(cfg.Inject.Mode),
	})

	logging.Infow("services assembled",
		"audio.backend", cfg.Audio.Backend,
		"recognizer.backend", cfg.Recognizer.Backend,
		"inject.mode", cfg.Inject.Mode,
		"hotkey", binding.String(),
		"rules.count", engine.Len(),
	)

	return Services{
		Config:       cfg,
		Orchestrator: orchestrator,
		Hub:          hub,
		Permissions:  gate,
		Hotkey:       hotkey.NewListener(binding, cfg.Hotkey.Debounce()),
		Binding:      binding,
		Rules:        engine,
	}, nil
}

func (p Platform) withDefaults(cfg config.Config) Platform {
	if p.Clipboard == nil {
		p.Clipboard = inject.SystemClipboard{}
	}
	if p.Keys == nil {
		p.Keys = inject.NewKeybdSender()
	}
	if p.Microphone == nil {
		opts := audioOptions(cfg.Audio)
		if cfg.Audio.Backend == config.AudioBackendFFmpeg {
			p.Microphone = func() error { return audio.ProbeFFmpeg(opts) }
		} else {
			p.Microphone = audio.ProbePortAudio
		}
	}
	return p
}

// buildRules appends inline configuration rules after the rules file.
func buildRules(cfg config.RulesConfig) (*rules.Engine, error) {
	fromFile, err := rules.LoadFile(cfg.File)
	if err != nil {
		return nil, err
	}
	all := make([]rules.Rule, 0, len(fromFile)+len(cfg.Items))
	all = append(all, fromFile...)
	all = append(all, cfg.Items...)
	return rules.NewEngine(all, cfg.IterationLimit)
}

func buildAudio(cfg config.AudioConfig) ports.AudioSource {
	opts := audioOptions(cfg)
	if cfg.Backend == config.AudioBackendFFmpeg {
		return audio.NewFFmpegSource(opts)
	}
	return audio.NewPortAudioSource(opts)
}

func audioOptions(cfg config.AudioConfig) audio.Options {
	return audio.Options{
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		FrameSamples: cfg.FrameSamples,
		Command:      cfg.Command,
		InputFormat:  cfg.InputFormat,
		InputDevice:  cfg.InputDevice,
	}
}

func buildRecognizer(cfg config.Config, engine *rules.Engine) ports.Recognizer {
	rc := cfg.Recognizer
	if rc.Backend == config.RecognizerWhisper {
		return whisper.NewRecognizer(whisper.Config{
			APIKey:   rc.Whisper.APIKey,
			BaseURL:  rc.Whisper.BaseURL,
			Model:    rc.Whisper.Model,
			Language: rc.Language,
			Prompt:   rc.Whisper.Prompt,
		}, engine)
	}
	return deepgram.NewRecognizer(deepgram.Config{
		APIKey:         rc.Deepgram.APIKey,
		APIBaseURL:     rc.Deepgram.APIBaseURL,
		Model:          rc.Deepgram.Model,
		Language:       rc.Language,
		SmartFormat:    rc.Deepgram.SmartFormat,
		InterimResults: rc.InterimResults,
		Encoding:       "linear16",
		SampleRate:     cfg.Audio.SampleRate,
		Channels:       cfg.Audio.Channels,
	}, engine)
}

func hotkeyBinding(cfg config.HotkeyConfig) string {
	if strings.TrimSpace(cfg.Binding) == "" {
		return hotkey.DefaultBinding()
	}
	return cfg.Binding
}

func recognizerCredentials(cfg config.RecognizerConfig) error {
	switch cfg.Backend {
	case config.RecognizerWhisper:
		if strings.TrimSpace(cfg.Whisper.APIKey) == "" {
			return errors.New("OPENAI_API_KEY is not configured")
		}
	default:
		if strings.TrimSpace(cfg.Deepgram.APIKey) == "" {
			return errors.New("DEEPGRAM_API_KEY is not configured")
		}
	}
	return nil
}

func keysTrusted(keys ports.KeySender) error {
	if keys.Trusted() {
		return nil
	}
	if withErr, ok := keys.(interface{ Err() error }); ok && withErr.Err() != nil {
		return withErr.Err()
	}
	return errors.New("synthetic keyboard input is not allowed")
}
