package main

import (
	"context"
	"errors"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"pttype/internal/bootstrap"
	"pttype/internal/config"
	"pttype/internal/domain"
	"pttype/internal/logging"
	"pttype/internal/permissions"
	"pttype/internal/ports"
	"pttype/internal/telemetry"
)

const (
	eventState       = "pttype:state"
	eventTranscript  = "pttype:transcript"
	eventAlert       = "pttype:alert"
	eventPermissions = "pttype:permissions"

	shutdownTimeout = 3 * time.Second
)

var version = "dev"

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit func(ctx context.Context, name string, data ...interface{})

	services  bootstrap.Services
	telemetry *telemetry.Telemetry
	subs      []ports.Subscription
	stopLoop  context.CancelFunc
	loopDone  chan struct{}
	bootErr   error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		a.fail(err)
		return
	}
	logging.Init(cfg.Logging.Level)

	tel, err := telemetry.Setup(ctx, "pttype", version, cfg.Telemetry.PrometheusBind)
	if err != nil {
		logging.Warnw("telemetry disabled", "error", err)
	}
	a.telemetry = tel

	services, err := bootstrap.Build(cfg, bootstrap.Platform{})
	if err != nil {
		a.fail(err)
		return
	}
	a.start(services)

	sub, err := services.Hotkey.Listen(services.Orchestrator.Toggle)
	if err != nil {
		logging.Errorw("global hotkey unavailable", "error", err)
		a.emitAlert(domain.WrapError(domain.ErrorKindPermissionDenied, "app.hotkey", "global hotkey unavailable", err))
		return
	}
	a.subs = append(a.subs, sub)
}

// start attaches the UI to the status hub, runs the orchestrator loop and
// asks for permissions.
func (a *App) start(services bootstrap.Services) {
	a.services = services

	a.subs = append(a.subs,
		services.Hub.OnState(func(state domain.SessionState) {
			a.emitEvent(eventState, services.Orchestrator.Status())
		}),
		services.Hub.OnTranscript(func(text string, final bool) {
			a.emitEvent(eventTranscript, map[string]interface{}{"text": text, "final": final})
		}),
		services.Hub.OnAlert(a.emitAlert),
	)

	loopCtx, cancel := context.WithCancel(context.Background())
	a.stopLoop = cancel
	a.loopDone = make(chan struct{})
	go func() {
		defer close(a.loopDone)
		if err := services.Orchestrator.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Errorw("orchestrator loop ended", "error", err)
		}
	}()

	services.Permissions.RequestAll(func(granted bool) {
		if !granted {
			a.emitEvent(eventPermissions, services.Permissions.Report())
		}
	})
}

func (a *App) shutdown(ctx context.Context) {
	for _, sub := range a.subs {
		sub.Cancel()
	}
	a.subs = nil

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if a.services.Orchestrator != nil {
		if err := a.services.Orchestrator.Shutdown(shutdownCtx); err != nil {
			logging.Warnw("orchestrator shutdown incomplete", "error", err)
		}
		a.stopLoop()
		<-a.loopDone
		a.services.Hub.Close()
	}
	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		logging.Warnw("telemetry shutdown failed", "error", err)
	}
	_ = logging.Sync()
}

// Toggle starts or stops dictation, like the global hotkey.
func (a *App) Toggle() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	a.services.Orchestrator.Toggle()
	return a.services.Orchestrator.Status(), nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.services.Orchestrator == nil {
		if a.bootErr != nil {
			return domain.Status{
				State:   domain.SessionStateIdle,
				Label:   domain.SessionStateIdle.Label(),
				Message: domain.UserMessage(a.bootErr),
			}
		}
		return domain.Status{State: domain.SessionStateIdle, Label: domain.SessionStateIdle.Label()}
	}
	return a.services.Orchestrator.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	cfg := a.services.Config
	info := map[string]string{
		"version":     version,
		"audio":       cfg.Audio.Backend,
		"recognizer":  cfg.Recognizer.Backend,
		"language":    cfg.Recognizer.Language,
		"injectMode":  cfg.Inject.Mode,
		"rulesFile":   cfg.Rules.File,
		"hotkey":      cfg.Hotkey.Binding,
		"metricsBind": cfg.Telemetry.PrometheusBind,
	}
	if cfg.Recognizer.Backend == config.RecognizerWhisper {
		info["model"] = cfg.Recognizer.Whisper.Model
	} else {
		info["model"] = cfg.Recognizer.Deepgram.Model
	}
	if a.services.Binding.Key != "" {
		info["hotkey"] = a.services.Binding.String()
	}
	return info
}

// CheckPermissions reports each prerequisite for recording.
func (a *App) CheckPermissions() ([]permissions.Result, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Permissions.Report(), nil
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Orchestrator == nil {
		return errors.New("application is not initialized")
	}
	return nil
}

func (a *App) fail(err error) {
	a.bootErr = err
	logging.Errorw("startup failed", "error", err)
	a.emitAlert(err)
}

func (a *App) emitAlert(err error) {
	a.emitEvent(eventAlert, alertPayload(err))
}

func (a *App) emitEvent(name string, data interface{}) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, name, data)
}

func alertPayload(err error) map[string]string {
	if err == nil {
		return map[string]string{"kind": "", "message": "", "detail": ""}
	}
	return map[string]string{
		"kind":    string(domain.KindOf(err)),
		"message": domain.UserMessage(err),
		"detail":  err.Error(),
	}
}
