package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pttype/internal/bootstrap"
	"pttype/internal/config"
	"pttype/internal/domain"
)

type emitted struct {
	name string
	data interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) emit(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payload interface{}
	if len(data) > 0 {
		payload = data[0]
	}
	r.events = append(r.events, emitted{name: name, data: payload})
}

func (r *recorder) named(name string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, event := range r.events {
		if event.name == name {
			out = append(out, event)
		}
	}
	return out
}

type stubClipboard struct{}

func (stubClipboard) ReadText() (string, error) { return "", nil }
func (stubClipboard) WriteText(string) error    { return nil }

type stubKeys struct{}

func (stubKeys) Trusted() bool          { return true }
func (stubKeys) Paste() error           { return nil }
func (stubKeys) Tap(rune) (bool, error) { return true, nil }

func buildServices(t *testing.T) bootstrap.Services {
	t.Helper()
	cfg := config.Default()
	cfg.Notify.Enabled = false
	cfg.Recognizer.Deepgram.APIKey = "secret-key"
	cfg.Hotkey.Binding = "shift+f9"

	services, err := bootstrap.Build(cfg, bootstrap.Platform{
		Clipboard:  stubClipboard{},
		Keys:       stubKeys{},
		Microphone: func() error { return nil },
	})
	require.NoError(t, err)
	return services
}

func TestAlertPayload(t *testing.T) {
	t.Parallel()

	err := domain.WrapError(domain.ErrorKindInjectionFailed, "inject.paste", "paste failed", errors.New("uinput"))
	payload := alertPayload(err)
	assert.Equal(t, "injection_failed", payload["kind"])
	assert.Equal(t, domain.UserMessage(err), payload["message"])
	assert.Contains(t, payload["detail"], "uinput")

	assert.Equal(t, "", alertPayload(nil)["message"])
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	require.Error(t, app.requireReady())

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	assert.ErrorIs(t, app.requireReady(), bootErr)

	_, err := app.Toggle()
	assert.ErrorIs(t, err, bootErr)
	_, err = app.CheckPermissions()
	assert.ErrorIs(t, err, bootErr)
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	assert.Equal(t, domain.SessionStateIdle, status.State)
	assert.Equal(t, "Idle", status.Label)

	app.bootErr = domain.NewError(domain.ErrorKindConfig, "config.load", "bad yaml")
	status = app.GetStatus()
	assert.Equal(t, "Configuration error", status.Message)
	assert.Equal(t, map[string]string{"error": app.bootErr.Error()}, app.GetRuntimeInfo())
}

func TestFailEmitsAlert(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	app := &App{ctx: context.Background(), emit: rec.emit}
	app.fail(domain.NewError(domain.ErrorKindConfig, "config.validate", "invalid configuration"))

	alerts := rec.named(eventAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "config", alerts[0].data.(map[string]string)["kind"])
}

func TestStartForwardsHubEventsAndShutsDown(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	app := &App{ctx: context.Background(), emit: rec.emit}
	services := buildServices(t)
	app.start(services)

	services.Hub.Transcript("hello there", false)
	services.Hub.Alert(domain.NewError(domain.ErrorKindRecognitionFailed, "deepgram.read", "boom"))

	transcripts := rec.named(eventTranscript)
	require.Len(t, transcripts, 1)
	assert.Equal(t, map[string]interface{}{"text": "hello there", "final": false}, transcripts[0].data)
	require.Len(t, rec.named(eventAlert), 1)

	assert.Equal(t, domain.SessionStateIdle, app.GetStatus().State)

	report, err := app.CheckPermissions()
	require.NoError(t, err)
	assert.Len(t, report, 3)

	info := app.GetRuntimeInfo()
	assert.Equal(t, "deepgram", info["recognizer"])
	assert.Equal(t, "shift+f9", info["hotkey"])
	for _, value := range info {
		assert.NotContains(t, value, "secret-key")
	}

	app.shutdown(context.Background())
	assert.Empty(t, app.subs)

	services.Hub.Transcript("after shutdown", true)
	assert.Len(t, rec.named(eventTranscript), 1)
}
