package status

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pttype/internal/domain"
)

func TestHubFansOutInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	var order []string
	hub.OnState(func(state domain.SessionState) { order = append(order, "first:"+string(state)) })
	hub.OnState(func(state domain.SessionState) { order = append(order, "second:"+string(state)) })

	hub.StateChanged(domain.SessionStateRecording)

	assert.Equal(t, []string{"first:recording", "second:recording"}, order)
}

func TestHubCancelUnsubscribesOnlyThatHandler(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	var a, b []string
	subA := hub.OnTranscript(func(text string, _ bool) { a = append(a, text) })
	hub.OnTranscript(func(text string, _ bool) { b = append(b, text) })

	hub.Transcript("one", false)
	subA.Cancel()
	subA.Cancel()
	hub.Transcript("two", true)

	assert.Equal(t, []string{"one"}, a)
	assert.Equal(t, []string{"one", "two"}, b)
}

func TestHubTranscriptCarriesFinalFlag(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	var finals []bool
	hub.OnTranscript(func(_ string, final bool) { finals = append(finals, final) })

	hub.Transcript("partial", false)
	hub.Transcript("done", true)

	assert.Equal(t, []bool{false, true}, finals)
}

func TestHubAlertSkipsNil(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	var alerts []error
	hub.OnAlert(func(err error) { alerts = append(alerts, err) })

	hub.Alert(nil)
	hub.Alert(domain.NewError(domain.ErrorKindInjectionFailed, "test", "paste failed"))

	require.Len(t, alerts, 1)
	assert.True(t, domain.IsKind(alerts[0], domain.ErrorKindInjectionFailed))
}

func TestNotifierShowsUserMessage(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	notifier := NewNotifier("")

	var mu sync.Mutex
	var titles, messages []string
	notifier.notify = func(title, message, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		titles = append(titles, title)
		messages = append(messages, message)
		return errors.New("no notification daemon")
	}
	require.NoError(t, notifier.Attach(hub))

	hub.Alert(domain.NewError(domain.ErrorKindDeviceUnavailable, "audio.start", "no input"))
	hub.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"pttype"}, titles)
	assert.Equal(t, []string{"No audio input device found"}, messages)
}
