package ports

import (
	"context"
	"errors"
	"time"

	"pttype/internal/domain"
)

// ErrRunClosed is returned when feeding a run that already terminated.
var ErrRunClosed = errors.New("recognition run is closed")

// FrameHandler receives captured frames. It runs on the capture thread and
// must not block.
type FrameHandler func(frame domain.AudioFrame)

// AudioSource is a continuous microphone stream.
type AudioSource interface {
	// Start begins frame delivery to handler. Starting a started source is a no-op.
	Start(ctx context.Context, handler FrameHandler) error
	// Stop ends delivery. No frame is delivered after Stop returns.
	Stop() error
}

// Recognizer opens recognition runs.
type Recognizer interface {
	Start(ctx context.Context) (RecognitionRun, error)
}

// RecognitionRun is one recognizer invocation from start to its terminal event.
type RecognitionRun interface {
	ID() string
	// Feed hands one frame to the run without blocking.
	Feed(frame domain.AudioFrame) error
	// Finish signals end of input. Events may still follow.
	Finish() error
	// Events yields partial events then exactly one terminal event, then closes.
	Events() <-chan domain.RecognitionEvent
	// Close tears the run down without waiting for a terminal event.
	Close() error
}

// Injector delivers text into the focused application.
type Injector interface {
	Deliver(ctx context.Context, text string, mode domain.InjectionMode) bool
}

// PermissionGate guards the start of a recording.
type PermissionGate interface {
	CheckAll() bool
	RequestAll(callback func(granted bool))
}

// Subscription is an owned registration handle.
type Subscription interface {
	Cancel()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Cancel() { f() }

// HotkeyTrigger emits one toggle per physical key event.
type HotkeyTrigger interface {
	Listen(handler func()) (Subscription, error)
}

// StatusSink receives display-only updates from the orchestrator.
type StatusSink interface {
	StateChanged(state domain.SessionState)
	Transcript(text string, final bool)
	Alert(err error)
}

// Clipboard is the shared system clipboard.
type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// KeySender synthesizes key events into the focused input context.
type KeySender interface {
	Trusted() bool
	Paste() error
	// Tap presses and releases one key; ok is false for an unmapped rune.
	Tap(r rune) (ok bool, err error)
}

// Clock schedules continuations.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) func() bool
}
