package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestAccumulateKeepsLastNonEmptyText(t *testing.T) {
	t.Parallel()

	var session Session
	if !session.Accumulate("a") || !session.Accumulate("a b") {
		t.Fatalf("expected non-empty text to be accepted")
	}
	if session.Accumulate("") {
		t.Fatalf("empty text must not replace accumulated text")
	}
	if session.AccumulatedText != "a b" {
		t.Fatalf("unexpected accumulated text: %q", session.AccumulatedText)
	}
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	frame := AudioFrame{Data: make([]byte, 3200), Format: AudioFormat{SampleRate: 16000, Channels: 1}}
	if got := frame.Duration(); got != 100*time.Millisecond {
		t.Fatalf("unexpected duration: %v", got)
	}
	if got := (AudioFrame{Data: []byte{1, 2}}).Duration(); got != 0 {
		t.Fatalf("expected zero duration without a format, got %v", got)
	}
}

func TestRecognitionEventTerminal(t *testing.T) {
	t.Parallel()

	if Partial("x").Terminal() {
		t.Fatalf("partial must not be terminal")
	}
	if !Final("").Terminal() || !Failed(errors.New("x")).Terminal() {
		t.Fatalf("final and failed must be terminal")
	}
}

func TestWrapErrorKeepsExistingKind(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrorKindDeviceUnavailable, "audio.start", "no device")
	wrapped := WrapError(ErrorKindRecognitionFailed, "usecase.start", "start failed", fmt.Errorf("context: %w", inner))
	if !IsKind(wrapped, ErrorKindDeviceUnavailable) || KindOf(wrapped) != ErrorKindDeviceUnavailable {
		t.Fatalf("expected the inner kind to win, got %v", wrapped)
	}

	cause := errors.New("io timeout")
	err := WrapError(ErrorKindRecognitionFailed, "deepgram.read", "stream ended", cause)
	if !errors.Is(err, cause) || !IsKind(err, ErrorKindRecognitionFailed) {
		t.Fatalf("unexpected wrap result: %v", err)
	}
	if WrapError(ErrorKindConfig, "op", "msg", nil) != nil {
		t.Fatalf("wrapping nil must return nil")
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	if got := UserMessage(NewError(ErrorKindDeviceUnavailable, "op", "x")); got != "No audio input device found" {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := UserMessage(errors.New("plain")); got != "plain" {
		t.Fatalf("untyped errors fall back to their text, got %q", got)
	}
	if got := UserMessage(nil); got != "" {
		t.Fatalf("nil error has no message, got %q", got)
	}
	if got := SessionStateTranscribing.Label(); got != "Transcribing..." {
		t.Fatalf("unexpected label: %q", got)
	}
}
