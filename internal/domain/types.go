package domain

import "time"

// SessionState models the dictation lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateRecording    SessionState = "recording"
	SessionStateTranscribing SessionState = "transcribing"
)

// Label is the short display text for status surfaces.
func (s SessionState) Label() string {
	switch s {
	case SessionStateIdle:
		return "Idle"
	case SessionStateRecording:
		return "Recording..."
	case SessionStateTranscribing:
		return "Transcribing..."
	default:
		return string(s)
	}
}

// Session is one record, transcribe and inject cycle.
type Session struct {
	ID              string
	State           SessionState
	AccumulatedText string
	StartedAt       time.Time
}

// Accumulate replaces the accumulated text. Empty text never clears it.
func (s *Session) Accumulate(text string) bool {
	if text == "" {
		return false
	}
	s.AccumulatedText = text
	return true
}

// AudioFormat describes the PCM layout of a frame.
type AudioFormat struct {
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	Encoding   string `json:"encoding"`
}

// BytesPerSample is fixed at two for linear16.
func (f AudioFormat) BytesPerSample() int {
	return 2
}

// AudioFrame is an immutable chunk of captured PCM.
type AudioFrame struct {
	Seq        uint64
	Data       []byte
	Format     AudioFormat
	CapturedAt time.Time
}

// Duration is the amount of audio the frame carries.
func (f AudioFrame) Duration() time.Duration {
	perSecond := f.Format.SampleRate * f.Format.Channels * f.Format.BytesPerSample()
	if perSecond <= 0 {
		return 0
	}
	return time.Duration(len(f.Data)) * time.Second / time.Duration(perSecond)
}

// RecognitionKind tags a recognition event.
type RecognitionKind string

const (
	RecognitionPartial RecognitionKind = "partial"
	RecognitionFinal   RecognitionKind = "final"
	RecognitionFailed  RecognitionKind = "failed"
)

// RecognitionEvent is one output of a recognition run.
type RecognitionEvent struct {
	Kind RecognitionKind
	Text string
	Err  error
}

// Terminal reports whether the event ends its run.
func (e RecognitionEvent) Terminal() bool {
	return e.Kind == RecognitionFinal || e.Kind == RecognitionFailed
}

func Partial(text string) RecognitionEvent {
	return RecognitionEvent{Kind: RecognitionPartial, Text: text}
}

func Final(text string) RecognitionEvent {
	return RecognitionEvent{Kind: RecognitionFinal, Text: text}
}

func Failed(err error) RecognitionEvent {
	return RecognitionEvent{Kind: RecognitionFailed, Err: err}
}

// InjectionMode selects how text reaches the focused application.
type InjectionMode string

const (
	InjectionModePaste InjectionMode = "paste"
	InjectionModeType  InjectionMode = "type"
)

// Status summarizes the current runtime status.
type Status struct {
	State           SessionState `json:"state"`
	Label           string       `json:"label"`
	SessionID       string       `json:"sessionId,omitempty"`
	AccumulatedText string       `json:"accumulatedText,omitempty"`
	StartedAt       time.Time    `json:"startedAt,omitempty"`
	Message         string       `json:"message,omitempty"`
}
