package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures the orchestrator reacts to.
type ErrorKind string

const (
	ErrorKindPermissionDenied      ErrorKind = "permission_denied"
	ErrorKindDeviceUnavailable     ErrorKind = "device_unavailable"
	ErrorKindRecognizerUnavailable ErrorKind = "recognizer_unavailable"
	ErrorKindRecognitionFailed     ErrorKind = "recognition_failed"
	ErrorKindInjectionFailed       ErrorKind = "injection_failed"
	ErrorKindConfig                ErrorKind = "config"
)

// Error is the typed error crossing adapter boundaries.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError builds an Error without a cause.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError attaches kind and op to err. An err that already carries a kind
// is returned unchanged.
func WrapError(kind ErrorKind, op, message string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	return &Error{Kind: kind, Op: op, Message: message, Cause: err}
}

// IsKind reports whether the first typed error in the chain has kind.
func IsKind(err error, kind ErrorKind) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first typed error in the chain.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// UserMessage is the short text shown to the user for err.
func UserMessage(err error) string {
	switch KindOf(err) {
	case ErrorKindPermissionDenied:
		return "Microphone, speech recognition and accessibility permissions are required"
	case ErrorKindDeviceUnavailable:
		return "No audio input device found"
	case ErrorKindRecognizerUnavailable:
		return "Speech recognition is not available"
	case ErrorKindRecognitionFailed:
		return "Speech recognition failed"
	case ErrorKindInjectionFailed:
		return "Failed to paste text. Make sure accessibility permission is granted."
	case ErrorKindConfig:
		return "Configuration error"
	default:
		if err == nil {
			return ""
		}
		return err.Error()
	}
}
