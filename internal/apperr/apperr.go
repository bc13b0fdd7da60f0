// Package apperr defines the user-facing error taxonomy shared by capture,
// transcription, turn exchange, and upload components.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the user is expected to recover from it.
type Kind string

const (
	// KindPermission covers denied or missing camera/microphone/speech devices.
	KindPermission Kind = "permission"
	// KindValidation covers local input checks that block a network call.
	KindValidation Kind = "validation"
	// KindNetwork covers transport failures and non-2xx responses.
	KindNetwork Kind = "network"
	// KindUpload covers media upload and remote processing failures.
	KindUpload Kind = "upload"
)

// Error is a classified failure carrying user-visible text and the raw cause.
type Error struct {
	Kind    Kind
	Message string
	Raw     error
	Details map[string]string
}

func (e *Error) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Raw)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Raw
}

// WithDetail returns a copy with one extra detail key.
func (e *Error) WithDetail(key, value string) *Error {
	out := *e
	out.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		out.Details[k] = v
	}
	out.Details[key] = value
	return &out
}

func Permission(message string, raw error) *Error {
	return &Error{Kind: KindPermission, Message: message, Raw: raw}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Network(message string, raw error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Raw: raw}
}

func Upload(message string, raw error) *Error {
	return &Error{Kind: KindUpload, Message: message, Raw: raw}
}

// KindOf returns the classified kind of err, or "" when err is unclassified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-visible text for err, falling back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
