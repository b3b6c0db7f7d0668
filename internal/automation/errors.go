// Copyright 2025 Kyungsuk Kim
//
// Package automation drives the ChatGPT desktop application through the
// Windows UI: locating its window, injecting prompts, and capturing the
// streamed response once it settles.
package automation

import (
	"errors"
	"fmt"
)

// Category buckets failures by how callers should react to them.
type Category string

const (
	// CategoryValidation marks input rejected before any UI interaction.
	CategoryValidation Category = "validation"
	// CategoryAutomation marks a UI interaction that failed; these are
	// frequently transient and eligible for retry.
	CategoryAutomation Category = "automation"
	// CategoryTimeout marks an operation that exhausted its deadline.
	CategoryTimeout Category = "timeout"
	// CategoryConfiguration marks invalid or unusable configuration.
	CategoryConfiguration Category = "configuration"
	// CategoryBusy marks an operation rejected because another one holds
	// the session.
	CategoryBusy Category = "busy"
)

// Kinds identify the specific failure within a category. They are stable
// strings surfaced to clients in error payloads.
const (
	KindWindowNotFound   = "window_not_found"
	KindAmbiguousWindow  = "ambiguous_window"
	KindFocusFailed      = "focus_failed"
	KindFocusLost        = "focus_lost"
	KindSubmitFailed     = "submit_failed"
	KindResponseTimeout  = "response_timeout"
	KindSessionBusy      = "session_busy"
	KindResetUnconfirmed = "reset_unconfirmed"
	KindInvalidArgument  = "invalid_argument"
	KindClipboard        = "clipboard_failed"
	KindInjection        = "injection_failed"
)

// Error is the failure type produced throughout the automation layer. It
// carries enough structure for the server layer to build a client-facing
// error payload without string matching.
type Error struct {
	Category Category
	Kind     string
	Op       string // operation that failed, e.g. "locate", "send_message"
	Field    string // offending input field, validation errors only
	Value    any    // offending input value, validation errors only
	Partial  string // partial response text, response_timeout only
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Kind
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying with a fresh
// window search. Only transient automation failures qualify; validation,
// configuration, timeout, and busy failures are final. Ambiguous window
// matches are automation failures but not transient: duplicate windows
// do not resolve themselves, so retrying cannot help.
func (e *Error) Retryable() bool {
	return e.Category == CategoryAutomation && e.Kind != KindAmbiguousWindow
}

// Errorf builds an automation-layer Error with a formatted detail message.
func Errorf(category Category, kind, op, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Kind:     kind,
		Op:       op,
		Detail:   fmt.Sprintf(format, args...),
	}
}

// ValidationError reports a rejected input field before any UI interaction.
func ValidationError(op, field string, value any, detail string) *Error {
	return &Error{
		Category: CategoryValidation,
		Kind:     KindInvalidArgument,
		Op:       op,
		Field:    field,
		Value:    value,
		Detail:   detail,
	}
}

// WrapErr attaches an underlying cause to an automation-layer Error.
func WrapErr(category Category, kind, op string, err error) *Error {
	return &Error{Category: category, Kind: kind, Op: op, Err: err}
}

// AsError extracts an *Error from err's chain, or wraps err as an
// uncategorized automation failure so callers always see the structured
// form.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Category: CategoryAutomation, Kind: KindInjection, Err: err}
}

// IsKind reports whether err carries the given failure kind.
func IsKind(err error, kind string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
