package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures for programmatic branching by callers.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindDuplicate     ErrorKind = "duplicate"
	KindNotFound      ErrorKind = "not_found"
	KindStateConflict ErrorKind = "state_conflict"
	KindCapacity      ErrorKind = "capacity"
	KindCooldown      ErrorKind = "cooldown"
	KindRateLimit     ErrorKind = "rate_limit"
	KindStorage       ErrorKind = "storage"
	KindInternal      ErrorKind = "internal"
)

// Error is the typed failure returned by every caller-facing operation.
// Message is stable and safe to show to the user.
type Error struct {
	Kind       ErrorKind
	Code       string
	Op         string
	Message    string
	RetryAfter time.Duration // set for cooldown and rate_limit
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindStorage {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by Code when the target has one, else by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" {
		return e.Code == t.Code
	}
	return e.Kind == t.Kind
}

// Kind sentinels, for errors.Is(err, domain.ErrNotFound).
var (
	ErrValidation    = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrDuplicate     = &Error{Kind: KindDuplicate, Message: "already exists"}
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
	ErrStateConflict = &Error{Kind: KindStateConflict, Message: "operation not allowed in current state"}
	ErrCapacity      = &Error{Kind: KindCapacity, Message: "capacity exceeded"}
	ErrCooldown      = &Error{Kind: KindCooldown, Message: "please wait before trying again"}
	ErrRateLimit     = &Error{Kind: KindRateLimit, Message: "too many attempts"}
	ErrStorage       = &Error{Kind: KindStorage, Message: "storage failure"}
)

// Specific sentinels.
var (
	ErrInvalidDuration = &Error{Kind: KindValidation, Code: "invalid_duration",
		Message: "invalid session duration"}
	ErrAlreadyActive = &Error{Kind: KindStateConflict, Code: "already_active",
		Message: "a focus session is already active"}
	ErrNotActive = &Error{Kind: KindStateConflict, Code: "not_active",
		Message: "no active focus session found"}
	ErrNotPermanentlyBlocked = &Error{Kind: KindStateConflict, Code: "not_permanently_blocked",
		Message: "this URL is not permanently blocked"}
	ErrChallengeExpired = &Error{Kind: KindStateConflict, Code: "challenge_expired",
		Message: "the challenge time limit has passed"}
)

// NewError builds a typed error.
func NewError(kind ErrorKind, code, op, message string) *Error {
	return &Error{Kind: kind, Code: code, Op: op, Message: message}
}

// NewValidationError builds a validation failure.
func NewValidationError(op, message string) *Error {
	return NewError(KindValidation, "", op, message)
}

// NewNotFoundError builds a not-found failure.
func NewNotFoundError(op, message string) *Error {
	return NewError(KindNotFound, "", op, message)
}

// NewStorageError wraps a persistence failure.
func NewStorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Message: "storage failure during " + op, Err: err}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err, falling back to its kind.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Code != "" {
			return de.Code
		}
		return string(de.Kind)
	}
	return string(KindInternal)
}

// AsStorage passes typed errors through and wraps anything else as storage.
func AsStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return NewStorageError(op, err)
}
