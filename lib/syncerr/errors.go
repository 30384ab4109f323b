// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind int

const (
	// Unknown is returned by KindOf for nil and for errors outside
	// the taxonomy.
	Unknown Kind = iota
	Validation
	StateConflict
	StoreUnavailable
	PermissionDenied
	PartialWrite
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case StateConflict:
		return "state_conflict"
	case StoreUnavailable:
		return "store_unavailable"
	case PermissionDenied:
		return "permission_denied"
	case PartialWrite:
		return "partial_write"
	default:
		return "unknown"
	}
}

// Error is a classified sentinel. Compare with errors.Is.
type Error struct {
	Kind Kind
	Code string
}

func (e *Error) Error() string { return e.Code }

func newError(kind Kind, code string) *Error { return &Error{Kind: kind, Code: code} }

// Validation errors.
var (
	ErrSelfRequest        = newError(Validation, "cannot target yourself")
	ErrEmptyMessage       = newError(Validation, "message is empty")
	ErrMessageTooLong     = newError(Validation, "message is too long")
	ErrInvalidMessage     = newError(Validation, "message is not valid UTF-8")
	ErrInvalidCoordinates = newError(Validation, "coordinates out of range")
	ErrInvalidThread      = newError(Validation, "not a participant of this thread")
	ErrInvalidHandle      = newError(Validation, "invalid handle")
)

// State conflicts.
var (
	ErrAlreadyConnected = newError(StateConflict, "already connected")
	ErrAlreadyPending   = newError(StateConflict, "a request from this user is already pending")
	ErrNoSuchRequest    = newError(StateConflict, "no such pending request")
	ErrNotConnected     = newError(StateConflict, "not connected")
	ErrNoSuchUser       = newError(StateConflict, "no such user")
	ErrHandleTaken      = newError(StateConflict, "handle is taken")
	ErrAlreadyExists    = newError(StateConflict, "user already registered")
)

// ErrPermissionDenied reports a missing platform permission.
var ErrPermissionDenied = newError(PermissionDenied, "permission denied")

// ErrStoreUnavailable is the sentinel wrapped by Unavailable.
var ErrStoreUnavailable = newError(StoreUnavailable, "record store unavailable")

// OpError attaches the failing operation to a classified cause.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

// Op wraps err with the operation name, keeping its classification.
func Op(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// StoreError wraps a record store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrStoreUnavailable.Code, e.Err)
}

// Unwrap exposes both the store cause and ErrStoreUnavailable.
func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// Unavailable classifies a store failure during op.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// PartialWriteError reports a two-record operation whose first write
// committed and whose second did not.
type PartialWriteError struct {
	Op string
	// Applied is the record path whose write committed.
	Applied string
	// Failed is the record path whose write did not.
	Failed string
	Err    error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: partial write: %s updated, %s failed: %v", e.Op, e.Applied, e.Failed, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// KindOf classifies err. A PartialWriteError anywhere in the chain
// wins over the kind of its cause.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var partial *PartialWriteError
	if errors.As(err, &partial) {
		return PartialWrite
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return Unknown
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }
