// ABOUTME: Error taxonomy for the conversation engine and its adapters
// ABOUTME: Sentinels for validation failures plus typed transport and event errors

package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveConversation is returned when an operation needs a selected peer.
	ErrNoActiveConversation = errors.New("no active conversation")

	// ErrEmptyMessage is returned for a draft with blank text and no media.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrInvalidMedia is returned when an attachment fails type or size checks.
	ErrInvalidMedia = errors.New("invalid media")

	// ErrMessageNotFound is returned when a message id is not in the active conversation.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEngineClosed is returned for operations issued after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// ValidationError rejects a user action synchronously, before any network call.
type ValidationError struct {
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Invalid wraps a sentinel in a ValidationError.
func Invalid(err error) error {
	return &ValidationError{Err: err}
}

// TransportError reports a failed collaborator call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SendFailedError is the TransportError returned when an optimistic send is
// rolled back. TempID names the optimistic message that was removed.
type SendFailedError struct {
	TransportError
	TempID string
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendFailedError) Unwrap() error { return &e.TransportError }

// MalformedEventError describes an inbound event that was dropped.
type MalformedEventError struct {
	Kind   EventKind
	Reason string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed %s event: %s", e.Kind, e.Reason)
}
