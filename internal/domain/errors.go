package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure at the dispatcher boundary. The set is
// closed; transports translate kinds into their own wire-level shapes.
type ErrorKind int

const (
	// KindSession indicates an unknown or missing session identifier on a
	// non-initialization request. Surfaced as a transport-level 400.
	KindSession ErrorKind = iota
	// KindProtocol indicates an unknown method or malformed request within
	// an active session. Surfaced as a JSON-RPC error response.
	KindProtocol
	// KindToolExecution indicates a query failure during a tool call.
	// Surfaced as a tool result with isError true, never as a transport
	// failure.
	KindToolExecution
	// KindResource indicates a malformed resource URI.
	KindResource
	// KindInfrastructure indicates connection-pool exhaustion or an
	// unreachable data store.
	KindInfrastructure
)

// Error is the tagged error type shared by the dispatcher and the
// data-store gateway.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewSessionError creates a session error.
func NewSessionError(message string) *Error {
	return &Error{Kind: KindSession, Message: message}
}

// NewProtocolError creates a protocol error.
func NewProtocolError(message string) *Error {
	return &Error{Kind: KindProtocol, Message: message}
}

// NewToolExecutionError wraps a query failure from a tool call.
func NewToolExecutionError(message string, err error) *Error {
	return &Error{Kind: KindToolExecution, Message: message, Err: err}
}

// NewResourceError creates a resource error.
func NewResourceError(message string) *Error {
	return &Error{Kind: KindResource, Message: message}
}

// NewInfrastructureError wraps a data-store or pool failure.
func NewInfrastructureError(message string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInfrastructure when err is not a
// domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInfrastructure
}

// IsResource checks if an error is a resource error.
func IsResource(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindResource
}

// IsProtocol checks if an error is a protocol error.
func IsProtocol(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindProtocol
}

// IsInfrastructure checks if an error is an infrastructure error.
func IsInfrastructure(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == KindInfrastructure
}
