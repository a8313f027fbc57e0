package domain

import (
	"errors"
	"fmt"
)

// ErrorType categorizes worker failures so callers can decide retry vs abort
// without string matching.
type ErrorType string

const (
	// TypeConfiguration indicates missing login/identity configuration.
	// Not retryable without user action.
	TypeConfiguration ErrorType = "configuration"
	// TypeAuth indicates an expired or invalid token. Triggers one
	// refresh-and-retry at the call site, otherwise propagates.
	TypeAuth ErrorType = "auth"
	// TypeTransport indicates a connection drop or malformed frame.
	// Always routes through the reconnect backoff path.
	TypeTransport ErrorType = "transport"
	// TypeSubscription indicates a non-auth rejection of a subscription
	// creation request. Aborts the current session attempt.
	TypeSubscription ErrorType = "subscription"
)

// Error is a tagged worker error.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ConfigurationError creates a non-retryable configuration error.
func ConfigurationError(message string) *Error {
	return &Error{Type: TypeConfiguration, Message: message}
}

// AuthError creates an authorization error.
func AuthError(message string, cause error) *Error {
	return &Error{Type: TypeAuth, Message: message, Cause: cause}
}

// TransportError creates a transport-level error.
func TransportError(message string, cause error) *Error {
	return &Error{Type: TypeTransport, Message: message, Cause: cause}
}

// SubscriptionError creates a subscription-creation error.
func SubscriptionError(message string, cause error) *Error {
	return &Error{Type: TypeSubscription, Message: message, Cause: cause}
}

// TypeOf extracts the error type from any error. Untyped errors count as
// transport failures so they route through the backoff path.
func TypeOf(err error) ErrorType {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Type
	}
	return TypeTransport
}
