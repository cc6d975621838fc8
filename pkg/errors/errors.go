package errors

import (
	"errors"
	"fmt"
)

// ErrorType discriminates error categories across the engine.
type ErrorType string

const (
	// Mutation errors
	ErrorTypeDuplicateID  ErrorType = "DUPLICATE_ID"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeDanglingEdge ErrorType = "DANGLING_EDGE"
	ErrorTypeValidation   ErrorType = "VALIDATION"

	// Ingestion errors
	ErrorTypeMalformedEvent ErrorType = "MALFORMED_EVENT"
	ErrorTypeConnectivity   ErrorType = "CONNECTIVITY"

	// Collaborator errors
	ErrorTypeExternal    ErrorType = "EXTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
	ErrorTypeInternal    ErrorType = "INTERNAL"
)

// AppError is the error type carried across the engine's boundaries.
// Mutation handlers convert every failure into one of these; nothing
// else propagates out of a mutation or the ingestion loop.
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches structured context to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Constructor functions for the engine's error taxonomy.

// NewDuplicateIDError signals an insert with an id that is already present.
func NewDuplicateIDError(kind, id string) *AppError {
	return &AppError{
		Type:    ErrorTypeDuplicateID,
		Message: fmt.Sprintf("%s %q already exists", kind, id),
	}
}

// NewNotFoundError signals an update or delete referencing an absent id.
func NewNotFoundError(kind, id string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s %q not found", kind, id),
	}
}

// NewDanglingEdgeError signals an edge whose endpoint is missing from the layer.
func NewDanglingEdgeError(edgeID, missingNodeID string) *AppError {
	return &AppError{
		Type:    ErrorTypeDanglingEdge,
		Message: fmt.Sprintf("edge %q references missing node %q", edgeID, missingNodeID),
	}
}

// NewValidationError signals invalid input to a mutation or constructor.
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewMalformedEventError signals an undecodable or unknown inbound message.
func NewMalformedEventError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeMalformedEvent,
		Message: message,
		Cause:   err,
	}
}

// NewConnectivityError signals exhausted reconnect attempts. Terminal for
// the bridge instance that raises it.
func NewConnectivityError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeConnectivity,
		Message: message,
		Cause:   err,
	}
}

// NewExternalError signals a collaborator (REST) failure.
func NewExternalError(service string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: fmt.Sprintf("external service %q error", service),
		Cause:   err,
	}
}

// NewUnavailableError signals a collaborator rejected by the circuit breaker.
func NewUnavailableError(service string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeUnavailable,
		Message: fmt.Sprintf("service %q is unavailable", service),
		Cause:   err,
	}
}

// NewInternalError signals a programming error.
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
	}
}

// Helper functions

// GetAppError extracts an AppError from an error chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks whether an error carries a specific type.
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsDuplicateID reports whether err is a duplicate-id error.
func IsDuplicateID(err error) bool {
	return IsType(err, ErrorTypeDuplicateID)
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsDanglingEdge reports whether err is a dangling-edge error.
func IsDanglingEdge(err error) bool {
	return IsType(err, ErrorTypeDanglingEdge)
}

// IsMalformedEvent reports whether err is a malformed-event error.
func IsMalformedEvent(err error) bool {
	return IsType(err, ErrorTypeMalformedEvent)
}

// IsConnectivity reports whether err is a terminal connectivity error.
func IsConnectivity(err error) bool {
	return IsType(err, ErrorTypeConnectivity)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// Wrap adds context to an error, preserving its AppError type if present.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
