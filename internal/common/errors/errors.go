// Package errors provides standardized error handling for the CDS Hooks
// integration layer. No error defined here is fatal to the host application:
// each one is absorbed at the boundary of the failing operation and logged.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeDiscoveryFailed  ErrorCode = "DISCOVERY_FAILED"
	ErrCodeDiscoveryInvalid ErrorCode = "DISCOVERY_INVALID"

	ErrCodeExecutionFailed  ErrorCode = "EXECUTION_FAILED"
	ErrCodeExecutionTimeout ErrorCode = "EXECUTION_TIMEOUT"
	ErrCodeResponseInvalid  ErrorCode = "RESPONSE_INVALID"

	ErrCodeFeedbackFailed ErrorCode = "FEEDBACK_FAILED"

	ErrCodeUnmappedEvent       ErrorCode = "UNMAPPED_EVENT"
	ErrCodeMissingContextField ErrorCode = "MISSING_CONTEXT_FIELD"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewDiscoveryFailedError creates a retryable discovery error. Callers degrade
// to the previous catalog (or an empty one) rather than surfacing it.
func NewDiscoveryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDiscoveryFailed,
		Message:   "CDS service discovery failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDiscoveryInvalidError creates a non-retryable discovery payload error.
func NewDiscoveryInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDiscoveryInvalid,
		Message:   "CDS discovery document failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExecutionFailedError creates a retryable per-service execution error.
// Only the failing service degrades to empty cards.
func NewExecutionFailedError(serviceID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeExecutionFailed,
		Message:   "CDS hook execution failed",
		Details:   fmt.Sprintf("serviceId: %s, error: %s", serviceID, err.Error()),
		Retryable: true,
		Metadata:  map[string]interface{}{"serviceId": serviceID},
		Timestamp: time.Now().UTC(),
	}
}

// NewExecutionTimeoutError creates a retryable per-service timeout error.
func NewExecutionTimeoutError(serviceID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExecutionTimeout,
		Message:   "CDS hook execution timed out",
		Details:   fmt.Sprintf("serviceId: %s", serviceID),
		Retryable: true,
		Metadata:  map[string]interface{}{"serviceId": serviceID},
		Timestamp: time.Now().UTC(),
	}
}

// NewResponseInvalidError creates a non-retryable response validation error.
func NewResponseInvalidError(serviceID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResponseInvalid,
		Message:   "CDS service response failed validation",
		Details:   fmt.Sprintf("serviceId: %s, %s", serviceID, details),
		Retryable: false,
		Metadata:  map[string]interface{}{"serviceId": serviceID},
		Timestamp: time.Now().UTC(),
	}
}

// NewFeedbackFailedError creates a non-retryable feedback delivery error.
// Feedback is telemetry; it is logged and dropped, never retried inline.
func NewFeedbackFailedError(serviceID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeFeedbackFailed,
		Message:   "CDS feedback delivery failed",
		Details:   fmt.Sprintf("serviceId: %s, error: %s", serviceID, err.Error()),
		Retryable: false,
		Metadata:  map[string]interface{}{"serviceId": serviceID},
		Timestamp: time.Now().UTC(),
	}
}

// NewUnmappedEventError creates a non-retryable workflow mapping error.
func NewUnmappedEventError(event string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnmappedEvent,
		Message:   "No hook type mapped for workflow event",
		Details:   fmt.Sprintf("event: %s", event),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingContextFieldError creates a non-retryable request-build error.
func NewMissingContextFieldError(hookType, field string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingContextField,
		Message:   "Required context field missing for hook type",
		Details:   fmt.Sprintf("hookType: %s, field: %s", hookType, field),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDiscoveryFailed, ErrCodeExecutionFailed:
		return 3
	case ErrCodeExecutionTimeout:
		return 1
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DISCOVERY"):
		return "DISCOVERY"
	case strings.Contains(codeStr, "EXECUTION") || strings.Contains(codeStr, "RESPONSE"):
		return "EXECUTION"
	case strings.Contains(codeStr, "FEEDBACK"):
		return "FEEDBACK"
	default:
		return "OTHER"
	}
}
