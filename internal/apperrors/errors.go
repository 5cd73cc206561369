// Package apperrors defines the error taxonomy shared by the validator,
// the persistence layer and the HTTP API.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Validation error codes.
const (
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeMissingParams           = "MISSING_PARAMS"
	CodeEmptyReceipt            = "EMPTY_RECEIPT"
	CodeNoSubscriptionInfo      = "NO_SUBSCRIPTION_INFO"
	CodeMalformedReceiptInfo    = "MALFORMED_RECEIPT_INFO"
	CodeInvalidSubscriptionDate = "INVALID_SUBSCRIPTION_DATES"
)

// Upstream, persistence and fallback codes.
const (
	CodeAppleAPIError = "APPLE_API_ERROR"
	CodeAppleTimeout  = "APPLE_TIMEOUT"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeInternalError = "INTERNAL_ERROR"
)

// ValidationError is a client-input problem: malformed or empty input, or a
// receipt that parses but carries no usable subscription info.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError.
func NewValidationError(code, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// AppleAPIError is an upstream failure: transport error, timeout, non-2xx
// HTTP status or a non-zero Apple status code.
type AppleAPIError struct {
	Message string
	// HTTPStatus is the upstream HTTP status, 408 for timeouts, 0 when Apple answered 200.
	HTTPStatus int
	// AppleStatus is the verifyReceipt status field, 0 when not applicable.
	AppleStatus int
	Timeout     bool
	Err         error
}

func (e *AppleAPIError) Error() string {
	if e.AppleStatus != 0 {
		return fmt.Sprintf("%s (apple status %d)", e.Message, e.AppleStatus)
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s (http status %d)", e.Message, e.HTTPStatus)
	}
	return e.Message
}

func (e *AppleAPIError) Unwrap() error {
	return e.Err
}

// DatabaseError wraps any persistence failure.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// NewDatabaseError wraps err, returning nil when err is nil.
func NewDatabaseError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DatabaseError{Op: op, Err: err}
}

// Classified is the HTTP-facing view of an error.
type Classified struct {
	Status      int
	Code        string
	Message     string
	AppleStatus int
}

// Classify maps err onto the HTTP status and code exposed to clients.
func Classify(err error) Classified {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return Classified{Status: http.StatusBadRequest, Code: verr.Code, Message: verr.Message}
	}

	var aerr *AppleAPIError
	if errors.As(err, &aerr) {
		if aerr.Timeout {
			return Classified{Status: http.StatusRequestTimeout, Code: CodeAppleTimeout, Message: aerr.Message}
		}
		return Classified{
			Status:      http.StatusBadGateway,
			Code:        CodeAppleAPIError,
			Message:     aerr.Message,
			AppleStatus: aerr.AppleStatus,
		}
	}

	var derr *DatabaseError
	if errors.As(err, &derr) {
		return Classified{Status: http.StatusInternalServerError, Code: CodeDatabaseError, Message: "failed to persist subscription state"}
	}

	return Classified{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: "receipt verification failed"}
}
