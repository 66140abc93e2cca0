package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a business error across service and transport layers.
type Code string

const (
	CodeInvalidParams        Code = "INVALID_PARAMS"
	CodeResourceNotFound     Code = "RESOURCE_NOT_FOUND"
	CodeInsufficientStock    Code = "INSUFFICIENT_STOCK"
	CodeOrderStatusInvalid   Code = "ORDER_STATUS_INVALID"
	CodeTenantQuotaExceeded  Code = "TENANT_QUOTA_EXCEEDED"
	CodeVerificationInvalid  Code = "VERIFICATION_CODE_INVALID"
	CodeVerificationUsed     Code = "VERIFICATION_CODE_USED"
	CodeVerificationExpired  Code = "VERIFICATION_CODE_EXPIRED"
	CodeVerificationAttempts Code = "VERIFICATION_ATTEMPTS_EXCEEDED"
	CodeSignatureInvalid     Code = "SIGNATURE_INVALID"
	CodeOperationFailed      Code = "OPERATION_FAILED"
	CodeUnknown              Code = "UNKNOWN_ERROR"
)

// Error is a business error carrying a stable code and the HTTP status the
// transport layer should answer with. Details is optional structured context
// returned to the client (e.g. which SKUs lacked stock).
type Error struct {
	Code    Code   `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error kept out of client responses.
func (e *Error) WithCause(err error) *Error {
	clone := *e
	clone.cause = err

	return &clone
}

// WithDetails attaches structured context returned to the client.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details

	return &clone
}

func New(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

func InvalidParams(message string) *Error {
	return New(CodeInvalidParams, http.StatusBadRequest, message)
}

func ResourceNotFound(message string) *Error {
	return New(CodeResourceNotFound, http.StatusNotFound, message)
}

func InsufficientStock(message string) *Error {
	return New(CodeInsufficientStock, http.StatusConflict, message)
}

func OrderStatusInvalid(message string) *Error {
	return New(CodeOrderStatusInvalid, http.StatusBadRequest, message)
}

func TenantQuotaExceeded(message string) *Error {
	return New(CodeTenantQuotaExceeded, http.StatusForbidden, message)
}

func VerificationInvalid(message string) *Error {
	return New(CodeVerificationInvalid, http.StatusBadRequest, message)
}

func VerificationUsed(message string) *Error {
	return New(CodeVerificationUsed, http.StatusConflict, message)
}

func VerificationExpired(message string) *Error {
	return New(CodeVerificationExpired, http.StatusBadRequest, message)
}

func VerificationAttemptsExceeded(message string) *Error {
	return New(CodeVerificationAttempts, http.StatusTooManyRequests, message)
}

func SignatureInvalid(message string) *Error {
	return New(CodeSignatureInvalid, http.StatusBadRequest, message)
}

func OperationFailed(message string) *Error {
	return New(CodeOperationFailed, http.StatusServiceUnavailable, message)
}

func Unknown(message string) *Error {
	return New(CodeUnknown, http.StatusInternalServerError, message)
}

// From extracts the business error from err, or wraps it as UNKNOWN_ERROR so
// internal detail never reaches the client.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Unknown("internal error").WithCause(err)
}

// IsCode reports whether err carries the given business code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}

	return false
}
