package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the machine-readable code carried by HTTP error bodies and
// by the WebSocket "error" event.
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeUnknownEvent       ErrorCode = "UNKNOWN_EVENT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeNotInRoom          ErrorCode = "NOT_IN_ROOM"
	ErrCodeMessageTooLong     ErrorCode = "MESSAGE_TOO_LONG"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeSessionLimit       ErrorCode = "SESSION_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// fatalCodes end the WebSocket session after the error is delivered.
var fatalCodes = map[ErrorCode]bool{
	ErrCodeUnauthorized: true,
	ErrCodeRateLimit:    true,
	ErrCodeSessionLimit: true,
}

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Fatal reports whether a session that triggered this error must be
// disconnected.
func (e *AppError) Fatal() bool {
	return fatalCodes[e.Code]
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	appErr := NewAppError(code, message, httpStatus)
	appErr.Cause = err
	return appErr
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewUnknownEventError(eventType string) *AppError {
	return NewAppError(ErrCodeUnknownEvent, fmt.Sprintf("unknown event type: %s", eventType), http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewNotInRoomError(room string) *AppError {
	return NewAppError(ErrCodeNotInRoom, fmt.Sprintf("not joined to room %q", room), http.StatusForbidden).
		WithContext("room", room)
}

func NewMessageTooLongError(max int) *AppError {
	return NewAppError(ErrCodeMessageTooLong, fmt.Sprintf("message exceeds %d characters", max), http.StatusBadRequest).
		WithContext("max_length", max)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewSessionLimitError() *AppError {
	return NewAppError(ErrCodeSessionLimit, "too many concurrent sessions", http.StatusServiceUnavailable)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string, cause error) *AppError {
	return WrapError(cause, ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// IsAppError checks if err is, or wraps, an AppError.
func IsAppError(err error) bool {
	return GetAppError(err) != nil
}

// GetAppError extracts the outermost AppError from the error chain.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
