package errors

import (
	stderrors "errors"
	"net/http"
)

// AppError is a custom error type that includes an HTTP status code
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// NewAppError creates a new AppError
func NewAppError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Common errors
var (
	ErrInvalidRequest = NewAppError(http.StatusBadRequest, "Invalid request parameters")
	ErrUnauthorized   = NewAppError(http.StatusUnauthorized, "Unauthorized")
	ErrForbidden      = NewAppError(http.StatusForbidden, "Access denied")
	ErrNotFound       = NewAppError(http.StatusNotFound, "Resource not found")
	ErrInternalServer = NewAppError(http.StatusInternalServerError, "Internal server error")
	ErrRateLimit      = NewAppError(http.StatusTooManyRequests, "Rate limit exceeded")
)

// Messaging errors
var (
	ErrConversationNotFound = NewAppError(http.StatusNotFound, "Conversation not found")
	ErrMessageNotFound      = NewAppError(http.StatusNotFound, "Message not found")
	ErrInvalidParticipants  = NewAppError(http.StatusBadRequest, "Both sender and receiver IDs are required and must differ")
	ErrRecipientUnresolved  = NewAppError(http.StatusBadRequest, "Conversation has no recipient")
	ErrNotAMember           = NewAppError(http.StatusForbidden, "You are not a member of this conversation")
	ErrNotAParticipant      = NewAppError(http.StatusForbidden, "You are neither the sender nor the recipient of this message")
	ErrRecipientOnly        = NewAppError(http.StatusForbidden, "Only the recipient can change the read state")
)

// Helper functions to create specific errors
func BadRequest(msg string) *AppError {
	return NewAppError(http.StatusBadRequest, msg)
}

func NotFound(msg string) *AppError {
	return NewAppError(http.StatusNotFound, msg)
}

func Unauthorized(msg string) *AppError {
	return NewAppError(http.StatusUnauthorized, msg)
}

func Forbidden(msg string) *AppError {
	return NewAppError(http.StatusForbidden, msg)
}

func Internal(msg string) *AppError {
	return NewAppError(http.StatusInternalServerError, msg)
}

// StatusCode returns the HTTP status carried by err, or 500 when err is not an AppError.
func StatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
