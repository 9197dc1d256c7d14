package chat

import (
	"chat-gateway/internal/repository/db"
	"chat-gateway/internal/service/llm"
	"errors"
	"fmt"
)

var (
	ErrValidation    = errors.New("invalid request")
	ErrQuotaExceeded = errors.New("token quota exceeded")
	ErrCancelled     = errors.New("request cancelled")
	ErrAugmentation  = errors.New("search augmentation failed")
)

// Opaque error codes reported to clients
const (
	CodeValidation         = "validation_failed"
	CodeQuotaExceeded      = "quota_exceeded"
	CodeNotFound           = "not_found"
	CodeCancelled          = "cancelled"
	CodeBackendUnavailable = "backend_unavailable"
	CodeBackendError       = "backend_error"
	CodeSearchFailed       = "search_failed"
	CodeInternal           = "internal_error"
)

// Error is a failure reported before the response stream was opened
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func validationError(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Err: fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))}
}

// CodeFor maps an error to its client-facing code
func CodeFor(err error) string {
	var chatErr *Error
	var statusErr *llm.StatusError
	var streamErr *llm.StreamError
	switch {
	case errors.As(err, &chatErr):
		return chatErr.Code
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrQuotaExceeded):
		return CodeQuotaExceeded
	case errors.Is(err, ErrCancelled):
		return CodeCancelled
	case errors.Is(err, db.ErrUserNotFound), errors.Is(err, db.ErrConversationNotFound):
		return CodeNotFound
	case errors.Is(err, ErrAugmentation):
		return CodeSearchFailed
	case errors.Is(err, llm.ErrBackendUnavailable):
		return CodeBackendUnavailable
	case errors.As(err, &statusErr), errors.As(err, &streamErr):
		return CodeBackendError
	default:
		return CodeInternal
	}
}
