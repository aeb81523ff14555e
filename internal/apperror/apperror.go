package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrLimitReached        = errors.New("container limit reached")
	ErrPortExhausted       = errors.New("port range exhausted")
	ErrEngine              = errors.New("runtime engine error")
)

// AppError pairs a sentinel with a message safe to show to callers.
// Internal detail (engine output, SQL errors) stays in the wrapped chain and
// the operator log, never in Message.
type AppError struct {
	Err     error  // sentinel the HTTP layer maps on
	Message string // human-readable, user-safe
	Field   string // optional: field causing a validation error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message}
}

func Forbidden(message string) *AppError {
	return &AppError{Err: ErrForbidden, Message: message}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func NotFound(resource, name string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with name %s", resource, name),
	}
}

func Conflict(resource, name string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already exists with name %s", resource, name),
	}
}

// InsufficientCredits reports a failed credit reservation. The price is
// included so the caller knows what the request would have cost.
func InsufficientCredits(price int64) *AppError {
	return &AppError{
		Err:     ErrInsufficientCredits,
		Message: fmt.Sprintf("not enough credits: this container costs %d", price),
	}
}

func LimitReached(limit int) *AppError {
	return &AppError{
		Err:     ErrLimitReached,
		Message: fmt.Sprintf("plan limit of %d containers reached, delete an existing container first", limit),
	}
}

func PortExhausted() *AppError {
	return &AppError{
		Err:     ErrPortExhausted,
		Message: "no ports are available right now, try again later",
	}
}

// Engine wraps a runtime-engine failure with a generic user-facing message.
// The engine's own error stays reachable via errors.Unwrap for logging.
func Engine(op string, err error) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %s: %w", ErrEngine, op, err),
		Message: "container runtime operation failed, please contact support",
	}
}
