package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes used across the feed engine.
const (
	CodeUnauthenticated   = "UNAUTHENTICATED"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNetwork           = "NETWORK_ERROR"
	CodeHTTP              = "HTTP_ERROR"
	CodeMalformedResponse = "MALFORMED_RESPONSE"
	CodeCancelled         = "CANCELLED"
	CodeStorage           = "STORAGE_ERROR"
)

// AppError is the engine's typed error. Code identifies the failure class,
// Status is set only for CodeHTTP.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewUnauthenticatedError(message string) *AppError {
	return &AppError{
		Code:    CodeUnauthenticated,
		Message: message,
	}
}

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewNetworkError(err error) *AppError {
	return &AppError{
		Code:    CodeNetwork,
		Message: "network request failed",
		Err:     err,
	}
}

func NewHTTPError(status int) *AppError {
	return &AppError{
		Code:    CodeHTTP,
		Message: fmt.Sprintf("server responded with status %d", status),
		Status:  status,
	}
}

func NewMalformedResponseError(message string) *AppError {
	return &AppError{
		Code:    CodeMalformedResponse,
		Message: message,
	}
}

func NewCancelledError() *AppError {
	return &AppError{
		Code:    CodeCancelled,
		Message: "request superseded by a newer one",
	}
}

func NewStorageError(err error) *AppError {
	return &AppError{
		Code:    CodeStorage,
		Message: "cache store operation failed",
		Err:     err,
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsCancelled reports whether err is a superseded-request outcome. Cancellation
// is never a user-visible failure.
func IsCancelled(err error) bool {
	return IsCode(err, CodeCancelled)
}
