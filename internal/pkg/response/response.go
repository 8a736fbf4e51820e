package response

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"bitrix24-connector/internal/core/domain"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

// Response represents a standard API response
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Text codes attached to mapped errors
const (
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeAuthFailed       = "AUTHENTICATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeValidation       = "VALIDATION_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeUnreachable      = "UNREACHABLE"
	CodeRemoteAPI        = "BITRIX_API_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// Now returns the envelope timestamp
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Success sends a success response
func Success(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: Now(),
	})
}

// Created sends a 201 created response
func Created(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: Now(),
	})
}

// Error sends an error response
func Error(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(Response{
		Success:   false,
		Message:   message,
		Error:     http.StatusText(statusCode),
		Timestamp: Now(),
	})
}

// BadRequest sends a 400 bad request response
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, message)
}

// FromError maps a service error onto the envelope and its HTTP status
func FromError(c *fiber.Ctx, err error) error {
	rich := Classify(err)
	return c.Status(rich.Code).JSON(Response{
		Success:   false,
		Message:   rich.Message,
		Error:     fmt.Sprint(rich.Category),
		Code:      rich.TextCode,
		Timestamp: Now(),
	})
}

// Classify converts a domain error into a categorized error carrying the
// HTTP status in Code.
func Classify(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Code == 0 {
			rich.Code = statusFor(rich.Category)
		}
		return rich
	}

	var apiErr *domain.RemoteAPIError
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return classified(err, goerrors.CategoryAuth, http.StatusUnauthorized, CodeNotAuthenticated)
	case errors.Is(err, domain.ErrAuthenticationFailed), errors.Is(err, domain.ErrRefreshFailed):
		return classified(err, goerrors.CategoryAuth, http.StatusUnauthorized, CodeAuthFailed)
	case errors.Is(err, domain.ErrNotFound):
		return classified(err, goerrors.CategoryNotFound, http.StatusNotFound, CodeNotFound)
	case errors.Is(err, domain.ErrValidation):
		return classified(err, goerrors.CategoryValidation, http.StatusBadRequest, CodeValidation)
	case errors.Is(err, domain.ErrTimeout):
		return classified(err, goerrors.CategoryExternal, http.StatusRequestTimeout, CodeTimeout)
	case errors.Is(err, domain.ErrUnreachable):
		return classified(err, goerrors.CategoryExternal, http.StatusServiceUnavailable, CodeUnreachable)
	case errors.As(err, &apiErr):
		return classified(err, goerrors.CategoryExternal, http.StatusInternalServerError, CodeRemoteAPI).
			WithMetadata(map[string]any{"method": apiErr.Method, "remote_status": apiErr.StatusCode})
	}

	return classified(err, goerrors.CategoryInternal, http.StatusInternalServerError, CodeInternal)
}

func classified(err error, category goerrors.Category, status int, textCode string) *goerrors.Error {
	return goerrors.New(err.Error(), category).
		WithCode(status).
		WithTextCode(textCode)
}

func statusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
