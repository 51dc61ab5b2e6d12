// Package apperrors defines the application error taxonomy. Errors produced
// here carry a stable code, a user-safe message, and retry metadata; raw
// store or network errors never cross the service boundary.
package apperrors

import (
	"fmt"
	"net/http"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	CodeValidation          = "E100"
	CodeDatabase            = "E200"
	CodeExternalAPI         = "E300"
	CodeAuth                = "E401"
	CodeInsufficientBalance = "E402"
	CodeNotFound            = "E404"
	CodeRateLimit           = "E429"
	CodeStoreWrite          = "E502"
)

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// HTTPStatus maps the error code to the status the API responds with.
func (e *AppError) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}

	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeInsufficientBalance:
		return http.StatusPaymentRequired
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimit:
		return http.StatusTooManyRequests
	case CodeExternalAPI, CodeStoreWrite, CodeDatabase:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: msg,
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

func NewAuthError(cause error) *AppError {
	return &AppError{
		Code:        CodeAuth,
		Message:     "no authenticated session",
		UserMessage: "Please sign in to continue",
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       cause,
	}
}

func NewNotFoundError(what string) *AppError {
	return &AppError{
		Code:        CodeNotFound,
		Message:     fmt.Sprintf("%s not found", what),
		UserMessage: "We couldn't find your profile",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

func NewInsufficientBalanceError(cost, have int64) *AppError {
	return &AppError{
		Code:        CodeInsufficientBalance,
		Message:     fmt.Sprintf("insufficient balance: need %d, have %d", cost, have),
		UserMessage: "Not enough energy. Visit the store to recharge",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

func NewStoreWriteError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeStoreWrite,
		Message:     fmt.Sprintf("profile store write failed: %s", underlyingMsg),
		UserMessage: "Something went wrong. Please try again",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        CodeDatabase,
		Message:     fmt.Sprintf("database error: %s", underlyingMsg),
		UserMessage: "Temporary problem, please try again later",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        CodeExternalAPI,
		Message:     fmt.Sprintf("external API error: %s", apiName),
		UserMessage: "The oracle is silent right now. Try again in a moment",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}
