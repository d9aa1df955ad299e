package apperrors

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

type ErrorType string

const (
	ErrNotAuthorized       ErrorType = "NOT_AUTHORIZED"
	ErrInvalidState        ErrorType = "INVALID_STATE"
	ErrLimitExceeded       ErrorType = "LIMIT_EXCEEDED"
	ErrWhitelistViolation  ErrorType = "WHITELIST_VIOLATION"
	ErrInsufficientBalance ErrorType = "INSUFFICIENT_BALANCE"
	ErrRegistryUnavailable ErrorType = "REGISTRY_UNAVAILABLE"
	ErrInvalidConfig       ErrorType = "INVALID_CONFIGURATION"
	ErrInvalidRequest      ErrorType = "INVALID_REQUEST"
	ErrNotFound            ErrorType = "NOT_FOUND"
	ErrInternal            ErrorType = "INTERNAL_ERROR"
)

// LimitKind identifies which cap a LIMIT_EXCEEDED error refers to.
type LimitKind string

const (
	LimitPerTx LimitKind = "per_tx"
	LimitDaily LimitKind = "daily"
	LimitValue LimitKind = "value"
	LimitCount LimitKind = "count"
)

// AppError is the standard error struct for the application.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	Limit      LimitKind `json:"limit,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewNotAuthorized(msg string) *AppError {
	return New(ErrNotAuthorized, msg, nil)
}

func NewInvalidState(msg string) *AppError {
	return New(ErrInvalidState, msg, nil)
}

func NewNotFound(msg string) *AppError {
	return New(ErrNotFound, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewInvalidConfig(msg string) *AppError {
	return New(ErrInvalidConfig, msg, nil)
}

// NewLimitExceeded reports which cap was hit and by how much. The excess is
// included so operators can tell a near miss from a runaway agent.
func NewLimitExceeded(kind LimitKind, attempted, limit decimal.Decimal) *AppError {
	e := New(ErrLimitExceeded, fmt.Sprintf(
		"%s limit exceeded: attempted %s, limit %s (over by %s)",
		kind, attempted.String(), limit.String(), attempted.Sub(limit).String()), nil)
	e.Limit = kind
	return e
}

func NewCountLimitExceeded(window string, count, limit int) *AppError {
	e := New(ErrLimitExceeded, fmt.Sprintf(
		"%s transaction count limit reached: %d of %d", window, count, limit), nil)
	e.Limit = LimitCount
	return e
}

func NewWhitelistViolation(recipient string) *AppError {
	return New(ErrWhitelistViolation,
		fmt.Sprintf("recipient %s is not on the whitelist", recipient), nil)
}

func NewInsufficientBalance(attempted, balance decimal.Decimal) *AppError {
	return New(ErrInsufficientBalance, fmt.Sprintf(
		"insufficient balance: attempted %s, available %s",
		attempted.String(), balance.String()), nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrNotAuthorized:
		return http.StatusForbidden
	case ErrInvalidState:
		return http.StatusConflict
	case ErrLimitExceeded, ErrWhitelistViolation, ErrInsufficientBalance, ErrInvalidRequest, ErrInvalidConfig:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRegistryUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrLimitExceeded:
		return "Check the delegation's spend limits or wait for the daily window to roll over."
	case ErrWhitelistViolation:
		return "Add the recipient to the delegation whitelist or disable whitelist mode."
	case ErrInsufficientBalance:
		return "Deposit additional funds into the delegation."
	case ErrNotAuthorized:
		return "Check that the caller key matches the delegation's owner or agent."
	case ErrInvalidState:
		return "Check the delegation or request lifecycle state before retrying."
	case ErrInvalidConfig:
		return "Check limit and threshold configuration values."
	default:
		return ""
	}
}
