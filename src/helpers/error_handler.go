package helpers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"market-relay/src/logger"

	"github.com/cenkalti/backoff/v5"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type RelayError struct {
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Distinct error types for errors.As
type ValidationError struct{ RelayError }
type LimitExceededError struct{ RelayError }
type NotFoundError struct{ RelayError }
type UpstreamError struct{ RelayError }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{RelayError{Message: fmt.Sprintf(format, args...)}}
}

func NewLimitExceededError(cause error) error {
	return &LimitExceededError{RelayError{Message: "subscription limit exceeded", Cause: cause}}
}

func NewNotFoundError(what string, cause error) error {
	return &NotFoundError{RelayError{Message: what + " not found", Cause: cause}}
}

func NewUpstreamError(operation string, cause error) error {
	return &UpstreamError{RelayError{Message: operation + " failed", Cause: cause}}
}

// -----------------------------------------------------------------------------

// HTTPStatus maps an error from the relay layers to the control API status code.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		limit      *LimitExceededError
		notFound   *NotFoundError
		upstream   *UpstreamError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &limit):
		return http.StatusTooManyRequests
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to maxRetries times with exponential backoff
// starting at baseDelay. Validation errors are not retried.
func RetryWithBackoff[T any](ctx context.Context, log *logger.Logger, operation string, maxRetries uint, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.Multiplier = 2

	attempt := 0
	op := func() (T, error) {
		attempt++
		res, err := fn()
		if err == nil {
			return res, nil
		}
		var validation *ValidationError
		if errors.As(err, &validation) {
			return res, backoff.Permanent(err)
		}
		if log != nil && attempt < int(maxRetries) {
			log.Warning("Attempt %d/%d failed for %s: %v", attempt, maxRetries, operation, err)
		}
		return res, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxRetries),
	)
	if err != nil {
		var validation *ValidationError
		if errors.As(err, &validation) {
			return res, err
		}
		if log != nil {
			log.Error("%s failed after %d attempts: %v", operation, attempt, err)
		}
		return res, NewUpstreamError(operation, err)
	}
	return res, nil
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

type ErrorHandler struct {
	Logger *logger.Logger
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	if log == nil {
		log = logger.NewLogger(nil, "ErrorHandler")
	}
	return &ErrorHandler{Logger: log}
}

// -----------------------------------------------------------------------------

// Handle logs err under the given context and reports whether there was one.
func (e *ErrorHandler) Handle(err error, context string) bool {
	if err == nil {
		return false
	}
	e.Logger.With("error", err.Error()).Error("Error in %s", context)
	return true
}
