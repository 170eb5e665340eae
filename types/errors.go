package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("component not running")
	ErrServerAlreadyRunning = errors.New("component already running")
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrUnauthorized           = errors.New("unauthorized - please sign in again")
	ErrAPI                    = errors.New("api error")
	ErrRequestTimeout         = errors.New("request timeout")
	ErrTransport              = errors.New("transport error")
	ErrStreamParse            = errors.New("stream message parse failed")
	ErrCircuitBreakerOpen     = errors.New("circuit breaker open")
	ErrClientClosed           = errors.New("client closed")
	ErrResponseInvalid        = errors.New("response body is not valid JSON")
	ErrIdentityChanged        = errors.New("signed-in identity changed")
)

var (
	ErrCacheKeyEmpty     = errors.New("cache key empty")
	ErrQueryNotFetchable = errors.New("query has no fetcher")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
)

var (
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidState     = errors.New("invalid state")
)

// APIError is returned for every non-2xx response other than 401.
type APIError struct {
	Status int
	Body   []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %d", e.Status)
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}

func NewAPIError(status int, body []byte) *APIError {
	return &APIError{Status: status, Body: body}
}

// TransportError keeps the network cause reachable through errors.Is/As.
func TransportError(cause error) error {
	if cause == nil {
		return ErrTransport
	}
	return fmt.Errorf("%w: %w", ErrTransport, cause)
}

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
