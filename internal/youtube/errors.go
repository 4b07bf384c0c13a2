package youtube

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	// ErrQuotaExhausted is the terminal error of a search that the API
	// refused or failed and that no cached result can stand in for
	ErrQuotaExhausted = errors.New("youtube unavailable and no cached fallback")

	// ErrChannelNotFound is returned when a channel lookup has no items
	ErrChannelNotFound = errors.New("channel not found")
)

// ConfigError reports a missing or invalid setting. The request is never
// attempted.
type ConfigError struct {
	Setting string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("youtube client misconfigured: %s is not set", e.Setting)
}

// APIError is a non-2xx response from the API
type APIError struct {
	Endpoint   Endpoint
	StatusCode int
	Reason     string
	Message    string
	Body       string

	err *googleapi.Error
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("youtube %s: HTTP %d (%s): %s", e.Endpoint, e.StatusCode, e.Reason, e.Message)
	}
	return fmt.Sprintf("youtube %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.err == nil {
		return nil
	}
	return e.err
}

func newAPIError(endpoint Endpoint, gerr *googleapi.Error) *APIError {
	apiErr := &APIError{
		Endpoint:   endpoint,
		StatusCode: gerr.Code,
		Message:    gerr.Message,
		Body:       gerr.Body,
		err:        gerr,
	}
	if len(gerr.Errors) > 0 {
		apiErr.Reason = gerr.Errors[0].Reason
		if apiErr.Message == "" {
			apiErr.Message = gerr.Errors[0].Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(gerr.Code)
	}
	return apiErr
}

var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"dailyLimitExceeded":    true,
	"userRateLimitExceeded": true,
}

// IsQuotaError reports whether err is a quota or rate-limit refusal
func IsQuotaError(err error) bool {
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return apiErr.StatusCode == http.StatusForbidden && quotaReasons[apiErr.Reason]
}
