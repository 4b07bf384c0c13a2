package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tubemetrics/freshness/internal/channelsync"
	"github.com/tubemetrics/freshness/internal/history"
	"github.com/tubemetrics/freshness/internal/youtube"
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// toAPIError maps a domain error to its HTTP status
func toAPIError(err error) *Error {
	var apiErr *Error
	var validation *channelsync.ValidationError
	var configErr *youtube.ConfigError

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &validation):
		return NewError(http.StatusBadRequest, validation.Error())
	case errors.Is(err, channelsync.ErrSyncInProgress):
		return NewError(http.StatusConflict, err.Error())
	case errors.Is(err, youtube.ErrQuotaExhausted):
		return NewError(http.StatusServiceUnavailable, "YouTube API unavailable and no cached result is available")
	case errors.Is(err, youtube.ErrChannelNotFound), errors.Is(err, history.ErrNoSnapshot):
		return NewError(http.StatusNotFound, err.Error())
	case errors.As(err, &configErr):
		return NewError(http.StatusInternalServerError, configErr.Error())
	default:
		return NewError(http.StatusInternalServerError, "internal error")
	}
}

// respondError writes err as {"error": message}
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	apiErr := toAPIError(err)
	if apiErr.Code >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", apiErr.Code),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(apiErr.Code, gin.H{"error": apiErr.Message})
}
