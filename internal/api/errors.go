package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/middleware"
)

// respondError is the single boundary converting the error taxonomy to
// HTTP shape. Fatal and transient causes are logged under the request's
// correlation id; their bodies never leak internals.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := errs.KindOf(err)

	status := http.StatusInternalServerError
	message := "internal error"

	switch kind {
	case errs.Unauthenticated:
		status, message = http.StatusUnauthorized, clientMessage(err, "unauthenticated")
	case errs.Forbidden:
		status, message = http.StatusForbidden, clientMessage(err, "forbidden")
	case errs.NotFound:
		status, message = http.StatusNotFound, clientMessage(err, "not found")
	case errs.Conflict:
		status, message = http.StatusConflict, clientMessage(err, "conflict")
	case errs.InvalidInput:
		status, message = http.StatusBadRequest, clientMessage(err, "invalid input")
	case errs.Throttled:
		status, message = http.StatusTooManyRequests, "rate limit exceeded"
	case errs.Transient:
		status, message = http.StatusServiceUnavailable, "temporarily unavailable"
		logger.Warn("transient error surfaced",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
	default:
		logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	c.JSON(status, gin.H{"error": message})
}

// clientMessage surfaces the taxonomy error's message; anything else
// gets the fallback so wrapped internals stay private.
func clientMessage(err error, fallback string) string {
	var e *errs.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
