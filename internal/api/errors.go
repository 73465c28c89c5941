package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

const codeInvalidRequest = "invalid_request"

// statusFor maps an error kind to its HTTP status.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicate, domain.KindStateConflict:
		return http.StatusConflict
	case domain.KindCapacity:
		return http.StatusUnprocessableEntity
	case domain.KindCooldown, domain.KindRateLimit:
		return http.StatusTooManyRequests
	case domain.KindStorage:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as an ErrorResponse. Storage and internal details
// are logged, not returned.
func (h *Handlers) writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	body := ErrorResponse{Error: err.Error(), Code: domain.CodeOf(err)}

	var de *domain.Error
	if errors.As(err, &de) {
		body.Error = de.Message
		if de.RetryAfter > 0 {
			body.RetryAfterMs = de.RetryAfter.Milliseconds()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(de.RetryAfter.Seconds()))))
		}
	} else {
		body.Error = "internal error"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", requestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handlers) writeBindError(c *gin.Context, err error) {
	h.logger.Debug("invalid request body",
		zap.String("request_id", requestID(c)),
		zap.Error(err))
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: err.Error(),
		Code:  codeInvalidRequest,
	})
}
