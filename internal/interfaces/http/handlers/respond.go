package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

// respondBadRequest answers a request that failed wire-level validation.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   message,
	})
}

// respondError maps an application error onto the wire contract. The
// AppError message is client-facing by construction; causes stay in the
// logs. Rate-limit denials carry Retry-After in whole seconds, rounded up.
func respondError(c *gin.Context, err error) {
	var appErr *domainErrors.AppError
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal error",
		})
		return
	}

	if appErr.Code == domainErrors.CodeRateLimited && appErr.RetryAfter > 0 {
		seconds := int64(math.Ceil(appErr.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
	}

	c.JSON(statusOf(appErr.Code), gin.H{
		"success": false,
		"error":   appErr.Message,
		"code":    string(appErr.Code),
	})
}

func statusOf(code domainErrors.ErrorCode) int {
	switch code {
	case domainErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case domainErrors.CodeNotFound:
		return http.StatusNotFound
	case domainErrors.CodeForbidden:
		return http.StatusForbidden
	case domainErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case domainErrors.CodeProviderError:
		return http.StatusBadGateway
	case domainErrors.CodeStoreError, domainErrors.CodeServiceUnavail:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
