package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/Muneerali199/DocMagic-sub004/pkg/res"

	"github.com/gin-gonic/gin"
)

// statusFor сопоставляет доменную ошибку с HTTP статусом и текстом для клиента.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "Insufficient credits"
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, "Webhook signature verification failed"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid request data"
	case errors.Is(err, domain.ErrSubscriptionPlanNotFound):
		return http.StatusBadRequest, "Unknown subscription plan"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable, "Service is not configured"
	case errors.Is(err, domain.ErrUpstreamRateLimited):
		return http.StatusTooManyRequests, "Upstream provider is rate limiting requests, try again later"
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusInternalServerError, "Upstream provider failed"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError пишет ответ об ошибке; 402 получает тело с предложением апгрейда.
func writeError(c *gin.Context, err error, log *logger.Logger) {
	var insufficient *domain.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		res.JsonResponse(c.Writer, res.InsufficientCreditsResponse{
			Success:          false,
			Error:            "Insufficient credits",
			CreditsRemaining: insufficient.Remaining,
			CreditsRequired:  insufficient.Required,
			Tier:             string(insufficient.Tier),
			NeedsUpgrade:     true,
			Message:          upgradeMessage(insufficient),
		}, http.StatusPaymentRequired)
		c.Abort()
		return
	}

	status, message := statusFor(err)
	body := res.ErrorResponse{Success: res.Failure(), Error: message}
	if status == http.StatusBadRequest && errors.Is(err, domain.ErrInvalidInput) {
		body.Details = strings.TrimPrefix(err.Error(), domain.ErrInvalidInput.Error()+": ")
	}
	if gin.Mode() == gin.DebugMode && status >= http.StatusInternalServerError {
		body.DebugInfo = err.Error()
	}
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "error", err, "path", c.Request.URL.Path, "status", status)
		res.JsonResponse(c.Writer, body, status)
	} else {
		res.JsonErrorResponse(c.Writer, body, status, log)
	}
	c.Abort()
}

func upgradeMessage(e *domain.InsufficientCreditsError) string {
	if e.Tier == domain.TierEnterprise {
		return "You have used all credits for this period. Credits reset at the start of next month."
	}
	return "You don't have enough credits for this action. Upgrade your plan to get more credits."
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
}
