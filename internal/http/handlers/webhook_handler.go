package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/Muneerali199/DocMagic-sub004/pkg/res"

	"github.com/gin-gonic/gin"
)

const (
	// Ограничение на размер тела запроса вебхука (Stripe рекомендует ~65kb)
	maxRequestBodySize = int64(65536)
)

// WebhookProcessor проверяет и применяет доставку вебхука.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, sigHeader string) error
}

// WebhookHandler обрабатывает входящие вебхуки от Stripe.
type WebhookHandler struct {
	processor WebhookProcessor
	log       *logger.Logger
}

// NewWebhookHandler создает новый экземпляр WebhookHandler.
func NewWebhookHandler(processor WebhookProcessor, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		log:       log,
	}
}

// HandleStripeWebhook - обработчик для Gin, принимающий вебхуки Stripe.
// 400 только для неверной подписи и нечитаемого тела, остальные ошибки 500,
// чтобы Stripe повторил доставку.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Тело читается один раз: подпись считается по сырым байтам
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	//goland:noinspection GoUnhandledErrorResult
	defer c.Request.Body.Close()

	if err != nil {
		h.log.Errorw("Failed to read webhook request body", "error", err)
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Cannot read request body"}, http.StatusBadRequest)
		c.Abort()
		return
	}

	err = h.processor.Process(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true})
	case errors.Is(err, domain.ErrInvalidSignature):
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Webhook signature verification failed"}, http.StatusBadRequest)
		c.Abort()
	case errors.Is(err, domain.ErrConfiguration):
		h.log.Errorw("Stripe webhook secret is not configured")
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Webhook is not configured"}, http.StatusInternalServerError)
		c.Abort()
	default:
		h.log.Errorw("Error processing webhook event", "error", err)
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Internal server error processing webhook"}, http.StatusInternalServerError)
		c.Abort()
	}
}
