package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/credits"
	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/internal/metering"
	"github.com/Muneerali199/DocMagic-sub004/internal/middleware"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/Muneerali199/DocMagic-sub004/pkg/req"
	"github.com/Muneerali199/DocMagic-sub004/pkg/res"

	"github.com/gin-gonic/gin"
)

const (
	defaultUsageLimit = 50
	maxUsageLimit     = 200

	// статус для пользователей без подписки Stripe
	subscriptionStatusNone = "none"
)

// Metering часть metering.Meter, нужная обработчикам.
type Metering interface {
	Balance(ctx context.Context, userID string) (*domain.UserCredits, error)
	Run(ctx context.Context, req metering.Request, fn metering.Action) (*metering.Result, error)
}

// UsageLister читает журнал списаний.
type UsageLister interface {
	ListUsage(ctx context.Context, userID string, limit int) ([]domain.CreditUsage, error)
}

// CreditsHandler обрабатывает /credits.
type CreditsHandler struct {
	meter Metering
	usage UsageLister
	subs  repository.SubscriptionRepository
	log   *logger.Logger
}

// NewCreditsHandler создает новый экземпляр CreditsHandler.
func NewCreditsHandler(meter Metering, usage UsageLister, subs repository.SubscriptionRepository, log *logger.Logger) *CreditsHandler {
	return &CreditsHandler{
		meter: meter,
		usage: usage,
		subs:  subs,
		log:   log,
	}
}

// CreditsResponse ответ GET /credits.
type CreditsResponse struct {
	Tier               domain.Tier               `json:"tier"`
	TierName           string                    `json:"tierName"`
	CreditsTotal       int                       `json:"creditsTotal"`
	CreditsUsed        int                       `json:"creditsUsed"`
	CreditsRemaining   int                       `json:"creditsRemaining"`
	Features           []string                  `json:"features"`
	ResetDate          time.Time                 `json:"resetDate"`
	ActionCosts        map[domain.ActionType]int `json:"actionCosts"`
	SubscriptionStatus string                    `json:"subscriptionStatus"`
}

// ConsumeRequest тело POST /credits.
type ConsumeRequest struct {
	Action   string          `json:"action" validate:"required"`
	Metadata domain.Metadata `json:"metadata"`
}

// ConsumeResponse ответ успешного POST /credits.
type ConsumeResponse struct {
	Success          bool        `json:"success"`
	CreditsUsed      int         `json:"creditsUsed"`
	CreditsRemaining int         `json:"creditsRemaining"`
	Tier             domain.Tier `json:"tier"`
}

// GetCredits обрабатывает GET /credits
func (h *CreditsHandler) GetCredits(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	uc, err := h.meter.Balance(ctx, userID)
	if err != nil {
		writeError(c, err, h.log)
		return
	}

	status := subscriptionStatusNone
	sub, err := h.subs.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		status = string(sub.Status)
	case errors.Is(err, repository.ErrNotFound):
	default:
		// баланс важнее статуса подписки
		h.log.Warnw("Failed to load subscription status", "error", err, "userID", userID)
	}

	res.JsonResponse(c.Writer, CreditsResponse{
		Tier:               uc.Tier,
		TierName:           credits.TierNames[uc.Tier],
		CreditsTotal:       uc.CreditsTotal,
		CreditsUsed:        uc.CreditsUsed,
		CreditsRemaining:   credits.Remaining(uc.CreditsTotal, uc.CreditsUsed),
		Features:           credits.TierFeatures[uc.Tier],
		ResetDate:          uc.CreditsResetAt,
		ActionCosts:        credits.ActionCosts,
		SubscriptionStatus: status,
	}, http.StatusOK)
}

// ConsumeCredits обрабатывает POST /credits: списание без генерации.
// Для презентаций множитель берется из metadata.slideCount.
func (h *CreditsHandler) ConsumeCredits(c *gin.Context) {
	body, err := req.HandleBody[ConsumeRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	action, err := domain.ParseAction(body.Action)
	if err != nil {
		writeError(c, err, h.log)
		return
	}

	multiplier := 0
	if action == domain.ActionPresentation {
		multiplier, err = slideCount(body.Metadata)
		if err != nil {
			writeError(c, err, h.log)
			return
		}
	}

	result, err := h.meter.Run(c.Request.Context(), metering.Request{
		UserID:     middleware.UserID(c),
		Action:     action,
		Multiplier: multiplier,
		Metadata:   body.Metadata,
	}, nil)
	if err != nil {
		writeError(c, err, h.log)
		return
	}

	res.JsonResponse(c.Writer, ConsumeResponse{
		Success:          true,
		CreditsUsed:      result.CreditsUsed,
		CreditsRemaining: result.CreditsRemaining,
		Tier:             result.Tier,
	}, http.StatusOK)
}

// ListUsage обрабатывает GET /credits/usage?limit=N
func (h *CreditsHandler) ListUsage(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		writeError(c, domain.ErrUnauthenticated, h.log)
		return
	}

	limit := defaultUsageLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			res.JsonErrorResponse(c.Writer, res.ErrorResponse{Success: res.Failure(), Error: "limit must be a positive integer"}, http.StatusBadRequest, h.log)
			return
		}
		limit = min(n, maxUsageLimit)
	}

	usage, err := h.usage.ListUsage(c.Request.Context(), userID, limit)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, gin.H{"usage": usage}, http.StatusOK)
}

func slideCount(metadata domain.Metadata) (int, error) {
	raw, ok := metadata["slideCount"]
	if !ok {
		return 0, invalidInput("metadata.slideCount is required for presentations")
	}
	n, ok := raw.(float64)
	if !ok || n < 1 || n > credits.MaxSlides || n != float64(int(n)) {
		return 0, invalidInput(fmt.Sprintf("metadata.slideCount must be an integer between 1 and %d", credits.MaxSlides))
	}
	return int(n), nil
}
