package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/internal/middleware"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/internal/stripe"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/Muneerali199/DocMagic-sub004/pkg/req"
	"github.com/Muneerali199/DocMagic-sub004/pkg/res"

	"github.com/gin-gonic/gin"
)

// BillingHandler создает сессии Stripe Checkout и billing portal.
type BillingHandler struct {
	stripe    stripe.Client
	plans     repository.PlanRepository
	subs      repository.SubscriptionRepository
	publicURL string
	log       *logger.Logger
}

// NewBillingHandler создает новый экземпляр BillingHandler.
// stripeClient может быть nil, если ключ Stripe не задан.
func NewBillingHandler(stripeClient stripe.Client, plans repository.PlanRepository, subs repository.SubscriptionRepository, publicURL string, log *logger.Logger) *BillingHandler {
	return &BillingHandler{
		stripe:    stripeClient,
		plans:     plans,
		subs:      subs,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log,
	}
}

type CheckoutRequest struct {
	PriceID string `json:"priceId" validate:"required"`
}

type SessionResponse struct {
	URL string `json:"url"`
}

// ListPlans обрабатывает GET /billing/plans
func (h *BillingHandler) ListPlans(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context())
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	active := make([]domain.SubscriptionPlan, 0, len(plans))
	for _, p := range plans {
		if p.Active {
			active = append(active, p)
		}
	}
	res.JsonResponse(c.Writer, gin.H{"plans": active}, http.StatusOK)
}

// CreateCheckout обрабатывает POST /billing/checkout
func (h *BillingHandler) CreateCheckout(c *gin.Context) {
	if h.stripe == nil {
		writeError(c, domain.ErrConfiguration, h.log)
		return
	}

	body, err := req.HandleBody[CheckoutRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	ctx := c.Request.Context()
	if _, err := h.plans.GetByPriceID(ctx, body.PriceID); err != nil {
		writeError(c, err, h.log)
		return
	}

	url, err := h.stripe.CreateCheckoutSession(ctx, stripe.CheckoutInput{
		UserID:     middleware.UserID(c),
		Email:      middleware.UserEmail(c),
		PriceID:    body.PriceID,
		SuccessURL: h.publicURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.publicURL + "/pricing",
	})
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, SessionResponse{URL: url}, http.StatusOK)
}

// CreatePortal обрабатывает POST /billing/portal
func (h *BillingHandler) CreatePortal(c *gin.Context) {
	if h.stripe == nil {
		writeError(c, domain.ErrConfiguration, h.log)
		return
	}

	ctx := c.Request.Context()
	sub, err := h.subs.GetByUserID(ctx, middleware.UserID(c))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		writeError(c, err, h.log)
		return
	}
	if sub == nil || sub.StripeCustomerID == "" {
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{Success: res.Failure(), Error: "No billing account for this user"}, http.StatusNotFound, h.log)
		return
	}

	url, err := h.stripe.CreatePortalSession(ctx, sub.StripeCustomerID, h.publicURL+"/settings/billing")
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, SessionResponse{URL: url}, http.StatusOK)
}
