package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const (
	// Ключ метаданных для связи объектов Stripe с пользователем
	metadataUserIDKey = "user_id"
	// Ключ метаданных с ценой, выбранной в Checkout
	metadataPriceIDKey = "price_id"
)

// CheckoutInput параметры сессии Stripe Checkout.
type CheckoutInput struct {
	UserID     string
	Email      string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// Client определяет методы для взаимодействия со Stripe API.
type Client interface {
	// GetOrCreateCustomer ищет клиента по userID, если не находит - создает нового.
	GetOrCreateCustomer(ctx context.Context, userID, email string) (string, error)

	// CreateCheckoutSession создает сессию оплаты подписки и возвращает ее URL.
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error)

	// CreatePortalSession создает сессию billing portal и возвращает ее URL.
	CreatePortalSession(ctx context.Context, stripeCustomerID, returnURL string) (string, error)
}

// stripeClient реализует интерфейс Client.
type stripeClient struct {
	client *client.API
	log    *logger.Logger
}

// NewStripeClient создает новый экземпляр клиента Stripe.
func NewStripeClient(apiKey string, log *logger.Logger) Client {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return newStripeClient(sc, log)
}

func newStripeClient(api *client.API, log *logger.Logger) *stripeClient {
	return &stripeClient{client: api, log: log}
}

// createCustomer создает нового клиента в Stripe.
func (sc *stripeClient) createCustomer(ctx context.Context, userID, email string) (string, error) {
	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			metadataUserIDKey: userID,
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	cus, err := sc.client.Customers.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCustomer", err)
		return "", wrapStripeError("failed to create customer", err)
	}

	sc.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "userID", userID)
	return cus.ID, nil
}

// GetOrCreateCustomer ищет клиента по user_id в метаданных через Search API.
func (sc *stripeClient) GetOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	searchParams := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['%s']:'%s'", metadataUserIDKey, userID),
			Limit:   stripe.Int64(1),
			Context: ctx,
		},
	}

	customers := sc.client.Customers.Search(searchParams)
	if customers.Next() {
		customer := customers.Customer()
		sc.log.Debugw("Found existing Stripe customer via Search", "stripeCustomerID", customer.ID, "userID", userID)
		return customer.ID, nil
	}

	if err := customers.Err(); err != nil {
		logStripeError(sc.log, "SearchCustomers", err)
		var stripeErr *stripe.Error
		if !errors.As(err, &stripeErr) || stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return "", wrapStripeError("failed to search customer", err)
		}
		sc.log.Warnw("Non-fatal error during customer search, proceeding to create", "error", err)
	}

	return sc.createCustomer(ctx, userID, email)
}

// CreateCheckoutSession создает сессию Checkout в режиме подписки.
// user_id и price_id кладутся в метаданные сессии и подписки для вебхуков.
func (sc *stripeClient) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	customerID, err := sc.GetOrCreateCustomer(ctx, in.UserID, in.Email)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{
		metadataUserIDKey:  in.UserID,
		metadataPriceIDKey: in.PriceID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(in.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(in.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.Metadata = metadata
	params.Context = ctx

	sess, err := sc.client.CheckoutSessions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreateCheckoutSession", err)
		return "", wrapStripeError("failed to create checkout session", err)
	}

	sc.log.Infow("Stripe checkout session created", "sessionID", sess.ID, "userID", in.UserID, "priceID", in.PriceID)
	return sess.URL, nil
}

// CreatePortalSession создает сессию billing portal.
func (sc *stripeClient) CreatePortalSession(ctx context.Context, stripeCustomerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(stripeCustomerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := sc.client.BillingPortalSessions.New(params)
	if err != nil {
		logStripeError(sc.log, "CreatePortalSession", err)
		return "", wrapStripeError("failed to create portal session", err)
	}
	return sess.URL, nil
}

func wrapStripeError(op string, err error) error {
	status := 0
	code := ""
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		status = stripeErr.HTTPStatusCode
		code = string(stripeErr.Code)
	}
	return domain.NewExternalServiceError("stripe", code, op, status, err)
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
