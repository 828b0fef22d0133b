package stripe

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *stripeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	api := &client.API{}
	api.Init("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return newStripeClient(api, logger.NewNop())
}

func TestCreateCheckoutSession_ReusesCustomerAndTagsMetadata(t *testing.T) {
	var form map[string]string
	sc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1/customers/search":
			assert.Contains(t, r.URL.Query().Get("query"), "metadata['user_id']:'u1'")
			_, _ = w.Write([]byte(`{"object":"search_result","url":"/v1/customers/search","has_more":false,"data":[{"id":"cus_1","object":"customer"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
			require.NoError(t, r.ParseForm())
			form = map[string]string{}
			for k := range r.PostForm {
				form[k] = r.PostForm.Get(k)
			}
			_, _ = w.Write([]byte(`{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_1"}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	url, err := sc.CreateCheckoutSession(t.Context(), CheckoutInput{
		UserID:     "u1",
		PriceID:    "price_pro",
		SuccessURL: "https://app.example.com/ok",
		CancelURL:  "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", url)

	assert.Equal(t, "subscription", form["mode"])
	assert.Equal(t, "cus_1", form["customer"])
	assert.Equal(t, "u1", form["metadata[user_id]"])
	assert.Equal(t, "price_pro", form["metadata[price_id]"])
	assert.Equal(t, "u1", form["subscription_data[metadata][user_id]"])
	assert.Equal(t, "price_pro", form["line_items[0][price]"])
}

func TestGetOrCreateCustomer_CreatesWhenMissing(t *testing.T) {
	created := false
	sc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/customers/search" {
			_, _ = w.Write([]byte(`{"object":"search_result","url":"/v1/customers/search","has_more":false,"data":[]}`))
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "u7", r.PostForm.Get("metadata[user_id]"))
		assert.Equal(t, "u7@example.com", r.PostForm.Get("email"))
		created = true
		_, _ = w.Write([]byte(`{"id":"cus_new","object":"customer"}`))
	})

	id, err := sc.GetOrCreateCustomer(t.Context(), "u7", "u7@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus_new", id)
	assert.True(t, created)
}

func TestCreatePortalSession_MapsStripeErrors(t *testing.T) {
	sc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"rate_limit","message":"slow down"}}`))
	})

	_, err := sc.CreatePortalSession(t.Context(), "cus_1", "https://app.example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimited)
	assert.True(t, strings.Contains(err.Error(), "portal"))
}
