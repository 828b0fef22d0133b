package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Muneerali199/DocMagic-sub004/internal/domain"
	"github.com/Muneerali199/DocMagic-sub004/internal/repository"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthenticated", domain.ErrUnauthenticated, http.StatusUnauthorized},
		{"insufficient", domain.NewInsufficientCreditsError(5, 1, domain.TierFree), http.StatusPaymentRequired},
		{"signature", fmt.Errorf("%w: bad", domain.ErrInvalidSignature), http.StatusBadRequest},
		{"input", invalidInput("x"), http.StatusBadRequest},
		{"plan", domain.ErrSubscriptionPlanNotFound, http.StatusBadRequest},
		{"not found", repository.ErrNotFound, http.StatusNotFound},
		{"configuration", domain.ErrConfiguration, http.StatusServiceUnavailable},
		{"rate limited", domain.NewExternalServiceError("openai", "rate_limited", "", http.StatusTooManyRequests, nil), http.StatusTooManyRequests},
		{"upstream", domain.NewExternalServiceError("openai", "upstream_error", "", http.StatusBadGateway, nil), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, msg := statusFor(tt.err)
			assert.Equal(t, tt.want, got)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestWriteError_InvalidInputDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/credits", nil)

	writeError(c, invalidInput("metadata.slideCount is required for presentations"), logger.NewNop())

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid request data","details":"metadata.slideCount is required for presentations"}`, w.Body.String())
	assert.True(t, c.IsAborted())
}

func TestWriteError_EnterpriseMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/generate/letter", nil)

	writeError(c, domain.NewInsufficientCreditsError(1, 0, domain.TierEnterprise), logger.NewNop())

	require.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "reset at the start of next month")
}

type stubProcessor struct{ err error }

func (p stubProcessor) Process(ctx context.Context, payload []byte, sigHeader string) error {
	return p.err
}

func TestHandleStripeWebhook_StatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"signature", fmt.Errorf("%w: mismatch", domain.ErrInvalidSignature), http.StatusBadRequest},
		{"not configured", domain.ErrConfiguration, http.StatusInternalServerError},
		{"store", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.POST("/webhooks/stripe", NewWebhookHandler(stubProcessor{err: tt.err}, logger.NewNop()).HandleStripeWebhook)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{}`)))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

type downPinger struct{}

func (downPinger) PingContext(ctx context.Context) error { return errors.New("connection refused") }

func TestHealth_DatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", Health(downPinger{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListUsage_RejectsBadLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	h := NewCreditsHandler(nil, repository.NewInMemoryCreditsRepository(log), repository.NewInMemorySubscriptionRepository(log), log)

	router := gin.New()
	router.GET("/credits/usage", func(c *gin.Context) {
		c.Set("userID", "u1")
		h.ListUsage(c)
	})

	for _, q := range []string{"0", "-3", "ten"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/credits/usage?limit="+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/credits/usage?limit=1000", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"usage":[]}`, w.Body.String())
}

func TestSlideCount_Bounds(t *testing.T) {
	cases := []struct {
		raw  any
		want int
		ok   bool
	}{
		{float64(1), 1, true},
		{float64(50), 50, true},
		{float64(0), 0, false},
		{float64(51), 0, false},
		{1.5, 0, false},
		{"4", 0, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.raw), func(t *testing.T) {
			n, err := slideCount(domain.Metadata{"slideCount": tc.raw})
			if !tc.ok {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, n)
		})
	}

	_, err := slideCount(domain.Metadata{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
