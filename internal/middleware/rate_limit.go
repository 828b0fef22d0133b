package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/Muneerali199/DocMagic-sub004/pkg/res"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const rateLimitPrefix = "docmagic_rate"

// NewRateLimiter ограничивает частоту запросов на пользователя (или IP до аутентификации).
// rate в формате limiter, например "60-M". Без redis используется память процесса.
func NewRateLimiter(rate string, client *redis.Client, log *logger.Logger) (gin.HandlerFunc, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("middleware: invalid rate %q: %w", rate, err)
	}

	var store limiter.Store
	if client != nil {
		store, err = sredis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:   rateLimitPrefix,
			MaxRetry: 3,
		})
		if err != nil {
			return nil, fmt.Errorf("middleware: rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          rateLimitPrefix,
			CleanUpInterval: time.Minute,
		})
	}

	instance := limiter.New(store, parsed)
	return mgin.NewMiddleware(instance,
		mgin.WithKeyGetter(func(c *gin.Context) string {
			if userID := UserID(c); userID != "" {
				return "user:" + userID
			}
			return "ip:" + c.ClientIP()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			log.Warnw("Rate limit reached", "path", c.Request.URL.Path, "userID", UserID(c))
			res.JsonResponse(c.Writer, res.ErrorResponse{
				Success: res.Failure(),
				Error:   "Too many requests",
			}, http.StatusTooManyRequests)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			// хранилище недоступно: запрос пропускается.
			// mgin вызывает c.Abort() после OnError, поэтому цепочка
			// должна отработать здесь через c.Next().
			log.Errorw("Rate limiter store error", "error", err)
			c.Next()
		}),
	), nil
}

// CORS разрешает фронтенду вызывать API с bearer-токеном.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Stripe-Signature"},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
