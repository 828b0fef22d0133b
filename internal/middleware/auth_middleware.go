package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/Muneerali199/DocMagic-sub004/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ContextUserIDKey ключ ID пользователя в gin.Context
	ContextUserIDKey = "userID"
	// ContextUserEmailKey ключ email пользователя в gin.Context
	ContextUserEmailKey = "userEmail"

	authHeaderPrefix = "Bearer "

	// DefaultAudience аудитория access-токенов Supabase
	DefaultAudience = "authenticated"
)

// TokenValidator проверяет bearer-токен и возвращает его claims.
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims claims access-токена Supabase Auth.
type TokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// SupabaseValidator проверяет HS256 токены, подписанные JWT secret проекта.
type SupabaseValidator struct {
	secret   []byte
	audience string
}

// NewSupabaseValidator создает валидатор; пустая аудитория заменяется на "authenticated".
func NewSupabaseValidator(secret, audience string) *SupabaseValidator {
	if audience == "" {
		audience = DefaultAudience
	}
	return &SupabaseValidator{secret: []byte(secret), audience: audience}
}

func (v *SupabaseValidator) Validate(tokenString string) (*TokenClaims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("jwt secret is not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.New("malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.New("invalid token signature")
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("token expired")
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, errors.New("invalid token audience")
		default:
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token claims")
}

// JWTMiddleware требует валидный bearer-токен.
type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

func NewJWTMiddleware(log *logger.Logger, validator TokenValidator) *JWTMiddleware {
	return &JWTMiddleware{
		log:       log.Named("auth"),
		validator: validator,
	}
}

func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, "missing bearer token")
			return
		}

		claims, err := m.validator.Validate(strings.TrimPrefix(authHeader, authHeaderPrefix))
		if err != nil {
			m.handleAuthError(c, err.Error())
			return
		}

		userID := claims.Subject
		if userID == "" {
			m.handleAuthError(c, "user id (sub) missing in token")
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextUserEmailKey, claims.Email)
		m.log.Debugw("User authenticated", "userID", userID)
		c.Next()
	}
}

// Текст причины пишется только в лог
func (m *JWTMiddleware) handleAuthError(c *gin.Context, reason string) {
	m.log.Warnw("HTTP authentication failed", "path", c.Request.URL.Path, "reason", reason)
	res.JsonResponse(c.Writer, res.ErrorResponse{
		Success: res.Failure(),
		Error:   "Unauthorized",
	}, http.StatusUnauthorized)
	c.Abort()
}

// UserID возвращает ID аутентифицированного пользователя или пустую строку.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserIDKey)
}

// UserEmail возвращает email из токена.
func UserEmail(c *gin.Context) string {
	return c.GetString(ContextUserEmailKey)
}
