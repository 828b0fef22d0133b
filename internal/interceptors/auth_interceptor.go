package interceptors

import (
	"context"
	"strings"

	"github.com/Muneerali199/DocMagic-sub004/internal/middleware"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

// UserIDKey ключ ID пользователя в context.Context gRPC вызова.
const UserIDKey contextKey = middleware.ContextUserIDKey

// AuthInterceptor проверяет Supabase JWT тем же валидатором, что и HTTP.
type AuthInterceptor struct {
	log       *logger.Logger
	validator middleware.TokenValidator
	public    map[string]bool
}

// NewAuthInterceptor создает перехватчик; publicMethods пропускаются без токена
// (health checks и reflection).
func NewAuthInterceptor(log *logger.Logger, validator middleware.TokenValidator, publicMethods ...string) *AuthInterceptor {
	public := make(map[string]bool, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = true
	}
	return &AuthInterceptor{
		log:       log,
		validator: validator,
		public:    public,
	}
}

// Unary возвращает UnaryServerInterceptor для проверки JWT.
func (i *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if i.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}
		newCtx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(newCtx, req)
	}
}

func (i *AuthInterceptor) isPublic(method string) bool {
	if i.public[method] {
		return true
	}
	// сервисы допускаются целиком: "/grpc.health.v1.Health/"
	for prefix := range i.public {
		if strings.HasSuffix(prefix, "/") && strings.HasPrefix(method, prefix) {
			return true
		}
	}
	return false
}

func (i *AuthInterceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		i.log.Warnw("gRPC auth: missing metadata", "method", method)
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	authHeaders := md.Get("authorization")
	if len(authHeaders) == 0 {
		i.log.Warnw("gRPC auth: missing authorization header", "method", method)
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}

	tokenString, ok := strings.CutPrefix(authHeaders[0], "Bearer ")
	if !ok || tokenString == "" {
		i.log.Warnw("gRPC auth: invalid authorization header format", "method", method)
		return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
	}

	claims, err := i.validator.Validate(tokenString)
	if err != nil {
		i.log.Warnw("gRPC auth: invalid token", "method", method, "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	if claims.Subject == "" {
		i.log.Warnw("gRPC auth: subject missing in token", "method", method)
		return nil, status.Error(codes.Unauthenticated, "user id (sub) missing in token")
	}

	i.log.Debugw("User authenticated via gRPC", "userID", claims.Subject, "method", method)
	return context.WithValue(ctx, UserIDKey, claims.Subject), nil
}

// UserIDFromContext возвращает пользователя, установленного AuthInterceptor.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}
