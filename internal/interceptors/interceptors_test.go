package interceptors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/middleware"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const secret = "interceptor-secret-with-enough-length-0123"

func signed(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{middleware.DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func echoUser(ctx context.Context, req any) (any, error) {
	return UserIDFromContext(ctx), nil
}

func TestAuthInterceptor(t *testing.T) {
	interceptor := NewAuthInterceptor(logger.NewNop(), middleware.NewSupabaseValidator(secret, ""), "/grpc.health.v1.Health/").Unary()
	private := &grpc.UnaryServerInfo{FullMethod: "/credits.v1.Credits/Get"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+signed(t, "u1")))
	resp, err := interceptor(ctx, nil, private, echoUser)
	require.NoError(t, err)
	assert.Equal(t, "u1", resp)

	for name, ctx := range map[string]context.Context{
		"no metadata": context.Background(),
		"no header":   metadata.NewIncomingContext(context.Background(), metadata.Pairs()),
		"basic":       metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic abc")),
		"garbage":     metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc")),
		"no subject":  metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+signed(t, ""))),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := interceptor(ctx, nil, private, echoUser)
			assert.Equal(t, codes.Unauthenticated, status.Code(err))
		})
	}

	resp, err = interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, echoUser)
	require.NoError(t, err)
	assert.Equal(t, "", resp)
}

func TestRecovery(t *testing.T) {
	interceptor := Recovery(logger.NewNop())
	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/x/Panic"}, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestLoggingPassesThrough(t *testing.T) {
	interceptor := Logging(logger.NewNop())
	info := &grpc.UnaryServerInfo{FullMethod: "/x/Call"}

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) { return req, nil })
	require.NoError(t, err)
	assert.Equal(t, "req", resp)

	want := status.Error(codes.NotFound, "missing")
	_, err = interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) { return nil, want })
	assert.True(t, errors.Is(err, want))
}
