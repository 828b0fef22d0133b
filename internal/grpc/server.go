package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Muneerali199/DocMagic-sub004/internal/interceptors"
	"github.com/Muneerali199/DocMagic-sub004/internal/middleware"
	"github.com/Muneerali199/DocMagic-sub004/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

const (
	// ServiceName имя сервиса в health check
	ServiceName = "docmagic.credits"

	probeInterval = 10 * time.Second
	probeTimeout  = 2 * time.Second
)

// Pinger проверка готовности зависимости.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server gRPC сервер с health checks и reflection для оркестратора и grpcurl.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	db         Pinger
	log        *logger.Logger
	stop       chan struct{}
}

// NewServer создает сервер. validator проверяет токены для всех методов,
// кроме health и reflection.
func NewServer(db Pinger, validator middleware.TokenValidator, log *logger.Logger) *Server {
	log = log.Named("grpc")
	auth := interceptors.NewAuthInterceptor(log, validator,
		"/"+healthpb.Health_ServiceDesc.ServiceName+"/",
		"/grpc.reflection.v1.ServerReflection/",
		"/grpc.reflection.v1alpha.ServerReflection/",
	)

	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      time.Hour,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  2 * time.Minute,
			Timeout:               20 * time.Second,
		}),
		grpc.ChainUnaryInterceptor(
			interceptors.Recovery(log),
			interceptors.Logging(log),
			auth.Unary(),
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		health:     hs,
		db:         db,
		log:        log,
		stop:       make(chan struct{}),
	}
}

// Probe обновляет статус health по доступности БД.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if s.db != nil {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := s.db.PingContext(pctx); err != nil {
			s.log.Warnw("Readiness probe failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return st
}

// Serve обслуживает lis до GracefulStop.
func (s *Server) Serve(lis net.Listener) error {
	s.Probe(context.Background())
	go s.watch()

	s.log.Infow("Starting gRPC server", "addr", lis.Addr().String())
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Start слушает addr (":9090") и обслуживает соединения.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

func (s *Server) watch() {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Probe(context.Background())
		}
	}
}

// GracefulStop переводит health в NOT_SERVING и дожидается активных вызовов.
func (s *Server) GracefulStop() {
	close(s.stop)
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
	s.log.Infow("gRPC server stopped")
}
