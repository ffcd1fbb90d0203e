package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/clinicscore/drug-advisor/internal/config"
)

// Server owns the HTTP API listener and the gRPC health probe listener.
type Server struct {
	cfg           config.ServerConfig
	httpServer    *http.Server
	httpListener  net.Listener
	grpcServer    *grpc.Server
	probeListener net.Listener
	health        *health.Server
	ready         atomic.Bool
}

// NewServer binds both listeners. The probe reports NOT_SERVING until SetReady(true).
func NewServer(cfg config.ServerConfig, handler http.Handler, opts ...grpc.ServerOption) (*Server, error) {
	httpLis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	probeLis, err := net.Listen("tcp", cfg.ProbeAddress)
	if err != nil {
		httpLis.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.ProbeAddress, err)
	}

	grpc_prometheus.EnableHandlingTimeHistogram()
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	serverOpts = append(serverOpts, opts...)
	grpcServer := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)
	grpc_prometheus.Register(grpcServer)

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		httpListener:  httpLis,
		grpcServer:    grpcServer,
		probeListener: probeLis,
		health:        healthSrv,
	}, nil
}

// SetReady flips the probe between SERVING and NOT_SERVING.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Ready reports the last value passed to SetReady.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Start serves both listeners until Shutdown, returning the first serve error.
func (s *Server) Start() error {
	if s.httpServer == nil || s.grpcServer == nil {
		return fmt.Errorf("server not initialised")
	}
	errCh := make(chan error, 2)
	go func() {
		if err := s.grpcServer.Serve(s.probeListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("probe server: %w", err)
			return
		}
		errCh <- nil
	}()
	go func() {
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			return err
		}
	}
	return nil
}

// Shutdown drains both listeners, forcing the probe closed once ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	httpErr := s.httpServer.Shutdown(ctx)

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-ctx.Done():
		s.grpcServer.Stop()
	case <-stopped:
	}
	return httpErr
}

// Address exposes the bound HTTP address (useful for tests).
func (s *Server) Address() string {
	return s.httpListener.Addr().String()
}

// ProbeAddress exposes the bound probe address.
func (s *Server) ProbeAddress() string {
	return s.probeListener.Addr().String()
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
