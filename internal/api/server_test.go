package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/clinicscore/drug-advisor/internal/config"
)

func TestServerProbeFollowsReadiness(t *testing.T) {
	srv, err := NewServer(config.ServerConfig{
		Address:         "127.0.0.1:0",
		ProbeAddress:    "127.0.0.1:0",
		GracefulTimeout: time.Second,
	}, http.NotFoundHandler())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx := context.Background()
	resp, err := srv.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before readiness, got %v", resp.GetStatus())
	}

	srv.SetReady(true)
	resp, err = srv.health.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING || !srv.Ready() {
		t.Fatalf("expected SERVING after readiness, got %v", resp.GetStatus())
	}

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	httpResp, err := http.Get("http://" + srv.Address() + "/anything")
	if err != nil {
		t.Fatalf("http get: %v", err)
	}
	httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status %d", httpResp.StatusCode)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, srv.GracefulTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("start returned error: %v", err)
	}
}
