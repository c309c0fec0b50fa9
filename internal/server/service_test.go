package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
)

type fakePinger struct{ err error }

func (p *fakePinger) HealthCheck(context.Context, time.Duration) error { return p.err }

func servingStatus(t *testing.T, s *Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthFollowsDatabase(t *testing.T) {
	db := &fakePinger{}
	s := New(common.ServerConfig{HTTPAddr: "127.0.0.1:0"}, http.NotFoundHandler(), db, nil)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, s))

	db.err = errors.New("connection refused")
	s.probe(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, s))

	db.err = nil
	s.probe(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, servingStatus(t, s))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(common.ServerConfig{HTTPAddr: "127.0.0.1:0", GRPCAddr: "127.0.0.1:0"}, http.NotFoundHandler(), &fakePinger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, servingStatus(t, s))
}

func TestPingDB(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.NoError(t, PingDB(context.Background(), &fakePinger{}, logger, time.Second))
	assert.Error(t, PingDB(context.Background(), &fakePinger{err: errors.New("down")}, logger, time.Second))
}
