package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
)

// ServiceName is the gRPC health service name reported alongside the overall status.
const ServiceName = "lab-extractor"

const (
	shutdownTimeout     = 15 * time.Second
	healthProbeInterval = 30 * time.Second
	healthProbeTimeout  = 3 * time.Second
)

// Pinger reports database reachability for the health service.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// Server runs the gin router over HTTP and a gRPC server carrying only the
// standard health service.
type Server struct {
	httpAddr string
	grpcAddr string
	http     *http.Server
	grpc     *grpc.Server
	health   *health.Server
	db       Pinger
	logger   *slog.Logger
}

func New(cfg common.ServerConfig, handler http.Handler, db Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &Server{
		httpAddr: cfg.HTTPAddr,
		grpcAddr: cfg.GRPCAddr,
		http: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		grpc:   gs,
		health: hs,
		db:     db,
		logger: logger,
	}
}

// Health exposes the gRPC health server so callers can flip serving status.
func (s *Server) Health() *health.Server { return s.health }

// Run serves until ctx ends, then drains both listeners.
func (s *Server) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.httpAddr, err)
	}
	var grpcLis net.Listener
	if s.grpcAddr != "" {
		grpcLis, err = net.Listen("tcp", s.grpcAddr)
		if err != nil {
			_ = httpLis.Close()
			return fmt.Errorf("listen grpc %s: %w", s.grpcAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server.http.start", "addr", httpLis.Addr().String())
		if err := s.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	if grpcLis != nil {
		g.Go(func() error {
			s.logger.Info("server.grpc.start", "addr", grpcLis.Addr().String())
			if err := s.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc serve: %w", err)
			}
			return nil
		})
	}
	if s.db != nil {
		g.Go(func() error {
			s.watchDatabase(gctx, healthProbeInterval)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.shutdown()
		return nil
	})
	return g.Wait()
}

func (s *Server) shutdown() {
	s.logger.Info("server.shutdown.start")
	s.health.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("server.http.shutdown_failed", "error", err)
	}

	stopped := make(chan struct{})
	go func() { s.grpc.GracefulStop(); close(stopped) }()
	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	s.logger.Info("server.shutdown.ok")
}

// watchDatabase marks the service NOT_SERVING while the database is unreachable.
func (s *Server) watchDatabase(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		s.probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Server) probe(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.db.HealthCheck(ctx, healthProbeTimeout); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("server.health.db_unreachable", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
}
