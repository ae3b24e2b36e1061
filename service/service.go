package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-session/metrics"
)

const (
	DefaultStatusAddr = "0.0.0.0:8080"
)

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	statusAddr  string
	metricsAddr string
}

// New creates the service. An empty address disables the matching server.
func New(statusAddr string, metricsAddr string, status StatusFunc) *Service {
	return &Service{
		Healthz:     NewHealthzServer(status),
		Metrics:     &MetricsServer{},
		statusAddr:  statusAddr,
		metricsAddr: metricsAddr,
	}
}

func (s *Service) Start(ctx context.Context) {
	log.Info("service starting")

	if s.statusAddr != "" {
		go func() {
			log.Info("starting healthz server", "addr", s.statusAddr)
			if err := s.Healthz.Start(ctx, s.statusAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("error starting healthz server", err)
			}
		}()
	}

	if s.metricsAddr != "" {
		go func() {
			log.Info("starting metrics server", "addr", s.metricsAddr)
			if err := s.Metrics.Start(ctx, s.metricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("error starting metrics server", err)
			}
		}()
	}

	log.Info("service started")
}

func (s *Service) Shutdown() {
	log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	log.Info("metrics stopped")

	log.Info("service stopped")
}
