package service

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer exposes the default prometheus registry
type MetricsServer struct {
	mu     sync.Mutex
	ctx    context.Context
	server *http.Server
	closed bool
}

func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.Handler())

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return http.ErrServerClosed
	}
	server := &http.Server{
		Handler: hdlr,
		Addr:    addr,
	}
	m.server = server
	m.ctx = ctx
	m.mu.Unlock()

	return server.ListenAndServe()
}

// Shutdown stops the server. A Start that has not yet run returns
// http.ErrServerClosed.
func (m *MetricsServer) Shutdown() error {
	m.mu.Lock()
	m.closed = true
	server, ctx := m.server, m.ctx
	m.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
