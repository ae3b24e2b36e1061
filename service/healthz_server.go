package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// StatusFunc returns the JSON-encodable session status
type StatusFunc func() any

// HealthzServer serves /healthz and the live session status
type HealthzServer struct {
	mu     sync.Mutex
	ctx    context.Context
	server *http.Server
	closed bool
	status StatusFunc
}

func NewHealthzServer(status StatusFunc) *HealthzServer {
	return &HealthzServer{status: status}
}

// Handler returns the routes of the server
func (h *HealthzServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	router.HandleFunc("/status", h.HandleStatus).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(router)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return http.ErrServerClosed
	}
	server := &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.server = server
	h.ctx = ctx
	h.mu.Unlock()

	return server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	h.mu.Lock()
	h.closed = true
	server, ctx := h.server, h.ctx
	h.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	body, err := json.MarshalIndent(h.status(), "", "  ")
	if err != nil {
		log.Error("failed to marshal session status", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		log.Error("failed to send session status", "error", err)
	}
}
