package web

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
)

// Config holds status-dashboard server configuration.
type Config struct {
	Enabled bool
	Host    string
	Port    int
}

// Server is the dashboard's HTTP + websocket server.
type Server struct {
	config Config
	log    *logger.Logger
	server *http.Server
	hub    *Hub
	api    *API
	addr   string
	mu     sync.RWMutex
}

// NewServer creates a new dashboard server instance.
func NewServer(cfg Config, log *logger.Logger) *Server {
	return &Server{
		config: cfg,
		log:    log,
		hub:    NewHub(log),
		api:    NewAPI(log),
	}
}

// WithStatusProvider injects the status provider for the /api/status
// endpoint and lets the server poll it for periodic websocket pushes.
func (s *Server) WithStatusProvider(p StatusProvider) *Server {
	s.api.SetProvider(p)
	return s
}

// Start runs the HTTP server until ctx is cancelled. It is a no-op if
// the server is disabled.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("status dashboard disabled")
		return nil
	}

	go s.hub.Run(ctx)
	go s.pollStatus(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.api.HandleStatus)
	mux.Handle("/ws", s.hub.Handler())

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: create listener: %w", err)
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting status dashboard", logger.String("address", s.addr))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down status dashboard")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("web: server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// pollStatus periodically pushes a status snapshot to websocket clients,
// so a dashboard doesn't need to poll /api/status itself.
func (s *Server) pollStatus(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.api.provider == nil {
				continue
			}
			status, err := s.api.provider.Status()
			if err != nil {
				s.log.Warn("status poll failed", logger.Error(err))
				continue
			}
			s.hub.BroadcastStatus(status)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Addr returns the address the server is listening on, once started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Hub returns the websocket hub, for components that broadcast events
// directly (e.g. Hub.BroadcastUpload after an upload).
func (s *Server) Hub() *Hub {
	return s.hub
}
