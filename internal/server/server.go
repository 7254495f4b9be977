package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/covera/internal/app"
)

// Server serves the Covera HTTP API. Listen binds the socket so address
// errors surface before Serve runs in the background.
type Server struct {
	app     *app.App
	handler http.Handler
	http    *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func New(application *app.App) *Server {
	s := &Server{app: application}
	s.handler = s.withConditionalMiddleware(s.setupRoutes())

	cfg := application.Config.Server
	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Listen binds the configured address. Calling it again is a no-op.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr is the bound address once listening, the configured one before
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

// URL is the base URL clients use to reach the API
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Serve accepts connections until Shutdown, binding first when needed
func (s *Server) Serve() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	s.app.Logger.Info().Str("address", ln.Addr().String()).Msg("HTTP server listening")
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.app.Logger.Info().Str("address", s.Addr()).Msg("HTTP server stopped")
	return nil
}
