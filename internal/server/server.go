// Package server implements the Server type that owns the TCP and HTTP
// listeners for the chat service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/gorilla/websocket"
)

// Server exposes a chat.Service over a raw TCP line listener and an HTTP
// listener carrying WebSocket, health and stats routes.
type Server struct {
	cfg      *Config
	svc      *chat.Service
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	tcp      net.Listener
	http     *http.Server
	httpAddr net.Addr
	wg       sync.WaitGroup
}

// New creates a Server. Nothing listens until Start.
func New(cfg *Config, svc *chat.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)

	return &Server{
		cfg:    cfg,
		svc:    svc,
		hub:    NewHub(svc, logger),
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
}

// Hub returns the session hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the configured listeners and serves them in the background.
// An empty address disables that listener.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.TCPAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.TCPAddr)
		if err != nil {
			return fmt.Errorf("listen tcp %s: %w", s.cfg.TCPAddr, err)
		}
		s.tcp = ln
		s.logger.Info("tcp listener started", "addr", ln.Addr().String())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.acceptTCP(ln)
		}()
	}

	if s.cfg.HTTPAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
		if err != nil {
			if s.tcp != nil {
				_ = s.tcp.Close()
			}
			return fmt.Errorf("listen http %s: %w", s.cfg.HTTPAddr, err)
		}
		s.http = CreateServer(s.cfg.HTTPAddr, s.SetupRoutes())
		s.httpAddr = ln.Addr()
		s.logger.Info("http listener started", "addr", ln.Addr().String())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := StartServer(s.http, ln); err != nil {
				s.logger.Error("http server stopped", "error", err)
			}
		}()
	}

	return nil
}

// TCPAddr returns the bound TCP address, or nil if TCP is disabled.
func (s *Server) TCPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

// HTTPAddr returns the bound HTTP address, or nil if HTTP is disabled.
func (s *Server) HTTPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpAddr
}

func (s *Server) acceptTCP(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("tcp accept failed", "error", err)
			continue
		}
		s.hub.Serve(newTCPConn(conn, s.cfg, s.logger))
	}
}

// Shutdown stops both listeners, then closes every session. It returns the
// first error encountered.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	tcp, httpServer := s.tcp, s.http
	s.mu.Unlock()

	var errs []error
	if tcp != nil {
		if err := tcp.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("close tcp listener: %w", err))
		}
	}
	if httpServer != nil {
		if err := ShutdownServer(ctx, httpServer); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("shutdown hub: %w", err))
	}

	s.wg.Wait()
	return errors.Join(errs...)
}
