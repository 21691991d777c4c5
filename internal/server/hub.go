// Package server tracks live transports, runs their sessions, and drains
// them on shutdown via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Hub runs one chat session per accepted connection and tracks them so they
// can be torn down together on shutdown.
type Hub struct {
	svc    *chat.Service
	logger *slog.Logger

	mutex  sync.Mutex
	conns  map[transport]struct{}
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a Hub that builds sessions from svc.
func NewHub(svc *chat.Service, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		svc:    svc,
		logger: logger,
		conns:  make(map[transport]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Serve starts the writer and session goroutines for t. It returns false,
// after closing t, if the hub is already shutting down.
func (h *Hub) Serve(t transport) bool {
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		t.abort()
		return false
	}
	h.conns[t] = struct{}{}
	count := len(h.conns)
	h.wg.Add(2)
	h.mutex.Unlock()

	h.logger.Info("client connected", "remote_addr", t.RemoteAddr(), "clients", count)

	go func() {
		defer h.wg.Done()
		t.writePump()
	}()
	go func() {
		defer h.wg.Done()
		defer h.remove(t)

		session := h.svc.NewSession(t)
		if err := session.Run(h.ctx); err != nil && !isExpectedCloseError(err) && h.ctx.Err() == nil {
			h.logger.Warn("session ended with error", "remote_addr", t.RemoteAddr(), "error", err)
		}
	}()
	return true
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.conns)
}

func (h *Hub) remove(t transport) {
	h.mutex.Lock()
	delete(h.conns, t)
	count := len(h.conns)
	h.mutex.Unlock()

	h.logger.Info("client removed", "remote_addr", t.RemoteAddr(), "clients", count)
}

// shutdownClients closes every live connection so blocked readers return.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	h.closed = true
	conns := make([]transport, 0, len(h.conns))
	for t := range h.conns {
		conns = append(conns, t)
	}
	h.mutex.Unlock()

	for _, t := range conns {
		t.abort()
	}

	h.logger.Info("closed client connections", "count", len(conns))
}

// Shutdown stops accepting sessions, closes all connections and waits for
// their goroutines to finish or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	h.shutdownClients()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
