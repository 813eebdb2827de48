// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package ws provides the WebSocket transport: handshake authentication,
// per-connection read/write pumps and the client request protocol.
package ws

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/hub"
	"github.com/propstream/propstream/internal/identity"
)

const (
	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead. pingPeriod must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxMessageSize = 4096
)

// PreferenceStore persists an identity's standing alert filter.
type PreferenceStore interface {
	UpsertAlertFilter(ctx context.Context, identityID string, req hub.TopicRequest) error
}

// BookmarkStore maintains property bookmarks.
type BookmarkStore interface {
	Add(ctx context.Context, identityID, propertyID string) error
	Remove(ctx context.Context, identityID, propertyID string) error
}

// InquiryStore records property inquiries.
type InquiryStore interface {
	Insert(ctx context.Context, identityID, propertyID, message string) (string, error)
}

// Metrics counts connection attempt outcomes.
type Metrics interface {
	RecordConnection(outcome string)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

// RecordConnection implements Metrics.
func (NopMetrics) RecordConnection(string) {}

// Stores bundles the repositories the request handlers write to.
type Stores struct {
	Preferences PreferenceStore
	Bookmarks   BookmarkStore
	Inquiries   InquiryStore
}

// Server accepts WebSocket connections on /ws, authenticates them and hands
// them to per-connection handlers.
type Server struct {
	addr          string
	authenticator *identity.Authenticator
	manager       *hub.Manager
	stores        Stores
	metrics       Metrics
	logger        *slog.Logger
	upgrader      websocket.Upgrader

	mu       sync.RWMutex
	listener net.Listener
}

// NewServer creates a WebSocket server. Returns an error if any required
// dependency is nil.
func NewServer(addr string, authenticator *identity.Authenticator, manager *hub.Manager, stores Stores, metrics Metrics, logger *slog.Logger) (*Server, error) {
	if authenticator == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if manager == nil {
		return nil, oops.Errorf("subscription manager is required")
	}
	if stores.Preferences == nil || stores.Bookmarks == nil || stores.Inquiries == nil {
		return nil, oops.Errorf("all stores are required")
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		addr:          addr,
		authenticator: authenticator,
		manager:       manager,
		stores:        stores,
		metrics:       metrics,
		logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

// Addr returns the server's listen address, or "" before Run.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return oops.With("addr", s.addr).Wrap(err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(ctx, w, r)
	})

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("websocket server started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Debug("error shutting down websocket server", "error", err)
		}
	}()

	if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return oops.With("addr", s.addr).Wrap(err)
	}
	return nil
}

// handleWS upgrades the request and authenticates before any hub state
// exists. A failed handshake is refused with a reason event and a close
// frame; there is nothing to tear down.
func (s *Server) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	socket, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		s.metrics.RecordConnection("rejected")
		return
	}

	id, err := s.authenticator.Authenticate(r.Context(), token)
	if err != nil {
		s.logger.Info("connection refused",
			"remote", r.RemoteAddr,
			"error", err,
		)
		s.metrics.RecordConnection("rejected")
		s.refuse(socket, err)
		return
	}

	s.metrics.RecordConnection("accepted")

	handler := newConnectionHandler(socket, id, s.manager, s.stores, s.logger)
	handler.Handle(ctx)
}

// refuse sends a reason event followed by a close frame, then drops the
// socket.
func (s *Server) refuse(socket *websocket.Conn, cause error) {
	event := errorEvent(cause)
	deadline := time.Now().Add(writeWait)
	if err := socket.SetWriteDeadline(deadline); err == nil {
		//nolint:errcheck // refusal is best effort, the socket is going away
		socket.WriteJSON(event)
	}
	//nolint:errcheck // refusal is best effort, the socket is going away
	socket.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
		deadline)
	if err := socket.Close(); err != nil {
		s.logger.Debug("error closing refused socket", "error", err)
	}
}

// bearerToken extracts the credential from the Authorization header or the
// auth_token query parameter. Browser WebSocket clients cannot set headers,
// hence the query fallback.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if rest, found := strings.CutPrefix(auth, "Bearer "); found {
			return rest
		}
		return ""
	}
	return r.URL.Query().Get("auth_token")
}
