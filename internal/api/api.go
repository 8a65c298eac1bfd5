// Package api provides the local HTTP surface the UI shell drives.
//
// The shell forwards user actions (place call, submit feedback) and
// lifecycle events (foreground, focus) here, and polls /session for the
// blocking state it must render.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldcrm/callgate/internal/session"
	"github.com/fieldcrm/callgate/internal/store"
	"github.com/fieldcrm/callgate/internal/whatsapp"
)

// ShutdownTimeout bounds graceful server shutdown.
const ShutdownTimeout = 5 * time.Second

// Server wires the session controller and its collaborators to HTTP routes.
type Server struct {
	controller *session.Controller
	history    *store.HistoryRepo
	messenger  whatsapp.Sender // nil when the WhatsApp channel is not configured
}

// NewServer creates the API server.
func NewServer(controller *session.Controller, history *store.HistoryRepo, messenger whatsapp.Sender) *Server {
	return &Server{controller: controller, history: history, messenger: messenger}
}

// Handler builds the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/call", s.callHandler)
	mux.HandleFunc("/feedback", s.feedbackHandler)
	mux.HandleFunc("/session", s.sessionHandler)
	mux.HandleFunc("/events/foreground", s.foregroundHandler)
	mux.HandleFunc("/events/focus", s.focusHandler)
	mux.HandleFunc("/history", s.historyHandler)
	mux.HandleFunc("/history/lead", s.leadHistoryHandler)
	mux.HandleFunc("/message", s.messageHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	return mux
}

// Run serves the API until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("callgate API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API shutdown failed", "error", err)
			return err
		}
		slog.Info("API shut down")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
