// Package server hosts the HTTP side of the bot: the backend posts
// order status changes to a webhook here, and orchestration probes
// /health.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"nordlayer-bot/internal/notify"
)

// StatusDispatcher fans one status event out to subscribers.
type StatusDispatcher interface {
	Dispatch(ctx context.Context, ev notify.StatusEvent) (int, error)
}

// Server wraps the HTTP listener with its routes.
type Server struct {
	http       *http.Server
	dispatcher StatusDispatcher
	logger     *zap.Logger
}

func New(addr string, dispatcher StatusDispatcher, logger *zap.Logger) *Server {
	s := &Server{
		dispatcher: dispatcher,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Post("/webhook/notifications", s.handleWebhook)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "nordlayer-bot",
	})
}

// webhookEnvelope is the backend's push format: a type tag plus a
// type-specific payload.
type webhookEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var env webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed JSON"})
		return
	}

	switch env.Type {
	case "status_change":
		var ev notify.StatusEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed status event"})
			return
		}
		delivered, err := s.dispatcher.Dispatch(r.Context(), ev)
		if err != nil {
			s.logger.Error("webhook dispatch failed",
				zap.Int64("order_id", ev.OrderID),
				zap.Error(err))
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "delivered": delivered})

	default:
		s.logger.Warn("unknown webhook type", zap.String("type", env.Type))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown notification type"})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
