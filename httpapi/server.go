package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"metering/domain/entities"
	"metering/domain/interfaces"
	"metering/fallback"
)

// Server exposes the metering REST API. Session operations degrade to the
// local fallback store when the primary store is unreachable: the session
// keeps running locally and its usage is queued for replay.
type Server struct {
	gateway   interfaces.LedgerGateway
	tracker   interfaces.SessionTracker
	processor interfaces.CreditProcessor
	local     *fallback.LocalTracker

	httpServer *http.Server
}

// NewServer creates a new API server
func NewServer(addr string, gateway interfaces.LedgerGateway, tracker interfaces.SessionTracker, processor interfaces.CreditProcessor, fallbackStore *fallback.Store) *Server {
	s := &Server{
		gateway:   gateway,
		tracker:   tracker,
		processor: processor,
		local:     fallback.NewLocalTracker(fallbackStore),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/users/{userID}/balance", s.handleGetBalance)
		r.Post("/users/{userID}/balance", s.handleInitializeBalance)
		r.Post("/sessions", s.handleStartSession)
		r.Post("/sessions/{sessionID}/end", s.handleEndSession)
		r.Post("/webhooks/payment", s.handlePaymentWebhook)
	})
	return r
}

// Start begins serving; blocks until the server stops
func (s *Server) Start() error {
	log.WithField("addr", s.httpServer.Addr).Info("HTTP API listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the route tree, used directly in tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type balanceResponse struct {
	UserID           string `json:"user_id"`
	RemainingMinutes int64  `json:"remaining_minutes"`
	TotalPurchased   int64  `json:"total_purchased"`
	TotalConsumed    int64  `json:"total_consumed"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	balance, err := s.gateway.GetBalance(r.Context(), userID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, balanceResponse{
		UserID:           balance.UserID,
		RemainingMinutes: balance.RemainingMinutes,
		TotalPurchased:   balance.TotalPurchased,
		TotalConsumed:    balance.TotalConsumed,
	})
}

func (s *Server) handleInitializeBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	balance, err := s.gateway.Initialize(r.Context(), userID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, balanceResponse{
		UserID:           balance.UserID,
		RemainingMinutes: balance.RemainingMinutes,
		TotalPurchased:   balance.TotalPurchased,
		TotalConsumed:    balance.TotalConsumed,
	})
}

type startSessionRequest struct {
	UserID      string `json:"user_id"`
	CharacterID string `json:"character_id"`
}

type startSessionResponse struct {
	SessionID        string `json:"session_id,omitempty"`
	CanStart         bool   `json:"can_start"`
	RemainingMinutes int64  `json:"remaining_minutes"`
	Degraded         bool   `json:"degraded,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id is required"})
		return
	}

	result, err := s.tracker.StartSession(r.Context(), req.UserID, req.CharacterID)
	if errors.Is(err, entities.ErrStorageUnavailable) {
		s.startSessionDegraded(w, r, req)
		return
	}
	if err != nil {
		s.respondError(w, err)
		return
	}

	status := http.StatusCreated
	if !result.CanStart {
		status = http.StatusPaymentRequired
	}
	s.respondJSON(w, status, startSessionResponse{
		SessionID:        result.SessionID,
		CanStart:         result.CanStart,
		RemainingMinutes: result.RemainingMinutes,
	})
}

// startSessionDegraded admits the session locally. The balance cannot be
// consulted, so admission errs toward letting the user talk; the billed
// minutes are queued and settle once the primary store returns.
func (s *Server) startSessionDegraded(w http.ResponseWriter, r *http.Request, req startSessionRequest) {
	result, err := s.local.StartSession(r.Context(), req.UserID, req.CharacterID)
	if err != nil {
		s.respondError(w, entities.ErrStorageUnavailable)
		return
	}

	s.respondJSON(w, http.StatusCreated, startSessionResponse{
		SessionID: result.SessionID,
		CanStart:  true,
		Degraded:  true,
	})
}

type endSessionResponse struct {
	SessionID        string `json:"session_id"`
	DurationSeconds  int64  `json:"duration_seconds"`
	MinutesBilled    int64  `json:"minutes_billed"`
	RemainingMinutes int64  `json:"remaining_minutes"`
	Degraded         bool   `json:"degraded,omitempty"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	result, err := s.tracker.EndSession(r.Context(), sessionID)
	if err == nil {
		s.respondJSON(w, http.StatusOK, endSessionResponse{
			SessionID:        result.SessionID,
			DurationSeconds:  result.DurationSeconds,
			MinutesBilled:    result.MinutesBilled,
			RemainingMinutes: result.RemainingMinutes,
		})
		return
	}

	// A session unknown to the primary store may be a degraded-mode
	// session living only in the fallback cache.
	if errors.Is(err, entities.ErrStorageUnavailable) || errors.Is(err, entities.ErrSessionNotFound) {
		if handled := s.endSessionDegraded(w, r, sessionID); handled {
			return
		}
	}
	s.respondError(w, err)
}

// endSessionDegraded closes a locally tracked session and queues its debit
// for replay. Returns false when the fallback store does not know the
// session either.
func (s *Server) endSessionDegraded(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	result, err := s.local.EndSession(r.Context(), sessionID)
	if err != nil {
		return false
	}

	s.respondJSON(w, http.StatusOK, endSessionResponse{
		SessionID:       result.SessionID,
		DurationSeconds: result.DurationSeconds,
		MinutesBilled:   result.MinutesBilled,
		Degraded:        true,
	})
	return true
}

type paymentWebhookRequest struct {
	PaymentID        string `json:"payment_id"`
	UserID           string `json:"user_id"`
	MinutesPurchased int64  `json:"minutes_purchased"`
}

type paymentWebhookResponse struct {
	PaymentID        string `json:"payment_id"`
	Duplicate        bool   `json:"duplicate"`
	RemainingMinutes int64  `json:"remaining_minutes"`
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return
	}

	result, err := s.processor.ApplyPaymentConfirmation(r.Context(), entities.PaymentConfirmation{
		PaymentID:        req.PaymentID,
		UserID:           req.UserID,
		MinutesPurchased: req.MinutesPurchased,
	})
	if err != nil {
		// 503 tells the payment processor to redeliver; the payment id
		// keeps the retry idempotent
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, paymentWebhookResponse{
		PaymentID:        req.PaymentID,
		Duplicate:        result.Duplicate,
		RemainingMinutes: result.RemainingMinutes,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entities.ErrInvalidAmount), errors.Is(err, entities.ErrInvalidEvent):
		status = http.StatusBadRequest
	case errors.Is(err, entities.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entities.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}
