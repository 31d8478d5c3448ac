// Package api exposes the assessment and unlock pipeline over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/quadrant-labs/assess/internal/assessment"
	"github.com/quadrant-labs/assess/internal/identity"
	"github.com/quadrant-labs/assess/internal/model"
	"github.com/quadrant-labs/assess/internal/resilience"
	"github.com/quadrant-labs/assess/internal/store"
	"github.com/quadrant-labs/assess/internal/unlock"
)

// Server wires the domain services into an HTTP handler.
type Server struct {
	assessments   *assessment.Service
	unlocks       *unlock.Service
	identities    *identity.Service
	gateway       *store.Gateway
	limiter       *ClientLimiter
	webhookSecret string
	allowFallback bool
}

// Options carries the server's construction parameters.
type Options struct {
	Assessments    *assessment.Service
	Unlocks        *unlock.Service
	Identities     *identity.Service
	Gateway        *store.Gateway
	Limiter        *ClientLimiter
	WebhookSecret  string
	AllowFallback  bool
	AllowedOrigins []string
}

// New builds the server and its router.
func New(opts Options) (*Server, http.Handler) {
	s := &Server{
		assessments:   opts.Assessments,
		unlocks:       opts.Unlocks,
		identities:    opts.Identities,
		gateway:       opts.Gateway,
		limiter:       opts.Limiter,
		webhookSecret: opts.WebhookSecret,
		allowFallback: opts.AllowFallback,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Gateway-Signature"},
			MaxAge:         300,
		}))
	}
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/assessments", s.handleSubmit)
		r.Get("/results/{resultID}", s.handleGetResult)
		r.Post("/results/{resultID}/unlock", s.handleCreateIntent)
		r.Post("/results/{resultID}/confirm", s.handleConfirm)
		r.Post("/results/{resultID}/confirm-fallback", s.handleConfirmFallback)
		r.Post("/webhooks/payment", s.handleWebhook)
		r.Post("/actors/{actorID}/link-results", s.handleLinkResults)
	})

	return s, r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

type submitRequest struct {
	Guest   *model.GuestContact `json:"guest,omitempty"`
	ActorID string              `json:"actor_id,omitempty"`
	Answers []model.Answer      `json:"answers"`
}

type resultResponse struct {
	ResultID         string            `json:"result_id"`
	Profile          model.Factor      `json:"profile"`
	ScoreVector      model.ScoreVector `json:"score_vector"`
	IsPremium        bool              `json:"is_premium"`
	CreatedAt        time.Time         `json:"created_at"`
	OwnerDisplayName string            `json:"owner_display_name,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.assessments.Submit(r.Context(), assessment.SubmitRequest{
		Guest:   req.Guest,
		ActorID: req.ActorID,
		Answers: req.Answers,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resultResponse{
		ResultID:         result.ID,
		Profile:          result.Profile,
		ScoreVector:      result.Scores,
		IsPremium:        result.IsPremium,
		CreatedAt:        result.CreatedAt,
		OwnerDisplayName: s.ownerDisplayName(r, result),
	})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.gateway.GetResult(r.Context(), chi.URLParam(r, "resultID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{
		ResultID:         result.ID,
		Profile:          result.Profile,
		ScoreVector:      result.Scores,
		IsPremium:        result.IsPremium,
		CreatedAt:        result.CreatedAt,
		OwnerDisplayName: s.ownerDisplayName(r, result),
	})
}

// ownerDisplayName resolves through the actor record for owned results and
// falls back to guest contact data. Lookup failures degrade to an empty
// name rather than failing the read.
func (s *Server) ownerDisplayName(r *http.Request, result *model.Result) string {
	if result.ActorID == nil {
		return result.GuestName
	}
	actor, err := s.gateway.GetActor(r.Context(), *result.ActorID)
	if err != nil {
		return ""
	}
	return actor.DisplayName
}

type createIntentRequest struct {
	AmountMinor int64 `json:"amount_minor"`
}

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AmountMinor <= 0 {
		writeError(w, http.StatusBadRequest, "amount_minor must be positive")
		return
	}

	info, err := s.unlocks.CreateIntent(r.Context(), chi.URLParam(r, "resultID"), req.AmountMinor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

type confirmRequest struct {
	PaymentReference string `json:"payment_reference"`
}

type confirmResponse struct {
	IsPremium bool `json:"is_premium"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PaymentReference == "" {
		writeError(w, http.StatusBadRequest, "payment_reference is required")
		return
	}

	result, err := s.unlocks.Confirm(r.Context(), chi.URLParam(r, "resultID"), req.PaymentReference)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{IsPremium: result.IsPremium})
}

func (s *Server) handleConfirmFallback(w http.ResponseWriter, r *http.Request) {
	if !s.allowFallback {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AmountMinor <= 0 {
		writeError(w, http.StatusBadRequest, "amount_minor must be positive")
		return
	}

	result, err := s.unlocks.ConfirmFallback(r.Context(), chi.URLParam(r, "resultID"), req.AmountMinor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{IsPremium: result.IsPremium})
}

type linkRequest struct {
	Email string `json:"email"`
}

type linkResponse struct {
	LinkedCount int `json:"linked_count"`
}

func (s *Server) handleLinkResults(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	n, err := s.identities.LinkGuestResults(r.Context(), req.Email, chi.URLParam(r, "actorID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{LinkedCount: n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	circuit := s.gateway.CircuitState()
	status := "ok"
	code := http.StatusOK
	if err := s.gateway.Ping(r.Context()); err != nil || circuit != resilience.CircuitClosed {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"circuit": circuit.String(),
	})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Every
// failure keeps its typed reason; nothing collapses into a generic 500
// unless it genuinely is unclassified.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assessment.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, unlock.ErrPaymentNotRecognized):
		writeError(w, http.StatusUnprocessableEntity, "payment not recognized")
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, resilience.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		zap.L().Error("unhandled request error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
