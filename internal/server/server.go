package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"intake-chat/internal/config"
	"intake-chat/internal/db"
	"intake-chat/internal/gateway"
	"intake-chat/internal/prompt"
	"intake-chat/internal/store"
	"intake-chat/internal/types"
)

// Fixed error texts of the chat endpoint.
const (
	msgMissingKey   = "OPENAI_API_KEY fehlt"
	msgBadRequest   = "Feld 'message' ist erforderlich."
	msgUpstream     = "Fehler bei OpenAI"
	msgInternal     = "Interner Fehler"
	msgRateLimited  = "Zu viele Anfragen"
	maxRequestBytes = 1 << 20
)

type Server struct {
	router   *chi.Mux
	cfg      config.Config
	policy   *prompt.Policy
	gateway  *gateway.Gateway
	database *db.DB
	usage    *store.UsageStore
	limiter  *ipLimiter
	proxies  trustedProxies
	log      log.FieldLogger
}

type Option func(*Server)

func WithLogger(l log.FieldLogger) Option {
	return func(s *Server) { s.log = l }
}

func NewServer(cfg config.Config, creds config.CredentialProvider, opts ...Option) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		cfg:     cfg,
		limiter: newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		log:     log.StandardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	proxies, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	s.proxies = proxies

	policy, err := prompt.Load(cfg.PromptFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt policy: %w", err)
	}
	s.policy = policy.WithModel(cfg.Model)

	gwOpts := []gateway.Option{
		gateway.WithBaseURL(cfg.BaseURL),
		gateway.WithLogger(s.log),
	}
	if cfg.DatabaseURL != "" {
		database, err := db.New(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := database.Migrate(); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		s.log.Info("database connection established")
		s.database = database
		s.usage = store.NewUsageStore(database)
		gwOpts = append(gwOpts, gateway.WithRecorder(s.usage))
	} else {
		s.log.Info("DB_URL not provided, usage ledger disabled")
	}
	s.gateway = gateway.New(creds, s.policy, gwOpts...)

	s.router.Use(requestID)
	s.router.Use(s.requestLogger)
	s.router.Use(s.recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.Get("/", s.handleIndex)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/units", s.handleUnits)
	s.router.Get("/api/usage", s.handleUsage)
	s.router.With(s.rateLimit).Post("/api/chat", s.handleChat)
}

func (s *Server) Router() http.Handler { return s.router }

// Close releases the database connection, if any.
func (s *Server) Close() error {
	if s.database != nil {
		return s.database.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.database.HealthCheck(ctx); err != nil {
			s.log.WithError(err).Warn("database health check failed")
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.policy.Organization)
}

// GET /api/usage?since=24h
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		s.writeError(w, http.StatusNotFound, "usage ledger disabled", "")
		return
	}
	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid since duration", "")
			return
		}
		window = d
	}
	summary, err := s.usage.Summary(r.Context(), time.Now().Add(-window))
	if err != nil {
		s.log.WithError(err).Error("usage summary failed")
		s.writeError(w, http.StatusInternalServerError, msgInternal, "")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	// An unreadable body decodes to an empty request, which the gateway
	// rejects after its credential check.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		body = nil
	}
	reply, err := s.gateway.Complete(r.Context(), gateway.DecodeRequest(body))
	if err != nil {
		s.writeGatewayError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ChatResponse{
		Reply: reply.Text,
		Usage: reply.Usage,
		Model: reply.Model,
	})
}

func (s *Server) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	entry := s.log.WithField("request_id", middleware.GetReqID(r.Context()))

	var cfgErr *gateway.ConfigurationError
	var valErr *gateway.ValidationError
	var upErr *gateway.UpstreamError
	switch {
	case errors.As(err, &cfgErr):
		entry.WithError(err).Error("chat rejected")
		s.writeError(w, http.StatusInternalServerError, msgMissingKey, "")
	case errors.As(err, &valErr):
		s.writeError(w, http.StatusBadRequest, msgBadRequest, "")
	case errors.As(err, &upErr):
		entry.WithField("upstream_status", upErr.Status).Warn("upstream failure")
		s.writeError(w, http.StatusBadGateway, msgUpstream, upErr.Body)
	default:
		entry.WithError(err).Error("chat failed")
		s.writeError(w, http.StatusInternalServerError, msgInternal, "")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg, details string) {
	writeJSON(w, code, types.ErrorResponse{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
