package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mfiorillo/choir/internal/config"
	"github.com/mfiorillo/choir/internal/memory"
	"github.com/mfiorillo/choir/internal/observability"
	"github.com/mfiorillo/choir/internal/orchestrator"
	"github.com/mfiorillo/choir/internal/providers"
)

type Server struct {
	cfg      config.Config
	store    memory.Store
	registry *providers.Registry
	engine   *orchestrator.Engine
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, store memory.Store, registry *providers.Registry, engine *orchestrator.Engine, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		engine:   engine,
		metrics:  metrics,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Same-origin only by default, so other sites cannot drive
				// a user's comparison session if the service is exposed
				// beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/conversations", s.handleCreateConversation)
	r.Get("/v1/conversations", s.handleListConversations)
	r.Get("/v1/conversations/{id}/history", s.handleConversationHistory)
	r.Delete("/v1/conversations/{id}", s.handleDeleteConversation)
	r.Post("/v1/conversations/{id}/memory/{providerID}", s.handleUpdateMemory)

	r.Get("/v1/llm/available", s.handleAvailableProviders)
	r.Post("/v1/llm/query", s.handleQuery)
	r.Post("/v1/llm/simulate", s.handleSimulate)
	r.Get("/v1/llm/ws", s.handleResultStream)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": len(s.registry.Descriptors()),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondCycleError maps engine failures onto the error taxonomy: validation
// rejections become 400, a missing session 404, store failures 500.
func (s *Server) respondCycleError(w http.ResponseWriter, err error) {
	switch {
	case orchestrator.IsValidation(err):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, memory.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	default:
		s.logger.Error("prompt cycle failed", "error", err)
		respondError(w, http.StatusInternalServerError, "store_failure", err.Error())
	}
}
