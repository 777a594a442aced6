// Package server is the HTTP + WebSocket API surface for a11yd.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quietfield/a11yd/internal/app"
	"github.com/quietfield/a11yd/internal/auth"
	"github.com/quietfield/a11yd/internal/config"
	"github.com/quietfield/a11yd/internal/errs"
	"github.com/quietfield/a11yd/internal/store"
)

// Server routes API requests to the orchestrator and the subject store.
type Server struct {
	cfg          config.ServerConfig
	version      string
	orchestrator *app.Orchestrator
	users        *store.Store
	tokens       *auth.Manager
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

func NewServer(cfg config.ServerConfig, version string, orch *app.Orchestrator, st *store.Store, tokens *auth.Manager, logger *zap.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		version:      version,
		orchestrator: orch,
		users:        st,
		tokens:       tokens,
		router:       chi.NewRouter(),
		logger:       logger.Named("server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin(cfg.AllowedOrigin),
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)
	r.Use(s.recoverMiddleware)

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)
	r.Get("/api/auth/me", s.requireAuth(s.handleMe))

	r.Post("/api/analyze", s.requireAuth(s.handleAnalyze))
	r.Get("/api/history", s.requireAuth(s.handleHistory))

	r.Get("/api/rules", s.handleRules)
	r.Get("/api/health", s.handleHealth)

	r.Get("/api/ws/analyze", s.requireAuth(s.handleAnalyzeWS))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not found",
			"message": "the requested endpoint does not exist",
		})
	})
}

// ServeHTTP implements http.Handler with request logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("http_request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // analyses and websocket streams run long
	}
}

// checkOrigin gates websocket upgrades by the configured origin. Requests
// without an Origin header (non-browser clients) are allowed; browsers must
// match server.allowed_origin unless it is the wildcard.
func checkOrigin(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "" || allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

// --- middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := s.cfg.AllowedOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+auth.HeaderName)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error":   "internal server error",
					"message": "an unexpected error occurred",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAuth validates the token and passes the subject id to the handler.
// No partial processing happens on a missing or invalid token. Websocket
// clients may carry the token in a query parameter since browsers cannot set
// headers on upgrade requests.
func (s *Server) requireAuth(next func(w http.ResponseWriter, r *http.Request, subjectID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(auth.HeaderName)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		subjectID, err := s.tokens.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, errs.SafeMessage(err))
			return
		}
		next(w, r, subjectID)
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps an error to its taxonomy status and safe message,
// echoing internal detail only in dev mode.
func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	body := map[string]string{
		"error":   kind.String(),
		"message": errs.SafeMessage(err),
	}
	if s.cfg.DevMode {
		body["detail"] = err.Error()
	}
	writeJSON(w, errs.HTTPStatus(kind), body)
}
