package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/quietfield/a11yd/internal/app"
	"github.com/quietfield/a11yd/internal/errs"
	"github.com/quietfield/a11yd/internal/report"
	"github.com/quietfield/a11yd/internal/store"
)

const (
	minUsernameLen = 3
	minPasswordLen = 6
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(body.Username) < minUsernameLen {
		writeError(w, http.StatusBadRequest, "username must be at least 3 characters long")
		return
	}
	if len(body.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "password must be at least 6 characters long")
		return
	}

	hash, err := s.tokens.HashPassword(body.Password)
	if err != nil {
		s.logger.Error("hashing password", zap.Error(err))
		s.writeAppError(w, err)
		return
	}

	user, err := s.users.CreateUser(r.Context(), body.Username, hash)
	if err != nil {
		if errs.KindOf(err) == errs.Conflict {
			writeError(w, http.StatusBadRequest, "user already exists")
			return
		}
		s.logger.Error("creating user", zap.Error(err))
		s.writeAppError(w, err)
		return
	}

	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		s.logger.Error("issuing token", zap.Error(err))
		s.writeAppError(w, err)
		return
	}
	s.logger.Info("registered user", zap.String("username", user.Username))
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	// Unknown user and wrong password must be indistinguishable.
	user, err := s.users.GetUserByUsername(r.Context(), body.Username)
	if err != nil {
		if !errors.Is(err, store.ErrUserNotFound) {
			s.logger.Error("reading user", zap.Error(err))
			s.writeAppError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}
	if !s.tokens.VerifyPassword(user.PasswordHash, body.Password) {
		writeError(w, http.StatusBadRequest, "invalid credentials")
		return
	}

	token, err := s.tokens.IssueToken(user.ID)
	if err != nil {
		s.logger.Error("issuing token", zap.Error(err))
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, subjectID string) {
	user, err := s.users.GetUserByID(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "token is not valid")
			return
		}
		s.logger.Error("reading user", zap.Error(err))
		s.writeAppError(w, err)
		return
	}
	// User serializes without its credential hash.
	writeJSON(w, http.StatusOK, user)
}

type analyzeRequest struct {
	URL     string      `json:"url"`
	Options app.Options `json:"options"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, subjectID string) {
	var body analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	rep, err := s.orchestrator.Analyze(r.Context(), subjectID, body.URL, body.Options, nil)
	if err != nil {
		s.logger.Warn("analysis failed", zap.String("url", body.URL), zap.Error(err))
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, subjectID string) {
	reports, err := s.orchestrator.History(r.Context(), subjectID)
	if err != nil {
		s.logger.Warn("fetching history", zap.Error(err))
		s.writeAppError(w, err)
		return
	}
	if reports == nil {
		reports = []*report.Report{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.orchestrator.Rules(r.Context())
	if err != nil {
		s.logger.Warn("fetching rules", zap.Error(err))
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
	})
}
