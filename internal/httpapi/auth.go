package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tubebrief/internal/auth"
	"tubebrief/internal/queue"
	"tubebrief/internal/storage"
)

const resetTokenTTL = time.Hour

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, typeBadRequest, "invalid request body")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, typeBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, typeBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.internalError(w, err, "hash password")
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Email, string(hash))
	if err != nil {
		if errors.Is(err, storage.ErrEmailExists) {
			writeError(w, http.StatusConflict, typeBadRequest, "email already registered")
			return
		}
		s.internalError(w, err, "create user")
		return
	}

	s.issueSession(w, user.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": user.ID, "email": user.Email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, typeBadRequest, "invalid request body")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and wrong password.
		writeError(w, http.StatusUnauthorized, typeUnauthorized, "invalid credentials")
		return
	}
	if user.PasswordHash == nil {
		writeError(w, http.StatusUnauthorized, typeUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, typeUnauthorized, "invalid credentials")
		return
	}

	s.issueSession(w, user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"id": user.ID, "email": user.Email})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, typeBadRequest, "invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeError(w, http.StatusBadRequest, typeBadRequest, "email is required")
		return
	}

	// Always answer 200 so the endpoint cannot be used to probe accounts.
	respond := func() {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}

	user, err := s.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		respond()
		return
	}

	if s.throttle != nil {
		first, err := s.throttle.MarkFirst(r.Context(), email)
		if err != nil {
			s.logger.Error().Err(err).Msg("reset throttle check failed")
		} else if !first {
			respond()
			return
		}
	}

	token := uuid.NewString()
	if err := s.store.SetResetToken(r.Context(), user.ID, token, time.Now().Add(resetTokenTTL)); err != nil {
		s.logger.Error().Err(err).Msg("failed to store reset token")
		respond()
		return
	}

	link := s.publicURL + "/reset?token=" + token
	if s.mailQueue != nil {
		if _, err := s.mailQueue.Enqueue(r.Context(), queue.MailJob{To: email, ResetLink: link}); err != nil {
			s.logger.Error().Err(err).Msg("failed to enqueue reset email")
		}
	}
	respond()
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, typeBadRequest, "invalid request body")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, typeBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := s.store.GetUserByResetToken(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, typeNotFound, "unknown reset token")
			return
		}
		s.internalError(w, err, "lookup reset token")
		return
	}
	if user.ResetExpires == nil || time.Now().After(*user.ResetExpires) {
		writeError(w, http.StatusBadRequest, typeBadRequest, "reset token has expired")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.internalError(w, err, "hash password")
		return
	}
	if err := s.store.SetPassword(r.Context(), user.ID, string(hash)); err != nil {
		s.internalError(w, err, "set password")
		return
	}
	if err := s.store.ClearResetToken(r.Context(), user.ID); err != nil {
		s.logger.Error().Err(err).Msg("failed to clear reset token")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) issueSession(w http.ResponseWriter, userID string) {
	token, err := auth.GenerateToken(userID, s.sessionSecret, s.sessionTTL)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to sign session token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// internalError logs the full failure and hides details from the client
// unless dev mode is on.
func (s *Server) internalError(w http.ResponseWriter, err error, action string) {
	s.logger.Error().Err(err).Str("action", action).Msg("internal error")
	msg := "internal error"
	if s.devMode {
		msg = action + ": " + err.Error()
	}
	writeError(w, http.StatusInternalServerError, typeInternal, msg)
}
