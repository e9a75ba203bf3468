package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"tubebrief/internal/storage"
)

type accountResponse struct {
	Email   string `json:"email"`
	Tier    string `json:"tier"`
	Current int    `json:"current"`
	Limit   int    `json:"limit"`
	HasKey  bool   `json:"hasKey"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	user, err := s.store.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, typeNotFound, "account not found")
			return
		}
		s.internalError(w, err, "load account")
		return
	}

	decision, err := s.gate.Check(r.Context(), userID)
	if err != nil {
		s.internalError(w, err, "load usage")
		return
	}
	usage, err := s.store.GetUsage(r.Context(), userID)
	if err != nil {
		s.internalError(w, err, "load usage record")
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		Email:   user.Email,
		Tier:    decision.Tier,
		Current: decision.Current,
		Limit:   decision.Limit,
		HasKey:  usage.EncAPIKey != nil,
	})
}

func (s *Server) handleSaveKey(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, typeBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeError(w, http.StatusBadRequest, typeBadRequest, "apiKey is required")
		return
	}

	enc, err := s.keeper.EncryptString(strings.TrimSpace(req.APIKey))
	if err != nil {
		s.internalError(w, err, "encrypt api key")
		return
	}
	if err := s.store.SaveAPIKey(r.Context(), userID, enc); err != nil {
		s.internalError(w, err, "save api key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"tier": "byok"})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	if err := s.store.DeleteAPIKey(r.Context(), userID); err != nil {
		s.internalError(w, err, "delete api key")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tier": "free"})
}
