package httpapi

import (
	"encoding/json"
	"net/http"
)

// Error bodies are a stable JSON shape: {"error": {"type": ..., "message": ...}}.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	typeBadRequest    = "bad_request"
	typeUnauthorized  = "unauthorized"
	typeNotFound      = "not_found"
	typeLimitExceeded = "limit_exceeded"
	typeRateLimit     = "rate_limit"
	typeUsageCheck    = "usage_check_failed"
	typeInternal      = "internal_error"
)

func writeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Type: errType, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
