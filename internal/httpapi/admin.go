package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// handleUsageReset is the monthly sweep endpoint, called by an external
// scheduler with the shared reset secret.
func (s *Server) handleUsageReset(w http.ResponseWriter, r *http.Request) {
	if !s.devMode {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.resetSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, typeUnauthorized, "invalid reset secret")
			return
		}
	}

	updated, err := s.store.ResetAllFreeTierUsage(r.Context())
	if err != nil {
		s.internalError(w, err, "reset usage")
		return
	}

	s.metrics.UsageResets.Inc()
	s.logger.Info().Int64("updated", updated).Msg("monthly usage reset completed")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}
