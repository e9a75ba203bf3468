package httpapi

import (
	"errors"
	"net/http"

	"tubebrief/internal/transcript"
)

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeError(w, http.StatusBadRequest, typeBadRequest, "url query parameter is required")
		return
	}

	videoID, err := transcript.ExtractVideoID(rawURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, typeBadRequest, "not a recognized youtube url")
		return
	}

	text, err := s.transcripts.Fetch(r.Context(), videoID, r.URL.Query().Get("lang"))
	if err != nil {
		if errors.Is(err, transcript.ErrNoTranscript) {
			writeError(w, http.StatusNotFound, typeNotFound, "no transcript available for this video")
			return
		}
		s.internalError(w, err, "fetch transcript")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"videoId": videoID, "transcript": text})
}
