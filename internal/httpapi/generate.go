package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tubebrief/internal/notify"
	"tubebrief/internal/providers"
)

const (
	PurposeSummary = "summary"
	PurposeTopics  = "topics"
	PurposeMindMap = "mindmap"
	PurposeSocial  = "social"
	PurposeCustom  = "custom"
)

var purposePrompts = map[string]string{
	PurposeSummary: "Summarize the following video transcript. Capture the key points and overall argument in a few short paragraphs.",
	PurposeTopics:  "List the main topics covered in the following video transcript as a bullet list, most important first.",
	PurposeMindMap: "Produce a mind map of the following video transcript in Markdown, using nested bullet points with the central theme at the top level.",
	PurposeSocial:  "Write a short, engaging social media post that captures the essence of the following video transcript.",
}

type resultRequest struct {
	Transcript   string `json:"transcript"`
	Purpose      string `json:"purpose"`
	CustomPrompt string `json:"customPrompt,omitempty"`
	Model        string `json:"model,omitempty"`
	Language     string `json:"language,omitempty"`
}

type chatTurn struct {
	Role  string `json:"role"`
	Parts []struct {
		Text string `json:"text"`
	} `json:"parts"`
}

type chatRequest struct {
	Prompt  string     `json:"prompt"`
	History []chatTurn `json:"history,omitempty"`
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, typeBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Transcript) == "" {
		writeError(w, http.StatusBadRequest, typeBadRequest, "transcript is required")
		return
	}
	if req.Purpose == "" {
		req.Purpose = PurposeSummary
	}

	systemPrompt, ok := purposePrompts[req.Purpose]
	if !ok {
		if req.Purpose != PurposeCustom {
			writeError(w, http.StatusBadRequest, typeBadRequest, fmt.Sprintf("unknown purpose %q", req.Purpose))
			return
		}
		if strings.TrimSpace(req.CustomPrompt) == "" {
			writeError(w, http.StatusBadRequest, typeBadRequest, "customPrompt is required for the custom purpose")
			return
		}
		systemPrompt = req.CustomPrompt
	}
	if req.Language != "" {
		systemPrompt += " Respond in " + req.Language + "."
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	s.streamGenerate(w, r, providers.ChatRequest{
		Model:        model,
		SystemPrompt: systemPrompt,
		UserPrompt:   req.Transcript,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, typeBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, typeBadRequest, "prompt is required")
		return
	}

	history := make([]providers.Turn, 0, len(req.History))
	for _, turn := range req.History {
		var sb strings.Builder
		for _, p := range turn.Parts {
			sb.WriteString(p.Text)
		}
		history = append(history, providers.Turn{Role: turn.Role, Text: sb.String()})
	}

	s.streamGenerate(w, r, providers.ChatRequest{
		Model:      s.defaultModel,
		UserPrompt: req.Prompt,
		History:    history,
	})
}

// streamGenerate runs the quota gate and the rate limiter, then relays the
// provider stream to the client as SSE. Headers are deferred until the first
// chunk so pre-stream failures can still pick their HTTP status.
func (s *Server) streamGenerate(w http.ResponseWriter, r *http.Request, req providers.ChatRequest) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, typeUnauthorized, "missing session")
		return
	}

	decision, err := s.gate.Check(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("usage check failed")
		writeError(w, http.StatusInternalServerError, typeUsageCheck, "could not verify usage, try again later")
		return
	}
	if !decision.Allowed {
		s.metrics.QuotaDenials.Inc()
		writeError(w, http.StatusTooManyRequests, typeLimitExceeded,
			fmt.Sprintf("monthly free limit of %d reached", decision.Limit))
		return
	}

	if s.limiter != nil {
		allowed, _, resetAt, err := s.limiter.Allow(r.Context(), userID, time.Now())
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("rate limit check failed")
			writeError(w, http.StatusInternalServerError, typeUsageCheck, "could not verify usage, try again later")
			return
		}
		if !allowed {
			s.metrics.RateLimitDenials.Inc()
			writeError(w, http.StatusTooManyRequests, typeRateLimit,
				fmt.Sprintf("hourly request limit reached, resets at %s", resetAt.Format(time.RFC3339)))
			return
		}
	}

	apiKey, err := s.resolveAPIKey(r.Context(), userID, decision.Tier)
	if err != nil {
		s.internalError(w, err, "resolve api key")
		return
	}
	provider, err := s.newProvider(apiKey)
	if err != nil {
		s.internalError(w, err, "build provider")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.internalError(w, fmt.Errorf("response writer does not support flushing"), "stream setup")
		return
	}

	// Client disconnect cancels r.Context(), which aborts the upstream call.
	ctx, cancel := context.WithTimeout(r.Context(), s.streamTimeout)
	defer cancel()

	s.metrics.GenerationsStarted.Inc()

	headersSent := false
	sendHeaders := func() {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		headersSent = true
	}

	streamErr := provider.ChatStream(ctx, req, func(chunk string) error {
		if !headersSent {
			sendHeaders()
		}
		payload, err := json.Marshal(map[string]string{"text": chunk})
		if err != nil {
			return fmt.Errorf("marshal chunk: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
		flusher.Flush()
		s.metrics.ChunksRelayed.Inc()
		return nil
	})

	if streamErr != nil {
		s.metrics.GenerationsFailed.Inc()
		cls := providers.Classify(streamErr)
		s.logger.Error().Err(streamErr).
			Str("user_id", userID).
			Int("status", cls.Status).
			Str("type", cls.Type).
			Msg("generation failed")

		if !headersSent {
			msg := "generation failed"
			if s.devMode {
				msg = streamErr.Error()
			}
			writeError(w, cls.Status, cls.Type, msg)
			return
		}
		// The status line is gone; fail the stream in-band so the consumer
		// still observes the error.
		payload, _ := json.Marshal(map[string]any{"error": map[string]string{"type": cls.Type, "message": "generation failed"}})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return
	}

	if !headersSent {
		sendHeaders()
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
	s.metrics.GenerationsSucceeded.Inc()

	// The request context may already be gone if the client left right after
	// [DONE]; the increment still has to land.
	usage, err := s.gate.Consume(context.WithoutCancel(r.Context()), userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to record usage")
		return
	}
	if s.notifier != nil {
		s.notifier.Publish(notify.UsageEvent{UserID: userID, Current: usage.SummaryCount, Tier: usage.AccountTier})
	}
}

func (s *Server) resolveAPIKey(ctx context.Context, userID, tier string) (string, error) {
	if tier != "byok" {
		return s.serverAPIKey, nil
	}
	usage, err := s.store.GetUsage(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load usage record: %w", err)
	}
	if usage.EncAPIKey == nil || strings.TrimSpace(*usage.EncAPIKey) == "" {
		// Tier says byok but no key stored; fall back to the server key.
		return s.serverAPIKey, nil
	}
	key, err := s.keeper.DecryptString(*usage.EncAPIKey)
	if err != nil {
		return "", fmt.Errorf("decrypt user api key: %w", err)
	}
	return key, nil
}
