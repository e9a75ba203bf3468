package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// StreamConsumer reads the server's SSE generation stream and keeps
// independent loading/error/success/response state per purpose, so several
// purposes can stream concurrently without interfering.
type StreamConsumer struct {
	baseURL    string
	httpClient *http.Client
	token      string

	mu       sync.Mutex
	response map[string]string
	loading  map[string]bool
	success  map[string]bool
	errs     map[string]string
}

func NewStreamConsumer(baseURL, sessionToken string, httpClient *http.Client) *StreamConsumer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	c := &StreamConsumer{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		token:      sessionToken,
	}
	c.resetLocked()
	return c
}

// Generate issues one POST for the given purpose and consumes the stream
// until [DONE], an in-band error, or a transport failure. Cancel ctx to
// abort an in-flight stream.
func (c *StreamConsumer) Generate(ctx context.Context, purpose string, body any) error {
	c.mu.Lock()
	c.loading[purpose] = true
	c.success[purpose] = false
	delete(c.errs, purpose)
	delete(c.response, purpose)
	c.mu.Unlock()

	payload, err := json.Marshal(body)
	if err != nil {
		return c.fail(purpose, "invalid request payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/result", bytes.NewReader(payload))
	if err != nil {
		return c.fail(purpose, "could not build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(purpose, "network error")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Non-2xx: the body is the error, recorded verbatim.
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return c.fail(purpose, strings.TrimSpace(string(raw)))
	}

	return c.consume(purpose, resp.Body)
}

func (c *StreamConsumer) consume(purpose string, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		if payload == "[DONE]" {
			c.mu.Lock()
			c.success[purpose] = true
			c.loading[purpose] = false
			c.mu.Unlock()
			return nil
		}

		var chunk struct {
			Text  string `json:"text"`
			Error *struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Malformed lines are skipped, not fatal.
			continue
		}
		if chunk.Error != nil {
			return c.fail(purpose, chunk.Error.Message)
		}
		if chunk.Text == "" {
			continue
		}

		c.mu.Lock()
		c.response[purpose] += chunk.Text
		c.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		return c.fail(purpose, "stream interrupted")
	}
	// Stream ended without the [DONE] sentinel.
	return c.fail(purpose, "stream ended unexpectedly")
}

func (c *StreamConsumer) fail(purpose, message string) error {
	if message == "" {
		message = "request failed"
	}
	c.mu.Lock()
	c.errs[purpose] = message
	c.loading[purpose] = false
	c.success[purpose] = false
	c.mu.Unlock()
	return fmt.Errorf("%s: %s", purpose, message)
}

// Reset clears all per-purpose state.
func (c *StreamConsumer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *StreamConsumer) resetLocked() {
	c.response = map[string]string{}
	c.loading = map[string]bool{}
	c.success = map[string]bool{}
	c.errs = map[string]string{}
}

func (c *StreamConsumer) Response(purpose string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.response[purpose]
}

func (c *StreamConsumer) IsLoading(purpose string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading[purpose]
}

func (c *StreamConsumer) IsSuccess(purpose string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.success[purpose]
}

// Err returns the recorded error message for a purpose, empty if none.
func (c *StreamConsumer) Err(purpose string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs[purpose]
}
