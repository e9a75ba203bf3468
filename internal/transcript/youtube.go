package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultBaseURL = "https://www.youtube.com"

var (
	ErrInvalidURL   = errors.New("not a recognized youtube url")
	ErrNoTranscript = errors.New("no transcript available for this video")
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID accepts the usual youtube url shapes (watch, youtu.be,
// embed, shorts) or a bare 11-character id.
func ExtractVideoID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	switch host {
	case "youtu.be":
		id := strings.Trim(u.Path, "/")
		if videoIDPattern.MatchString(id) {
			return id, nil
		}
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if id := u.Query().Get("v"); videoIDPattern.MatchString(id) {
			return id, nil
		}
		for _, prefix := range []string{"/embed/", "/shorts/", "/live/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id := strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
				if videoIDPattern.MatchString(id) {
					return id, nil
				}
			}
		}
	}
	return "", ErrInvalidURL
}

type Fetcher struct {
	baseURL    string
	httpClient *http.Client
}

func NewFetcher(baseURL string, httpClient *http.Client) *Fetcher {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Fetcher{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: httpClient}
}

// Fetch pulls the caption track for a video via the timedtext endpoint and
// flattens it into plain text.
func (f *Fetcher) Fetch(ctx context.Context, videoID, lang string) (string, error) {
	if lang == "" {
		lang = "en"
	}

	endpoint := fmt.Sprintf("%s/api/timedtext?v=%s&lang=%s&fmt=json3",
		f.baseURL, url.QueryEscape(videoID), url.QueryEscape(lang))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNoTranscript
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("timedtext status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("read transcript body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", ErrNoTranscript
	}

	text, err := flattenJSON3(body)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoTranscript
	}
	return text, nil
}

func flattenJSON3(body []byte) (string, error) {
	var doc struct {
		Events []struct {
			Segs []struct {
				UTF8 string `json:"utf8"`
			} `json:"segs"`
		} `json:"events"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode timedtext json: %w", err)
	}

	var sb strings.Builder
	for _, ev := range doc.Events {
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " "), nil
}
