// Package transcribe is the client of the speech-to-text service.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultTimeout = time.Hour

// ServiceError is a non-2xx reply from the transcription service.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("transcription service: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx). Client errors such as a
// missing audio file are permanent.
func (e *ServiceError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type Segment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
}

type Result struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
}

// Models lists the model sizes the service can load.
type Models struct {
	Available []string `json:"available"`
	Current   string   `json:"current"`
}

type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns a client of the service at baseURL. An empty language lets
// the service detect it.
func NewClient(baseURL string, timeout time.Duration, language string, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "transcribe"),
	}
}

type transcribeRequest struct {
	AudioPath string `json:"audio_path"`
	Language  string `json:"language,omitempty"`
}

// Transcribe sends the path of an extracted mono 16kHz WAV file. The service
// reads the file itself, so the path must be visible to it.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	body, err := json.Marshal(transcribeRequest{AudioPath: audioPath, Language: c.language})
	if err != nil {
		return nil, fmt.Errorf("marshal transcribe request: %w", err)
	}

	start := time.Now()
	var result Result
	if err := c.do(ctx, http.MethodPost, "/transcribe", body, &result); err != nil {
		return nil, err
	}

	c.logger.Info("transcription received",
		"segments", len(result.Segments),
		"language", result.Language,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return &result, nil
}

// Health returns nil when the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) Models(ctx context.Context) (*Models, error) {
	var m Models
	if err := c.do(ctx, http.MethodGet, "/models", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Heimdex-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ServiceError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
