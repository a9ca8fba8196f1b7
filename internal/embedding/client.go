// Package embedding is the client of the text embedding service.
//
// Embed splits its input into batches that run with bounded concurrency under
// a shared request rate limit. A batch that fails is retried one item at a
// time and items that still fail are dropped, so one bad segment never costs
// the rest of the video its vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultBatchSize   = 32
	DefaultConcurrency = 4
	DefaultTimeout     = 10 * time.Minute
)

var ErrNoEmbedding = errors.New("embedding service returned no vector")

// ServiceError is a non-2xx reply from the embedding service.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("embedding service: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
func (e *ServiceError) IsRetryable() bool {
	return e.StatusCode >= 500
}

type Item struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

type Options struct {
	BatchSize   int
	Concurrency int
	// RequestsPerSecond limits calls to the service; 0 means unlimited.
	RequestsPerSecond float64
	// Dimension every vector must have; 0 adopts the first vector seen.
	Dimension int
	Timeout   time.Duration
}

// Result maps item ids to vectors. Dropped counts the items without one.
type Result struct {
	Vectors   map[int64][]float32
	Dimension int
	Dropped   int
}

type Client struct {
	baseURL    string
	opts       Options
	limiter    *rate.Limiter
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, opts Options, logger *slog.Logger) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
		limiter:    rate.NewLimiter(limit, opts.Concurrency),
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger.With("component", "embedding"),
	}
}

// Embed returns a vector for every item the service could embed. The only
// error is cancellation of ctx; service failures shrink the result instead.
func (c *Client) Embed(ctx context.Context, items []Item) (*Result, error) {
	acc := &accumulator{
		vectors:   make(map[int64][]float32, len(items)),
		dimension: c.opts.Dimension,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)

	for start := 0; start < len(items); start += c.opts.BatchSize {
		batch := items[start:min(start+c.opts.BatchSize, len(items))]
		g.Go(func() error {
			return c.embedBatch(gctx, batch, acc)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Vectors: acc.vectors, Dimension: acc.dimension, Dropped: len(items) - len(acc.vectors)}
	if res.Dropped > 0 {
		c.logger.Warn("embeddings dropped", "dropped", res.Dropped, "total", len(items))
	}
	return res, nil
}

func (c *Client) embedBatch(ctx context.Context, batch []Item, acc *accumulator) error {
	vectors, err := c.call(ctx, batch)
	if err == nil {
		acc.add(batch, vectors)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if len(batch) == 1 {
		c.logger.Warn("embedding failed", "id", batch[0].ID, "error", err)
		return nil
	}

	c.logger.Warn("embedding batch failed, retrying items", "size", len(batch), "error", err)
	for _, item := range batch {
		one := []Item{item}
		vectors, err := c.call(ctx, one)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("embedding failed", "id", item.ID, "error", err)
			continue
		}
		acc.add(one, vectors)
	}
	return nil
}

// EmbedQuery embeds a single search query. Unlike Embed, failures are returned.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.call(ctx, []Item{{ID: 0, Text: text}})
	if err != nil {
		return nil, err
	}
	vec := vectors[0]
	if len(vec) == 0 {
		return nil, ErrNoEmbedding
	}
	if c.opts.Dimension > 0 && len(vec) != c.opts.Dimension {
		return nil, fmt.Errorf("query vector has dimension %d, want %d", len(vec), c.opts.Dimension)
	}
	return vec, nil
}

// Health returns nil when the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding health check failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return &ServiceError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

type embedRequest struct {
	Segments []Item `json:"segments"`
}

type embedResponse struct {
	Embeddings []struct {
		ID        int64     `json:"id"`
		Embedding []float32 `json:"embedding"`
	} `json:"embeddings"`
}

func (c *Client) call(ctx context.Context, items []Item) (map[int64][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{Segments: items})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Heimdex-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ServiceError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	vectors := make(map[int64][]float32, len(out.Embeddings))
	for _, e := range out.Embeddings {
		vectors[e.ID] = e.Embedding
	}
	return vectors, nil
}

// accumulator collects vectors from concurrent batches and enforces one
// dimension across them.
type accumulator struct {
	mu        sync.Mutex
	vectors   map[int64][]float32
	dimension int
}

func (a *accumulator) add(batch []Item, vectors map[int64][]float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, item := range batch {
		vec, ok := vectors[item.ID]
		if !ok || len(vec) == 0 {
			continue
		}
		if a.dimension == 0 {
			a.dimension = len(vec)
		}
		if len(vec) != a.dimension {
			continue
		}
		a.vectors[item.ID] = vec
	}
}
