// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// Embedder generates embedding vectors for document content.
type Embedder interface {
	// EmbedDocuments generates one normalized vector (L2 norm = 1.0)
	// per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Name identifies the provider in logs and error reports.
	Name() string
}

// RetryConfig controls retry behavior for provider calls.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig is the provider retry policy used when none is given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

func (cfg *RetryConfig) normalize() {
	// Basic sanity defaults to avoid zero values causing busy loops
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.Multiplier <= 1.0 {
		cfg.Multiplier = 2.0
	}
}

// NewEmbedder creates an embedder from a provider name.
// Supported providers:
//   - "mock": Deterministic mock embeddings for testing (384 dimensions)
//   - "ollama": Local Ollama server (default: http://localhost:11434)
//   - "openai": OpenAI-compatible API (requires OPENAI_API_KEY and optionally OPENAI_API_BASE)
func NewEmbedder(providerType string, logger *slog.Logger) (Embedder, error) {
	switch providerType {
	case "mock", "":
		return NewMockEmbedder(384, logger), nil // 384 is a common embedding dimension

	case "ollama", "local_model":
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := os.Getenv("OLLAMA_EMBED_MODEL")
		if model == "" {
			model = "nomic-embed-text" // Default embedding model for Ollama
		}
		return NewOllamaEmbedder(baseURL, model, logger), nil

	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for openai provider")
		}
		baseURL := os.Getenv("OPENAI_API_BASE")
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		model := os.Getenv("OPENAI_EMBED_MODEL")
		if model == "" {
			model = "text-embedding-3-small" // Default OpenAI embedding model
		}
		return NewOpenAIEmbedder(apiKey, baseURL, model, logger), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: mock, ollama, openai)", providerType)
	}
}

// =============================================================================
// MOCK EMBEDDER
// =============================================================================

// MockEmbedder generates deterministic mock embeddings for testing.
type MockEmbedder struct {
	dimension int
	logger    *slog.Logger
}

// NewMockEmbedder creates a mock embedder.
func NewMockEmbedder(dimension int, logger *slog.Logger) *MockEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockEmbedder{
		dimension: dimension,
		logger:    logger,
	}
}

func (m *MockEmbedder) Name() string { return "mock" }

// EmbedDocuments generates deterministic embeddings from text hashes.
// Not semantically meaningful; identical text always maps to the same
// vector.
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, &EmbeddingError{Provider: m.Name(), Err: ErrCancelled}
		}
		hash := hashString(text)
		embedding := make([]float32, m.dimension)
		for j := 0; j < m.dimension; j++ {
			val := float32((hash+uint64(j)*7919)%10000) / 10000.0
			embedding[j] = val*2.0 - 1.0 // Map to [-1, 1]
		}
		out[i] = normalizeEmbedding(embedding)
	}
	return out, nil
}

func hashString(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	return hash
}

// =============================================================================
// OLLAMA EMBEDDER
// =============================================================================

// OllamaEmbedder generates embeddings using a local Ollama server.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// OllamaEmbedRequest represents the request body for Ollama embeddings API.
type OllamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// OllamaEmbedResponse represents the response from Ollama embeddings API.
type OllamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// OllamaErrorResponse represents an error response from Ollama.
type OllamaErrorResponse struct {
	Error string `json:"error"`
}

// isNomicModel checks if the model is a Nomic embedding model that supports
// asymmetric search prefixes (search_document/search_query).
func isNomicModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "nomic")
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(baseURL, model string, logger *slog.Logger) *OllamaEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // Local models may be slower
		},
		logger: logger,
	}
}

func (o *OllamaEmbedder) Name() string { return "ollama" }

// ollamaParallelRequests bounds concurrent /api/embeddings calls. Local
// Ollama serves a small number of requests well; more just queues inside
// the server.
const ollamaParallelRequests = 4

// EmbedDocuments embeds each text with one /api/embeddings call; the
// Ollama API takes a single prompt per request, so requests run in
// parallel up to ollamaParallelRequests.
func (o *OllamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ollamaParallelRequests)
	for i, text := range texts {
		g.Go(func() error {
			embedding, err := o.embedOne(gctx, text)
			if err != nil {
				return &EmbeddingError{Provider: o.Name(), Err: err}
			}
			out[i] = embedding
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	// For nomic-embed-text and similar models, add "search_document:" prefix
	// to enable asymmetric embeddings. Queries use "search_query:".
	// See: https://huggingface.co/nomic-ai/nomic-embed-text-v1.5
	prompt := text
	if isNomicModel(o.model) {
		prompt = "search_document: " + text
	}

	reqBody := OllamaEmbedRequest{
		Model:  o.model,
		Prompt: prompt,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := o.baseURL + "/api/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request (is Ollama running at %s?): %w", o.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp OllamaErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp OllamaEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}

	embedding := make([]float32, len(embedResp.Embedding))
	for i, v := range embedResp.Embedding {
		embedding[i] = float32(v)
	}
	return normalizeEmbedding(embedding), nil
}

// =============================================================================
// OPENAI-COMPATIBLE EMBEDDER
// =============================================================================

// OpenAIEmbedder generates embeddings using OpenAI or compatible APIs.
// Works with OpenAI, Azure OpenAI, Anyscale, Together AI, etc.
type OpenAIEmbedder struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenAIEmbedRequest represents the request body for OpenAI embeddings API.
type OpenAIEmbedRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"` // "float" or "base64"
}

// OpenAIEmbedResponse represents the response from OpenAI embeddings API.
type OpenAIEmbedResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAIErrorResponse represents an error response from OpenAI API.
type OpenAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIEmbedder creates a new OpenAI-compatible embedder.
func NewOpenAIEmbedder(apiKey, baseURL, model string, logger *slog.Logger) *OpenAIEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIEmbedder{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (o *OpenAIEmbedder) Name() string { return "openai" }

// EmbedDocuments embeds all texts in one request; the API accepts
// batched input and returns vectors tagged with their input index.
func (o *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := OpenAIEmbedRequest{
		Input:          texts,
		Model:          o.model,
		EncodingFormat: "float",
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &EmbeddingError{Provider: o.Name(), Err: fmt.Errorf("marshal request: %w", err)}
	}

	url := o.baseURL + "/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &EmbeddingError{Provider: o.Name(), Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, &EmbeddingError{Provider: o.Name(), Err: fmt.Errorf("http request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &EmbeddingError{Provider: o.Name(), Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp OpenAIErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &EmbeddingError{Provider: o.Name(),
				Err: fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, errResp.Error.Message)}
		}
		return nil, &EmbeddingError{Provider: o.Name(),
			Err: fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(body))}
	}

	var embedResp OpenAIEmbedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, &EmbeddingError{Provider: o.Name(), Err: fmt.Errorf("parse response: %w", err)}
	}
	if len(embedResp.Data) != len(texts) {
		return nil, &EmbeddingError{Provider: o.Name(),
			Err: fmt.Errorf("openai returned %d embeddings for %d inputs", len(embedResp.Data), len(texts))}
	}

	out := make([][]float32, len(texts))
	for _, item := range embedResp.Data {
		if item.Index < 0 || item.Index >= len(texts) || len(item.Embedding) == 0 {
			return nil, &EmbeddingError{Provider: o.Name(), Err: fmt.Errorf("openai returned malformed embedding data")}
		}
		embedding := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			embedding[i] = float32(v)
		}
		// OpenAI embeddings are already normalized, but verify.
		out[item.Index] = normalizeEmbedding(embedding)
	}
	return out, nil
}

// =============================================================================
// RETRYING EMBEDDER
// =============================================================================

// RetryingEmbedder wraps a provider with exponential backoff and jitter.
// Only transient failures are retried; provider rejections surface
// immediately.
type RetryingEmbedder struct {
	inner  Embedder
	retry  RetryConfig
	logger *slog.Logger
}

// NewRetryingEmbedder wraps inner with the given retry policy.
func NewRetryingEmbedder(inner Embedder, cfg RetryConfig, logger *slog.Logger) *RetryingEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.normalize()
	return &RetryingEmbedder{inner: inner, retry: cfg, logger: logger}
}

func (r *RetryingEmbedder) Name() string { return r.inner.Name() }

func (r *RetryingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := computeBackoffWithJitter(r.retry.InitialBackoff, attempt-1, r.retry.Multiplier, r.retry.MaxBackoff)
			recordEmbedRetry()
			r.logger.Warn("embed.retry",
				"provider", r.inner.Name(),
				"attempt", attempt,
				"backoff_ms", backoff.Milliseconds(),
				"err", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, &EmbeddingError{Provider: r.inner.Name(), Err: ErrCancelled}
			case <-time.After(backoff):
			}
		}

		recordEmbedCall()
		vectors, err := r.inner.EmbedDocuments(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !isRetryableEmbeddingError(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("embed after %d retries: %w", r.retry.MaxRetries, lastErr)
}

// isRetryableEmbeddingError classifies provider errors: network/timeout and HTTP 5xx/429 are retryable.
func isRetryableEmbeddingError(err error) bool {
	if err == nil {
		return false
	}
	// Best-effort classification based on error text to avoid importing provider internals
	msg := err.Error()
	// Common retryable substrings
	retrySubstr := []string{"timeout", "temporarily unavailable", "connection refused", "connection reset", "deadline exceeded", "EOF"}
	for _, s := range retrySubstr {
		if containsFold(msg, s) {
			return true
		}
	}
	// HTTP status codes if present in message
	// treat 429 and 5xx as retryable
	httpRetry := []string{" 429)", " 500)", " 502)", " 503)", " 504)"}
	for _, s := range httpRetry {
		if containsFold(msg, s) {
			return true
		}
	}
	return false
}

// computeBackoffWithJitter returns exponential backoff with full jitter
func computeBackoffWithJitter(base time.Duration, attempt int, mult float64, capDur time.Duration) time.Duration {
	// exp = base * mult^attempt
	exp := float64(base)
	for i := 0; i < attempt; i++ {
		exp *= mult
	}
	d := time.Duration(exp)
	if d > capDur {
		d = capDur
	}
	// full jitter [0, d]
	if d <= 0 {
		return base
	}
	return time.Duration(rand.Int64N(int64(d) + 1))
}

// containsFold is a lightweight strings.ContainsFold
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// =============================================================================
// CACHING EMBEDDER
// =============================================================================

// CachingEmbedder fronts a provider with an LRU keyed on content hash.
// Re-ingesting an unchanged dump embeds nothing.
type CachingEmbedder struct {
	inner  Embedder
	cache  *lru.Cache[string, []float32]
	logger *slog.Logger

	mu     sync.Mutex
	hits   int64
	misses int64
}

// NewCachingEmbedder wraps inner with a cache of at most size vectors.
func NewCachingEmbedder(inner Embedder, size int, logger *slog.Logger) (*CachingEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachingEmbedder{inner: inner, cache: cache, logger: logger}, nil
}

func (c *CachingEmbedder) Name() string { return c.inner.Name() }

// EmbedDocuments serves what it can from the cache and forwards only the
// misses to the provider. Returned vectors are copies; the cache never
// hands out an aliased slice.
func (c *CachingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		key := DocumentHash(text)
		if vec, ok := c.cache.Get(key); ok {
			out[i] = append([]float32(nil), vec...)
			recordEmbedCacheHit()
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		c.mu.Lock()
		c.misses += int64(len(missTexts))
		c.mu.Unlock()

		vectors, err := c.inner.EmbedDocuments(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(missTexts) {
			return nil, &EmbeddingError{Provider: c.Name(),
				Err: fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(missTexts))}
		}
		for j, vec := range vectors {
			c.cache.Add(DocumentHash(missTexts[j]), append([]float32(nil), vec...))
			out[missIdx[j]] = vec
		}
	}
	return out, nil
}

// CacheStats reports cumulative hit and miss counts.
func (c *CachingEmbedder) CacheStats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// normalizeEmbedding scales a vector to unit L2 norm. Zero vectors are
// returned unchanged.
func normalizeEmbedding(embedding []float32) []float32 {
	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return embedding
	}
	for i := range embedding {
		embedding[i] = float32(float64(embedding[i]) / norm)
	}
	return embedding
}
