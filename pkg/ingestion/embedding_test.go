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
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder(384, testLogger())
	ctx := context.Background()

	v1, err := m.EmbedDocuments(ctx, []string{"public class Player { }"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	v2, err := m.EmbedDocuments(ctx, []string{"public class Player { }"})
	if err != nil {
		t.Fatalf("embed again: %v", err)
	}

	if len(v1[0]) != 384 {
		t.Fatalf("dimension = %d, want 384", len(v1[0]))
	}
	for i := range v1[0] {
		if v1[0][i] != v2[0][i] {
			t.Fatalf("embedding not deterministic at %d: %v vs %v", i, v1[0][i], v2[0][i])
		}
	}

	// Unit norm
	var norm float64
	for _, v := range v1[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("L2 norm = %v, want 1.0", math.Sqrt(norm))
	}
}

func TestMockEmbedder_DifferentTexts(t *testing.T) {
	m := NewMockEmbedder(64, testLogger())

	vecs, err := m.EmbedDocuments(context.Background(), []string{"class A { }", "class B { }"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	same := true
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical embeddings")
	}
}

// countingEmbedder counts provider calls and texts embedded.
type countingEmbedder struct {
	inner Embedder

	mu    sync.Mutex
	calls int
	texts int
}

func (c *countingEmbedder) Name() string { return c.inner.Name() }

func (c *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.texts += len(texts)
	c.mu.Unlock()
	return c.inner.EmbedDocuments(ctx, texts)
}

func TestCachingEmbedder(t *testing.T) {
	counting := &countingEmbedder{inner: NewMockEmbedder(16, testLogger())}
	caching, err := NewCachingEmbedder(counting, 128, testLogger())
	if err != nil {
		t.Fatalf("new caching embedder: %v", err)
	}
	ctx := context.Background()

	texts := []string{"class A { }", "class B { }", "class C { }"}
	first, err := caching.EmbedDocuments(ctx, texts)
	if err != nil {
		t.Fatalf("first embed: %v", err)
	}
	if counting.texts != 3 {
		t.Errorf("provider embedded %d texts, want 3", counting.texts)
	}

	// Everything served from cache; provider untouched.
	second, err := caching.EmbedDocuments(ctx, texts)
	if err != nil {
		t.Fatalf("second embed: %v", err)
	}
	if counting.texts != 3 {
		t.Errorf("provider embedded %d texts after cached call, want still 3", counting.texts)
	}
	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("cached vector differs at [%d][%d]", i, j)
			}
		}
	}

	hits, misses := caching.CacheStats()
	if hits != 3 || misses != 3 {
		t.Errorf("cache stats = %d hits / %d misses, want 3/3", hits, misses)
	}
}

func TestCachingEmbedder_ReturnsCopies(t *testing.T) {
	caching, err := NewCachingEmbedder(NewMockEmbedder(8, testLogger()), 16, testLogger())
	if err != nil {
		t.Fatalf("new caching embedder: %v", err)
	}
	ctx := context.Background()

	v1, _ := caching.EmbedDocuments(ctx, []string{"class A { }"})
	v1[0][0] = 42 // caller mutates its copy

	v2, _ := caching.EmbedDocuments(ctx, []string{"class A { }"})
	if v2[0][0] == 42 {
		t.Error("cache returned an aliased slice; mutation leaked")
	}
}

func TestCachingEmbedder_MixedHitsAndMisses(t *testing.T) {
	counting := &countingEmbedder{inner: NewMockEmbedder(8, testLogger())}
	caching, err := NewCachingEmbedder(counting, 16, testLogger())
	if err != nil {
		t.Fatalf("new caching embedder: %v", err)
	}
	ctx := context.Background()

	if _, err := caching.EmbedDocuments(ctx, []string{"class A { }"}); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	vecs, err := caching.EmbedDocuments(ctx, []string{"class B { }", "class A { }", "class C { }"})
	if err != nil {
		t.Fatalf("mixed embed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("vectors = %d, want 3", len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			t.Errorf("vector %d is empty", i)
		}
	}
	// Only B and C went upstream.
	if counting.texts != 3 {
		t.Errorf("provider embedded %d texts total, want 3 (A once, then B and C)", counting.texts)
	}
}

// flakyEmbedder fails a set number of calls, then succeeds.
type flakyEmbedder struct {
	inner    Embedder
	failures int
	err      error
	calls    int
}

func (f *flakyEmbedder) Name() string { return "flaky" }

func (f *flakyEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.inner.EmbedDocuments(ctx, texts)
}

func TestRetryingEmbedder_RecoversFromTransientErrors(t *testing.T) {
	flaky := &flakyEmbedder{
		inner:    NewMockEmbedder(8, testLogger()),
		failures: 2,
		err:      errors.New("dial tcp: connection refused"),
	}
	retrying := NewRetryingEmbedder(flaky, RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}, testLogger())

	vecs, err := retrying.EmbedDocuments(context.Background(), []string{"class A { }"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("vectors = %d, want 1", len(vecs))
	}
	if flaky.calls != 3 {
		t.Errorf("provider calls = %d, want 3", flaky.calls)
	}
}

func TestRetryingEmbedder_PermanentErrorFailsFast(t *testing.T) {
	flaky := &flakyEmbedder{
		inner:    NewMockEmbedder(8, testLogger()),
		failures: 10,
		err:      errors.New("openai API error (status 401): invalid api key"),
	}
	retrying := NewRetryingEmbedder(flaky, RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
	}, testLogger())

	_, err := retrying.EmbedDocuments(context.Background(), []string{"class A { }"})
	if err == nil {
		t.Fatal("expected error")
	}
	if flaky.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no retries on 401)", flaky.calls)
	}
}

func TestIsRetryableEmbeddingError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("context deadline exceeded (Client.Timeout)"), true},
		{"refused", errors.New("dial tcp 127.0.0.1:11434: connection refused"), true},
		{"reset", errors.New("read: connection reset by peer"), true},
		{"rate limited", errors.New("openai API error (status 429): rate limit"), true},
		{"server error", errors.New("ollama API error (status 503): overloaded"), true},
		{"bad key", errors.New("openai API error (status 401): invalid api key"), false},
		{"bad request", errors.New("openai API error (status 400): input too long"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableEmbeddingError(tt.err); got != tt.want {
				t.Errorf("isRetryableEmbeddingError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNormalizeEmbedding(t *testing.T) {
	vec := normalizeEmbedding([]float32{3, 4})
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("normalized = %v, want [0.6 0.8]", vec)
	}
}

func TestNormalizeEmbedding_ZeroVector(t *testing.T) {
	vec := normalizeEmbedding([]float32{0, 0, 0})
	for i, v := range vec {
		if v != 0 {
			t.Errorf("zero vector changed at %d: %v", i, v)
		}
	}
}

func TestNewEmbedder_Mock(t *testing.T) {
	e, err := NewEmbedder("mock", testLogger())
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if e.Name() != "mock" {
		t.Errorf("Name = %q, want mock", e.Name())
	}
}

func TestNewEmbedder_Unknown(t *testing.T) {
	if _, err := NewEmbedder("cloudbrain", testLogger()); err == nil {
		t.Error("expected error for unknown provider")
	}
}
