// Copyright 2026 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"sync"
	"time"
)

// BatchStrategy selects how the indexer cuts documents into insert batches.
type BatchStrategy string

const (
	// BatchStrategyFixed cuts batches of exactly BatchSize documents
	// (the last batch takes the remainder).
	BatchStrategyFixed BatchStrategy = "fixed"

	// BatchStrategyContentAware cuts on a byte budget: a batch closes
	// when the next document would push its content past
	// MaxBatchContentBytes. Every batch holds at least one document.
	BatchStrategyContentAware BatchStrategy = "content_aware"

	// BatchStrategyAdaptive starts near the fixed size and resizes on
	// observed insert latency: fast inserts grow the batch, slow ones
	// shrink it, always within [adaptiveMinBatch, adaptiveMaxBatch].
	BatchStrategyAdaptive BatchStrategy = "adaptive"
)

const (
	adaptiveStartBatch = 50
	adaptiveMinBatch   = 10
	adaptiveMaxBatch   = 200

	// Latency thresholds for resizing, and the rolling window width.
	adaptiveFastInsert = time.Second
	adaptiveSlowInsert = 5 * time.Second
	adaptiveWindow     = 5
)

// Batcher cuts a document stream into insert batches. Fixed and
// content-aware cuts are pure functions of the input; the adaptive
// strategy is stateful, so batches are pulled one at a time with
// NextBatch and insert latencies fed back through Observe.
type Batcher struct {
	strategy BatchStrategy
	size     int
	maxBytes int

	mu        sync.Mutex
	adaptive  int
	latencies []time.Duration
}

// NewBatcher returns a batcher for the given strategy. size is the
// fixed batch size, maxBytes the content-aware byte ceiling; zero
// values take the package defaults.
func NewBatcher(strategy BatchStrategy, size, maxBytes int) *Batcher {
	if strategy == "" {
		strategy = BatchStrategyAdaptive
	}
	if size <= 0 {
		size = DefaultBatchSize
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBatchContentBytes
	}
	return &Batcher{
		strategy: strategy,
		size:     size,
		maxBytes: maxBytes,
		adaptive: adaptiveStartBatch,
	}
}

// NextBatch cuts the next batch off the front of docs and returns it with
// the remainder. An empty input yields a nil batch.
func (b *Batcher) NextBatch(docs []Document) ([]Document, []Document) {
	if len(docs) == 0 {
		return nil, nil
	}

	n := 0
	switch b.strategy {
	case BatchStrategyContentAware:
		bytes := 0
		for _, d := range docs {
			if n > 0 && bytes+len(d.Content) > b.maxBytes {
				break
			}
			bytes += len(d.Content)
			n++
		}
	case BatchStrategyAdaptive:
		b.mu.Lock()
		n = b.adaptive
		b.mu.Unlock()
	default:
		n = b.size
	}

	if n > len(docs) {
		n = len(docs)
	}
	return docs[:n], docs[n:]
}

// Observe feeds one insert latency back into the adaptive sizer. Other
// strategies ignore it.
func (b *Batcher) Observe(latency time.Duration) {
	if b.strategy != BatchStrategyAdaptive {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latencies = append(b.latencies, latency)
	if len(b.latencies) > adaptiveWindow {
		b.latencies = b.latencies[len(b.latencies)-adaptiveWindow:]
	}

	var total time.Duration
	for _, l := range b.latencies {
		total += l
	}
	avg := total / time.Duration(len(b.latencies))

	switch {
	case avg < adaptiveFastInsert:
		b.adaptive = b.adaptive * 3 / 2
	case avg > adaptiveSlowInsert:
		b.adaptive = b.adaptive * 7 / 10
	}
	if b.adaptive < adaptiveMinBatch {
		b.adaptive = adaptiveMinBatch
	}
	if b.adaptive > adaptiveMaxBatch {
		b.adaptive = adaptiveMaxBatch
	}
}

// CurrentSize reports the size the next batch would get.
func (b *Batcher) CurrentSize() int {
	if b.strategy == BatchStrategyAdaptive {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.adaptive
	}
	return b.size
}
