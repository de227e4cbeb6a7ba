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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/dredge/internal/contract"
	"github.com/kraklabs/dredge/pkg/storage"
)

// Document is one unit of indexable content: an extracted construct's
// source plus descriptive metadata (name, kind, file, line range).
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PooledConn is the bookkeeping record for one logical store connection.
type PooledConn struct {
	ID         int
	CreatedAt  time.Time
	LastUsedAt time.Time
	Uses       int64
}

// StorePoolOptions configures a StorePool.
type StorePoolOptions struct {
	// MaxConnections caps concurrent store use; zero means
	// DefaultMaxConnections.
	MaxConnections int

	// AcquireTimeout bounds waiting for a free connection; zero means
	// DefaultAcquireTimeout.
	AcquireTimeout time.Duration
}

// StorePoolMetrics is a point-in-time pool summary.
type StorePoolMetrics struct {
	MaxConnections int
	InUse          int
	TotalUses      int64
	AverageHold    time.Duration
	Health         int
}

// StorePool bounds concurrent access to a DocumentStore. Admission runs
// through a Gate sized at MaxConnections, so waiting is FIFO and
// cancellation behaves exactly like everywhere else in the pipeline;
// the pool itself only keeps per-connection bookkeeping and a health
// score on top.
type StorePool struct {
	store  storage.DocumentStore
	gate   *Gate
	logger *slog.Logger

	mu        sync.Mutex
	conns     []*PooledConn
	free      []int
	totalUses int64
	totalHold time.Duration
	slowUses  int64
}

// NewStorePool wraps store with a connection pool of opts.MaxConnections.
func NewStorePool(store storage.DocumentStore, opts StorePoolOptions, logger *slog.Logger) *StorePool {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultMaxConnections
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = DefaultAcquireTimeout
	}

	p := &StorePool{
		store:  store,
		gate:   NewGate(opts.MaxConnections, GateOptions{AcquireTimeout: opts.AcquireTimeout}, logger),
		logger: logger,
	}
	now := time.Now()
	for i := 0; i < opts.MaxConnections; i++ {
		p.conns = append(p.conns, &PooledConn{ID: i + 1, CreatedAt: now})
		p.free = append(p.free, i)
	}
	return p
}

// WithConn runs fn holding one pooled connection. Waiting past the
// acquire timeout fails with ErrAcquireTimeout.
func (p *StorePool) WithConn(ctx context.Context, fn func(storage.DocumentStore) error) error {
	if err := p.gate.Acquire(ctx); err != nil {
		if errors.Is(err, ErrTimeout) {
			return fmt.Errorf("store pool: %w", ErrAcquireTimeout)
		}
		return fmt.Errorf("store pool: %w", err)
	}
	defer p.gate.Release()

	idx := p.checkout()
	start := time.Now()
	err := fn(p.store)
	p.checkin(idx, time.Since(start))
	return err
}

func (p *StorePool) checkout() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return idx
}

func (p *StorePool) checkin(idx int, held time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn := p.conns[idx]
	conn.LastUsedAt = time.Now()
	conn.Uses++
	p.free = append(p.free, idx)
	p.totalUses++
	p.totalHold += held
	if held > time.Second {
		p.slowUses++
	}
}

// Health scores the pool 0-100: full marks for an idle pool with fast
// operations, deductions for saturation and for operations that held a
// connection longer than a second.
func (p *StorePool) Health() int {
	gm := p.gate.Metrics()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthLocked(gm)
}

// Metrics reports a point-in-time pool summary.
func (p *StorePool) Metrics() StorePoolMetrics {
	gm := p.gate.Metrics()

	p.mu.Lock()
	defer p.mu.Unlock()

	m := StorePoolMetrics{
		MaxConnections: gm.Capacity,
		InUse:          gm.Capacity - gm.Available,
		TotalUses:      p.totalUses,
	}
	if p.totalUses > 0 {
		m.AverageHold = p.totalHold / time.Duration(p.totalUses)
	}
	m.Health = p.healthLocked(gm)
	return m
}

func (p *StorePool) healthLocked(gm GateMetrics) int {
	score := 100
	// Saturation: a fully busy pool costs a little, waiting callers cost more.
	if gm.Available == 0 {
		score -= 10
	}
	waitPenalty := gm.Waiting * 15
	if waitPenalty > 45 {
		waitPenalty = 45
	}
	score -= waitPenalty
	// Slow operations: proportional penalty up to 45.
	if p.totalUses > 0 {
		score -= int(45 * p.slowUses / p.totalUses)
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Close disposes the admission gate and closes the underlying store.
func (p *StorePool) Close() error {
	p.gate.Dispose()
	return p.store.Close()
}

// IndexOptions configures one Index call. Zero fields take the package
// defaults.
type IndexOptions struct {
	Strategy             BatchStrategy
	BatchSize            int
	MaxBatchContentBytes int
	MaxRetries           int
	RetryDelay           time.Duration
	InsertTimeout        time.Duration

	// MaxConcurrency bounds how many batches insert in parallel; the
	// store pool throttles again at MaxConnections.
	MaxConcurrency int

	// ContinueOnError records failed batches and keeps going instead of
	// aborting on the first exhausted batch.
	ContinueOnError bool

	Progress ProgressFunc
}

func (o *IndexOptions) normalize() {
	if o.Strategy == "" {
		o.Strategy = BatchStrategyAdaptive
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxBatchContentBytes <= 0 {
		o.MaxBatchContentBytes = DefaultMaxBatchContentBytes
	}
	if limit := contract.SoftLimitBytes(); o.MaxBatchContentBytes > limit {
		o.MaxBatchContentBytes = limit
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.InsertTimeout <= 0 {
		o.InsertTimeout = DefaultInsertTimeout
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
}

// IndexResult is the outcome of one Index call.
type IndexResult struct {
	TotalDocuments int
	Indexed        int
	Skipped        int

	// Invalid counts documents rejected by contract validation before
	// embedding; they never reach the store.
	Invalid int

	Batches       int
	FailedBatches []*BatchError

	Elapsed        time.Duration
	EmbedTime      time.Duration
	InsertTime     time.Duration
	DocsPerSecond  float64
	PoolHealth     int
	FinalBatchSize int
}

// BatchIndexer embeds documents and persists them in batches through a
// StorePool. Batch sizing follows the configured strategy; inserts are
// retried with linear backoff and raced against the insert timeout.
type BatchIndexer struct {
	embedder Embedder
	pool     *StorePool
	logger   *slog.Logger
}

// NewBatchIndexer returns an indexer writing through pool with vectors
// from embedder.
func NewBatchIndexer(embedder Embedder, pool *StorePool, logger *slog.Logger) *BatchIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchIndexer{
		embedder: embedder,
		pool:     pool,
		logger:   logger,
	}
}

// Index embeds and persists docs batch by batch. All documents are
// embedded in one upstream call before anything is written, so an
// embedding failure aborts with a clean store. Duplicate content is
// skipped by the store's hash upsert, so indexing is idempotent. Batches
// insert concurrently up to MaxConcurrency, throttled again by the store
// pool; the first exhausted batch aborts the run unless ContinueOnError
// is set, in which case it is recorded and the run continues.
func (bi *BatchIndexer) Index(ctx context.Context, docs []Document, opts IndexOptions) (*IndexResult, error) {
	opts.normalize()

	result := &IndexResult{TotalDocuments: len(docs)}
	if len(docs) == 0 {
		result.PoolHealth = bi.pool.Health()
		return result, nil
	}

	batcher := NewBatcher(opts.Strategy, opts.BatchSize, opts.MaxBatchContentBytes)
	start := time.Now()

	bi.logger.Info("indexer.start",
		"documents", len(docs),
		"strategy", string(opts.Strategy),
		"batch_size", batcher.CurrentSize(),
	)

	// Documents that would violate the store contract are dropped before
	// any embedding is spent on them.
	kept := make([]Document, 0, len(docs))
	for _, doc := range docs {
		row := storage.Row{DocumentHash: DocumentHash(doc.Content), Content: doc.Content}
		if v := contract.ValidateRow(&row); !v.OK {
			result.Invalid++
			bi.logger.Warn("indexer.document.rejected",
				"reason", v.Message,
				"name", doc.Metadata["qualified_name"],
			)
			continue
		}
		kept = append(kept, doc)
	}
	docs = kept
	if len(docs) == 0 {
		result.Elapsed = time.Since(start)
		result.PoolHealth = bi.pool.Health()
		return result, nil
	}

	embedStart := time.Now()
	texts := make([]string, len(docs))
	for i := range docs {
		texts[i] = docs[i].Content
	}
	vectors, err := bi.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return result, fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return result, fmt.Errorf("embed documents: got %d vectors for %d documents", len(vectors), len(docs))
	}
	result.EmbedTime = time.Since(embedStart)

	rows := make([]storage.Row, len(docs))
	for i := range docs {
		rows[i] = storage.Row{
			DocumentHash: DocumentHash(docs[i].Content),
			Content:      docs[i].Content,
			Metadata:     docs[i].Metadata,
			Embedding:    vectors[i],
		}
	}

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrency)

	remaining := docs
	rowsLeft := rows
	batchIndex := 0
	for len(remaining) > 0 {
		if gctx.Err() != nil {
			break
		}

		var batch []Document
		batch, remaining = batcher.NextBatch(remaining)
		rowBatch := rowsLeft[:len(batch)]
		rowsLeft = rowsLeft[len(batch):]
		idx := batchIndex
		batchIndex++

		g.Go(func() error {
			err := bi.insertBatch(gctx, rowBatch, idx, opts, batcher, result, &mu)
			if err != nil && errors.Is(err, ErrCancelled) {
				return err
			}

			var berr *BatchError
			mu.Lock()
			result.Batches++
			if err != nil {
				berr = &BatchError{BatchIndex: idx, DocumentCount: len(rowBatch), Err: err}
				result.FailedBatches = append(result.FailedBatches, berr)
			}
			done += len(rowBatch)
			d := done
			mu.Unlock()

			if berr != nil {
				bi.logger.Error("indexer.batch.failed",
					"batch", idx,
					"documents", len(rowBatch),
					"err", err,
				)
				if !opts.ContinueOnError {
					return berr
				}
			}

			notify(opts.Progress, ProgressEvent{
				Phase:      PhaseIndexing,
				Percent:    float64(d) / float64(len(docs)) * 100,
				ItemsDone:  d,
				ItemsTotal: len(docs),
			})
			return nil
		})
	}

	gerr := g.Wait()
	if ctx.Err() != nil || errors.Is(gerr, ErrCancelled) {
		return result, fmt.Errorf("index documents: %w", ErrCancelled)
	}
	if gerr != nil {
		result.Elapsed = time.Since(start)
		result.PoolHealth = bi.pool.Health()
		result.FinalBatchSize = batcher.CurrentSize()
		return result, gerr
	}

	result.Elapsed = time.Since(start)
	if result.Elapsed > 0 {
		result.DocsPerSecond = float64(result.Indexed+result.Skipped) / result.Elapsed.Seconds()
	}
	result.PoolHealth = bi.pool.Health()
	result.FinalBatchSize = batcher.CurrentSize()

	recordDocumentsIndexed(result.Indexed, result.Skipped)
	bi.logger.Info("indexer.finish",
		"indexed", result.Indexed,
		"skipped", result.Skipped,
		"batches", result.Batches,
		"failed_batches", len(result.FailedBatches),
		"elapsed_ms", result.Elapsed.Milliseconds(),
	)
	return result, nil
}

// insertBatch inserts one pre-embedded batch with bounded retries.
// Attempt n sleeps n × RetryDelay first; every attempt is raced against
// the insert timeout. Only transient store errors are retried.
func (bi *BatchIndexer) insertBatch(ctx context.Context, rows []storage.Row, batchIndex int, opts IndexOptions, batcher *Batcher, result *IndexResult, mu *sync.Mutex) error {
	totalBytes := 0
	for i := range rows {
		totalBytes += len(rows[i].Content)
	}
	if v := contract.ValidateBatchContent(totalBytes); !v.OK {
		return fmt.Errorf("batch of %d bytes: %s", totalBytes, v.Message)
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			recordInsertRetry()
			bi.logger.Warn("indexer.insert.retry",
				"batch", batchIndex,
				"attempt", attempt,
				"err", lastErr,
			)
			select {
			case <-ctx.Done():
				return ErrCancelled
			case <-time.After(time.Duration(attempt) * opts.RetryDelay):
			}
		}

		insertStart := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, opts.InsertTimeout)
		var upsert *storage.UpsertResult
		err := bi.pool.WithConn(attemptCtx, func(store storage.DocumentStore) error {
			var ierr error
			upsert, ierr = store.UpsertDocuments(attemptCtx, rows)
			return ierr
		})
		cancel()
		latency := time.Since(insertStart)

		if err == nil {
			mu.Lock()
			result.Indexed += upsert.Inserted
			result.Skipped += upsert.Skipped
			result.InsertTime += latency
			mu.Unlock()
			batcher.Observe(latency)
			recordBatchInsert(latency)
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return ErrCancelled
		}
		// The parent context is live, so a deadline or cancellation here
		// means the attempt timed out; that is retryable.
		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCancelled)
		if !timedOut && !storage.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("insert after %d retries: %w", opts.MaxRetries, lastErr)
}
