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
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessorState is the state machine position of a ChunkProcessor.
//
//	Idle -> Processing -> {Completed, CompletedWithErrors, Paused, Cancelled, Error}
//	Paused -> Processing (via Resume)
type ProcessorState string

const (
	StateIdle                ProcessorState = "idle"
	StateProcessing          ProcessorState = "processing"
	StateCompleted           ProcessorState = "completed"
	StateCompletedWithErrors ProcessorState = "completed_with_errors"
	StatePaused              ProcessorState = "paused"
	StateCancelled           ProcessorState = "cancelled"
	StateError               ProcessorState = "error"
)

// Chunk is one bounded slice of the input. StartOffset and EndOffset
// exclude overlap, so chunk ranges partition the input with no gaps;
// the configured overlap is borrowed from the previous chunk's bytes at
// parse time only. Processed marks chunks that will not run again on
// Resume, including chunks whose parse failed with a recorded error.
type Chunk struct {
	ID          string       `json:"id"`
	Index       int          `json:"index"`
	StartOffset int64        `json:"start_offset"`
	EndOffset   int64        `json:"end_offset"`
	Size        int          `json:"size"`
	Processed   bool         `json:"processed"`
	Error       string       `json:"error,omitempty"`
	Result      *ParseResult `json:"parse_result,omitempty"`
}

// ProcessorOptions configures one ProcessContent run.
type ProcessorOptions struct {
	ChunkSize      int  `json:"chunk_size"`
	ChunkOverlap   int  `json:"chunk_overlap"`
	MaxConcurrency int  `json:"max_concurrency"`
	StopOnError    bool `json:"stop_on_error"`

	Progress ProgressFunc `json:"-"`
}

func (o *ProcessorOptions) normalize() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.ChunkOverlap < 0 {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = o.ChunkSize / 4
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
}

// ProcessingState is a serializable snapshot of a run: enough to
// reconstitute a processor in another process and resume it. Owned by
// exactly one processor; external readers only ever see copies.
type ProcessingState struct {
	State   ProcessorState   `json:"state"`
	Content string           `json:"content"`
	Options ProcessorOptions `json:"options"`
	Chunks  []Chunk          `json:"chunks"`
	Errors  []string         `json:"errors,omitempty"`
}

// ProcessMetrics summarizes one run.
type ProcessMetrics struct {
	TotalChunkTime   time.Duration
	AverageChunkTime time.Duration
	ChunksPerSecond  float64

	// ParallelEfficiency is sequential-time / wall-time, normalized by
	// MaxConcurrency; 1.0 means every permit was busy the whole run.
	ParallelEfficiency float64
	PeakConcurrency    int

	// WaitTime is the cumulative time the dispatcher spent waiting for
	// a permit.
	WaitTime time.Duration
}

// ProcessResult is the outcome of ProcessContent or Resume.
type ProcessResult struct {
	State           ProcessorState
	Parse           *ParseResult
	TotalChunks     int
	ProcessedChunks int
	Coverage        float64
	Errors          []*ChunkError
	Metrics         ProcessMetrics
}

// ChunkProcessor splits dump content into overlapping chunks, parses
// them in parallel under the shared Gate, and merges the per-chunk
// construct sets with name deduplication. Runs can be paused, snapshot,
// and resumed; only chunks not yet marked processed run again.
type ChunkProcessor struct {
	pool   *ParserPool
	gate   *Gate
	logger *slog.Logger

	mu      sync.Mutex
	state   ProcessorState
	content string
	opts    ProcessorOptions
	chunks  []*Chunk
	errs    []*ChunkError

	paused  atomic.Bool
	stopped atomic.Bool
	runDone chan struct{}

	inFlight    int64
	peakFlight  int64
	chunkNanos  int64
	chunksTimed int64
}

// NewChunkProcessor returns an idle processor. The gate bounds chunk
// parallelism and is typically shared with the rest of the pipeline; a
// nil gate gets a private one sized at DefaultMaxConcurrency.
func NewChunkProcessor(pool *ParserPool, gate *Gate, logger *slog.Logger) *ChunkProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if gate == nil {
		gate = NewGate(DefaultMaxConcurrency, GateOptions{}, logger)
	}
	return &ChunkProcessor{
		pool:   pool,
		gate:   gate,
		logger: logger,
		state:  StateIdle,
	}
}

// RestoreState reconstitutes a processor from a snapshot, typically one
// loaded from a checkpoint. The returned processor is Paused when any
// chunk is still unprocessed, otherwise it keeps the snapshot state.
func RestoreState(state *ProcessingState, pool *ParserPool, gate *Gate, logger *slog.Logger) *ChunkProcessor {
	p := NewChunkProcessor(pool, gate, logger)
	p.content = state.Content
	p.opts = state.Options
	p.opts.normalize()
	p.state = state.State
	p.chunks = make([]*Chunk, len(state.Chunks))
	for i := range state.Chunks {
		c := state.Chunks[i]
		p.chunks[i] = &c
		if c.Error != "" {
			p.errs = append(p.errs, &ChunkError{
				ChunkIndex: c.Index,
				Offset:     c.StartOffset,
				Err:        fmt.Errorf("%s", c.Error),
			})
		}
	}
	return p
}

// State reports the processor's current state machine position.
func (p *ChunkProcessor) State() ProcessorState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Snapshot returns a serializable copy of the resumable state. Safe to
// call at any time; the copy never aliases processor-owned slices.
func (p *ChunkProcessor) Snapshot() *ProcessingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *ChunkProcessor) snapshotLocked() *ProcessingState {
	s := &ProcessingState{
		State:   p.state,
		Content: p.content,
		Options: p.opts,
		Chunks:  make([]Chunk, len(p.chunks)),
	}
	for i, c := range p.chunks {
		s.Chunks[i] = *c
	}
	for _, e := range p.errs {
		s.Errors = append(s.Errors, e.Error())
	}
	return s
}

// ProcessContent runs the full chunk pipeline over content. It may only
// be called on an idle (or finished) processor; use Resume to continue
// a paused run.
func (p *ChunkProcessor) ProcessContent(ctx context.Context, content string, opts ProcessorOptions) (*ProcessResult, error) {
	opts.normalize()

	p.mu.Lock()
	if p.state == StateProcessing || p.state == StatePaused {
		p.mu.Unlock()
		return nil, fmt.Errorf("process content: run already active in state %s", p.state)
	}
	p.content = content
	p.opts = opts
	p.chunks = buildChunks(content, opts.ChunkSize, opts.ChunkOverlap)
	p.errs = nil
	p.chunkNanos = 0
	p.chunksTimed = 0
	p.peakFlight = 0
	p.mu.Unlock()

	p.logger.Info("processor.start",
		"content_bytes", len(content),
		"chunks", len(p.chunks),
		"chunk_size", opts.ChunkSize,
		"overlap", opts.ChunkOverlap,
		"max_concurrency", opts.MaxConcurrency,
	)
	return p.run(ctx)
}

// Resume continues a paused run, dispatching only chunks not yet marked
// processed. With nothing left it reports Completed immediately.
func (p *ChunkProcessor) Resume(ctx context.Context) (*ProcessResult, error) {
	p.mu.Lock()
	if p.state != StatePaused {
		p.mu.Unlock()
		return nil, fmt.Errorf("resume: processor is %s, not paused", p.state)
	}
	pending := 0
	for _, c := range p.chunks {
		if !c.Processed {
			pending++
		}
	}
	p.mu.Unlock()

	p.logger.Info("processor.resume", "pending_chunks", pending)
	if pending == 0 {
		p.mu.Lock()
		p.state = StateCompleted
		p.mu.Unlock()
		return p.buildResult(0, 0), nil
	}
	return p.run(ctx)
}

// Pause asks the active run to stop dispatching, waits for in-flight
// chunks to finish, and returns the resumable snapshot. Calling Pause
// with no run active returns the current snapshot unchanged.
func (p *ChunkProcessor) Pause() (*ProcessingState, error) {
	p.mu.Lock()
	if p.state != StateProcessing {
		s := p.snapshotLocked()
		p.mu.Unlock()
		return s, nil
	}
	done := p.runDone
	p.mu.Unlock()

	p.paused.Store(true)
	<-done
	return p.Snapshot(), nil
}

func (p *ChunkProcessor) run(ctx context.Context) (*ProcessResult, error) {
	done := make(chan struct{})
	p.mu.Lock()
	p.state = StateProcessing
	p.runDone = done
	pending := make([]*Chunk, 0, len(p.chunks))
	for _, c := range p.chunks {
		if !c.Processed {
			pending = append(pending, c)
		}
	}
	total := len(p.chunks)
	p.mu.Unlock()

	p.paused.Store(false)
	p.stopped.Store(false)
	defer close(done)

	var (
		wg        sync.WaitGroup
		waitNanos int64
		cancelled bool
	)
	wallStart := time.Now()

	for _, chunk := range pending {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if p.paused.Load() || p.stopped.Load() {
			break
		}

		acquireStart := time.Now()
		if err := p.gate.Acquire(ctx); err != nil {
			if errors.Is(err, ErrCancelled) {
				cancelled = true
				break
			}
			wg.Wait()
			p.setState(StateError)
			return nil, fmt.Errorf("dispatch chunk %d: %w", chunk.Index, err)
		}
		waitNanos += int64(time.Since(acquireStart))

		// Pause and cancel are rechecked between acquire and dispatch.
		if p.paused.Load() || p.stopped.Load() || ctx.Err() != nil {
			p.gate.Release()
			cancelled = ctx.Err() != nil
			break
		}

		wg.Add(1)
		go func(c *Chunk) {
			defer wg.Done()
			defer p.gate.Release()
			cur := atomic.AddInt64(&p.inFlight, 1)
			for {
				peak := atomic.LoadInt64(&p.peakFlight)
				if cur <= peak || atomic.CompareAndSwapInt64(&p.peakFlight, peak, cur) {
					break
				}
			}
			p.processChunk(c)
			atomic.AddInt64(&p.inFlight, -1)

			p.mu.Lock()
			processed := 0
			for _, ch := range p.chunks {
				if ch.Processed {
					processed++
				}
			}
			p.mu.Unlock()
			notify(p.opts.Progress, ProgressEvent{
				Phase:      PhaseChunking,
				Percent:    float64(processed) / float64(total) * 100,
				ItemsDone:  processed,
				ItemsTotal: total,
			})
		}(chunk)
	}

	wg.Wait()
	wall := time.Since(wallStart)

	p.mu.Lock()
	switch {
	case cancelled:
		p.state = StateCancelled
	case p.paused.Load():
		p.state = StatePaused
	case p.stopped.Load():
		p.state = StateError
	case len(p.errs) > 0:
		p.state = StateCompletedWithErrors
	default:
		p.state = StateCompleted
	}
	state := p.state
	var firstErr *ChunkError
	if len(p.errs) > 0 {
		firstErr = p.errs[0]
	}
	p.mu.Unlock()

	p.logger.Info("processor.finish",
		"state", string(state),
		"wall_ms", wall.Milliseconds(),
		"errors", len(p.errs),
	)

	if cancelled {
		return nil, fmt.Errorf("process content: %w", ErrCancelled)
	}
	if state == StateError && firstErr != nil {
		return nil, firstErr
	}
	return p.buildResult(wall, time.Duration(waitNanos)), nil
}

// processChunk parses one chunk with a pooled parser. Failures are
// recorded on the chunk; the chunk is still marked processed so Resume
// never re-runs it, matching the recorded-not-retried error contract.
func (p *ChunkProcessor) processChunk(c *Chunk) {
	start := time.Now()

	slice := p.chunkSlice(c)
	parser, err := p.pool.Acquire()
	var result *ParseResult
	if err == nil {
		parser.LoadContent(slice)
		result, err = parser.ExtractAllConstructs()
		p.pool.Release(parser)
	}

	elapsed := time.Since(start)
	p.mu.Lock()
	defer p.mu.Unlock()
	c.Processed = true
	p.chunkNanos += int64(elapsed)
	p.chunksTimed++
	if err != nil {
		cerr := &ChunkError{ChunkIndex: c.Index, Offset: c.StartOffset, Err: err}
		c.Error = err.Error()
		p.errs = append(p.errs, cerr)
		recordChunkError()
		p.logger.Warn("processor.chunk.error", "chunk", c.Index, "offset", c.StartOffset, "err", err)
		if p.opts.StopOnError {
			p.stopped.Store(true)
		}
		return
	}
	c.Result = result
	recordChunkProcessed(elapsed)
}

// chunkSlice returns the chunk's bytes plus the configured overlap
// borrowed from the previous chunk for parsing context.
func (p *ChunkProcessor) chunkSlice(c *Chunk) string {
	start := c.StartOffset - int64(p.opts.ChunkOverlap)
	if start < 0 {
		start = 0
	}
	return p.content[start:c.EndOffset]
}

func (p *ChunkProcessor) buildResult(wall, waitTime time.Duration) *ProcessResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	processed := 0
	for _, c := range p.chunks {
		if c.Processed {
			processed++
		}
	}

	res := &ProcessResult{
		State:           p.state,
		Parse:           combineChunkResults(p.chunks),
		TotalChunks:     len(p.chunks),
		ProcessedChunks: processed,
		Errors:          append([]*ChunkError(nil), p.errs...),
	}
	if len(p.chunks) > 0 {
		res.Coverage = float64(processed) / float64(len(p.chunks))
	}

	m := ProcessMetrics{
		TotalChunkTime:  time.Duration(p.chunkNanos),
		PeakConcurrency: int(atomic.LoadInt64(&p.peakFlight)),
		WaitTime:        waitTime,
	}
	if p.chunksTimed > 0 {
		m.AverageChunkTime = time.Duration(p.chunkNanos / p.chunksTimed)
	}
	if wall > 0 {
		m.ChunksPerSecond = float64(p.chunksTimed) / wall.Seconds()
		m.ParallelEfficiency = float64(p.chunkNanos) / float64(wall) / float64(p.opts.MaxConcurrency)
		if m.ParallelEfficiency > 1 {
			m.ParallelEfficiency = 1
		}
	}
	res.Metrics = m
	return res
}

func (p *ChunkProcessor) setState(s ProcessorState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// buildChunks cuts content into sequential chunks of roughly chunkSize
// bytes, snapping each cut to a natural boundary. Offsets exclude
// overlap so the ranges partition the input exactly; a cut that fails
// to advance falls back to the raw offset to rule out zero-length
// chunks.
func buildChunks(content string, chunkSize, overlap int) []*Chunk {
	if content == "" {
		return nil
	}
	var chunks []*Chunk
	pos := 0
	for pos < len(content) {
		end := pos + chunkSize
		if end >= len(content) {
			end = len(content)
		} else {
			end = snapBoundary(content, end, chunkSize)
			if end <= pos {
				end = pos + chunkSize
				if end > len(content) {
					end = len(content)
				}
			}
		}
		idx := len(chunks)
		chunks = append(chunks, &Chunk{
			ID:          fmt.Sprintf("chunk-%05d", idx),
			Index:       idx,
			StartOffset: int64(pos),
			EndOffset:   int64(end),
			Size:        end - pos,
		})
		pos = end
	}
	_ = overlap // overlap is applied at parse time, not to the ranges
	return chunks
}

// snapBoundary searches a window before target for a natural break:
// a block end ("}" at end of line) or a blank line first, any line end
// second, the raw offset last.
func snapBoundary(content string, target, chunkSize int) int {
	window := chunkSize / 4
	if window > 4096 {
		window = 4096
	}
	low := target - window
	if low < 0 {
		low = 0
	}
	region := content[low:target]

	best := -1
	if i := strings.LastIndex(region, "}\n"); i >= 0 {
		best = i + 2
	}
	if i := strings.LastIndex(region, "\n\n"); i >= 0 && i+2 > best {
		best = i + 2
	}
	if best < 0 {
		if i := strings.LastIndex(region, "\n"); i >= 0 {
			best = i + 1
		}
	}
	if best <= 0 {
		return target
	}
	return low + best
}

// combineChunkResults merges per-chunk construct sets in chunk order,
// deduplicating by qualified name so a construct straddling an overlap
// appears exactly once.
func combineChunkResults(chunks []*Chunk) *ParseResult {
	merged := &ParseResult{CountsByKind: make(map[ConstructKind]int)}
	seen := make(map[string]struct{})

	ordered := append([]*Chunk(nil), chunks...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	for _, c := range ordered {
		if c.Result == nil {
			continue
		}
		merged.SyntaxErrors += c.Result.SyntaxErrors
		for _, construct := range c.Result.Constructs {
			key := construct.QualifiedName()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged.Constructs = append(merged.Constructs, construct)
			merged.CountsByKind[construct.Kind]++
		}
	}
	return merged
}
