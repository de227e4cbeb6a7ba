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
	"strconv"
	"time"

	"github.com/kraklabs/dredge/pkg/storage"
)

// Pipeline orchestrates a full ingest: discover dump files, stream each one
// into memory, chunk-parse it under the shared concurrency gate, and index
// the extracted constructs into the document store.
type Pipeline struct {
	cfg       Config
	logger    *slog.Logger
	gate      *Gate
	pool      *ParserPool
	reader    *StreamingReader
	store     storage.DocumentStore
	storePool *StorePool
	indexer   *BatchIndexer
	discovery *Discovery
}

// RunOptions tunes a single Run call.
type RunOptions struct {
	// Resume picks up a previous interrupted ingest of the same root:
	// files already fully indexed are skipped and a paused processor
	// snapshot, if one was saved, is resumed instead of restarted.
	Resume bool

	// CheckpointDir overrides where checkpoints are written.
	// Empty uses DefaultCheckpointDir.
	CheckpointDir string

	// Progress receives events from every phase.
	Progress ProgressFunc
}

// IngestResult summarizes one ingest run.
type IngestResult struct {
	RootPath            string
	FilesTotal          int
	FilesIngested       int
	FilesFailed         int
	ConstructsExtracted int
	SyntaxErrors        int
	DocumentsIndexed    int
	DocumentsSkipped    int
	FailedBatches       int
	SkipReasons         map[string]int
	Resumed             bool
	CheckpointSaved     bool
	Errors              []string

	DiscoverTime time.Duration
	ReadTime     time.Duration
	ProcessTime  time.Duration
	IndexTime    time.Duration
	Elapsed      time.Duration
}

// NewPipeline wires the full ingest pipeline. The store stays owned by the
// caller until Close, which releases it together with the parser pool and
// the gate. The embedder is used as given; compose retries and caching
// around it before passing it in.
func NewPipeline(cfg *Config, store storage.DocumentStore, embedder Embedder, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		return nil, fmt.Errorf("pipeline needs a document store")
	}
	if embedder == nil {
		return nil, fmt.Errorf("pipeline needs an embedder")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()

	mode := cfg.ParserMode
	if _, err := NewParserForMode(mode, logger); err != nil {
		return nil, fmt.Errorf("parser mode: %w", err)
	}
	logger.Info("parser.mode", "mode", string(mode))

	gate := NewGate(cfg.MaxConcurrency, GateOptions{}, logger)
	pool := NewParserPool(func() (Parser, error) {
		return NewParserForMode(mode, logger)
	}, cfg.MaxPoolSize, logger)

	storePool := NewStorePool(store, StorePoolOptions{
		MaxConnections: cfg.MaxConnections,
		AcquireTimeout: cfg.AcquireTimeout,
	}, logger)

	return &Pipeline{
		cfg:       *cfg,
		logger:    logger,
		gate:      gate,
		pool:      pool,
		reader:    NewStreamingReader(pool, logger),
		store:     store,
		storePool: storePool,
		indexer:   NewBatchIndexer(embedder, storePool, logger),
		discovery: NewDiscovery(logger),
	}, nil
}

// Close releases the pipeline's resources, including the document store.
func (p *Pipeline) Close() error {
	p.pool.Dispose()
	p.gate.Dispose()
	return p.storePool.Close()
}

// Run ingests every dump file under rootPath. Cancellation is graceful: the
// current state is checkpointed and ErrCancelled is returned together with
// the partial result, so a later Run with Resume can continue.
func (p *Pipeline) Run(ctx context.Context, rootPath string, opts RunOptions) (*IngestResult, error) {
	start := time.Now()
	res := &IngestResult{SkipReasons: make(map[string]int)}

	discoverStart := time.Now()
	disc, err := p.discovery.Discover(rootPath, DiscoveryOptions{
		IncludePatterns:  p.cfg.IncludePatterns,
		ExcludePatterns:  p.cfg.ExcludePatterns,
		MaxFileSizeBytes: p.cfg.MaxFileSizeBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("discover dumps: %w", err)
	}
	res.DiscoverTime = time.Since(discoverStart)
	res.RootPath = disc.RootPath
	res.FilesTotal = disc.FileCount
	res.SkipReasons = disc.SkipReasons

	sort.Slice(disc.Files, func(i, j int) bool {
		return disc.Files[i].Path < disc.Files[j].Path
	})

	checkpoints := NewCheckpointManager(opts.CheckpointDir)
	alreadyDone := make(map[string]bool)
	var resumeFile string
	var resumeState *ProcessingState
	if opts.Resume {
		cp, err := checkpoints.LoadCheckpoint(disc.RootPath)
		if err != nil {
			p.logger.Warn("pipeline.checkpoint.load_failed", "error", err)
		} else if cp != nil {
			for _, f := range cp.FilesDone {
				alreadyDone[f] = true
			}
			resumeFile = cp.FilePath
			resumeState = cp.Processing
			res.Resumed = true
			p.logger.Info("pipeline.resume",
				"root", disc.RootPath,
				"files_done", len(cp.FilesDone),
				"mid_flight", resumeFile != "",
			)
		}
	}

	p.logger.Info("pipeline.start",
		"root", disc.RootPath,
		"files", disc.FileCount,
		"resumed", res.Resumed,
	)

	run := &storage.IngestRun{
		RootPath:   disc.RootPath,
		FilesTotal: disc.FileCount,
		StartedAt:  start.UTC(),
	}

	filesDone := make([]string, 0, len(disc.Files))
	for _, file := range disc.Files {
		if alreadyDone[file.FullPath] {
			res.FilesIngested++
			filesDone = append(filesDone, file.FullPath)
			continue
		}

		var snapshot *ProcessingState
		if file.FullPath == resumeFile {
			snapshot = resumeState
		}

		paused, err := p.ingestFile(ctx, file, snapshot, res, opts.Progress)
		if err != nil {
			if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
				// A cancelled run is a pause as far as resumption goes.
				if paused != nil {
					paused.State = StatePaused
				}
				cp := &Checkpoint{
					RootPath:         disc.RootPath,
					FilePath:         file.FullPath,
					FilesDone:        filesDone,
					DocumentsIndexed: res.DocumentsIndexed,
					DocumentsSkipped: res.DocumentsSkipped,
					Processing:       paused,
				}
				if saveErr := checkpoints.SaveCheckpoint(cp); saveErr != nil {
					p.logger.Warn("pipeline.checkpoint.save_failed", "error", saveErr)
				} else {
					res.CheckpointSaved = true
				}
				p.finishRun(run, res)
				res.Elapsed = time.Since(start)
				p.logger.Info("pipeline.cancelled",
					"file", file.Path,
					"checkpoint_saved", res.CheckpointSaved,
				)
				return res, ErrCancelled
			}

			res.FilesFailed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", file.Path, err))
			p.logger.Warn("pipeline.file.failed", "path", file.Path, "error", err)
			continue
		}

		res.FilesIngested++
		filesDone = append(filesDone, file.FullPath)
	}

	if err := checkpoints.ClearCheckpoint(disc.RootPath); err != nil {
		p.logger.Warn("pipeline.checkpoint.clear_failed", "error", err)
	}

	p.finishRun(run, res)
	res.Elapsed = time.Since(start)

	p.logger.Info("pipeline.finish",
		"files_ingested", res.FilesIngested,
		"files_failed", res.FilesFailed,
		"constructs", res.ConstructsExtracted,
		"indexed", res.DocumentsIndexed,
		"skipped", res.DocumentsSkipped,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, nil
}

// ingestFile runs one file through read, chunk-parse and index. On
// cancellation during chunk processing it returns the paused snapshot so
// Run can checkpoint it.
func (p *Pipeline) ingestFile(ctx context.Context, file DumpFile, resume *ProcessingState, res *IngestResult, progress ProgressFunc) (*ProcessingState, error) {
	var proc *ChunkProcessor
	var pres *ProcessResult
	var err error
	processStart := time.Now()
	if resume != nil {
		proc = RestoreState(resume, p.pool, p.gate, p.logger)
		pres, err = proc.Resume(ctx)
		res.ProcessTime += time.Since(processStart)
	} else {
		readStart := time.Now()
		rr, readErr := p.reader.ReadFile(ctx, file.FullPath, ReaderOptions{
			BufferSize:         p.cfg.BufferSize,
			MemoryCeilingBytes: p.cfg.MemoryCeilingBytes,
			SampleMemory:       p.cfg.SampleMemory,
			Progress:           progress,
		})
		res.ReadTime += time.Since(readStart)
		if readErr != nil {
			return nil, fmt.Errorf("read dump: %w", readErr)
		}

		proc = NewChunkProcessor(p.pool, p.gate, p.logger)
		processStart = time.Now()
		pres, err = proc.ProcessContent(ctx, rr.Content, ProcessorOptions{
			ChunkSize:      p.cfg.ChunkSize,
			ChunkOverlap:   p.cfg.ChunkOverlap,
			MaxConcurrency: p.cfg.MaxConcurrency,
			StopOnError:    p.cfg.StopOnError,
			Progress:       progress,
		})
		res.ProcessTime += time.Since(processStart)
	}
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return proc.Snapshot(), err
		}
		return nil, fmt.Errorf("process dump: %w", err)
	}

	for _, ce := range pres.Errors {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", file.Path, ce))
	}
	if pres.Parse != nil {
		res.ConstructsExtracted += len(pres.Parse.Constructs)
		res.SyntaxErrors += pres.Parse.SyntaxErrors
	}

	docs := documentsForFile(file, pres.Parse)
	if len(docs) == 0 {
		return nil, nil
	}

	indexStart := time.Now()
	ir, err := p.indexer.Index(ctx, docs, IndexOptions{
		Strategy:             p.cfg.BatchStrategy,
		BatchSize:            p.cfg.BatchSize,
		MaxBatchContentBytes: p.cfg.MaxBatchContentBytes,
		MaxRetries:           p.cfg.MaxRetries,
		RetryDelay:           p.cfg.RetryDelay,
		InsertTimeout:        p.cfg.InsertTimeout,
		MaxConcurrency:       p.cfg.MaxConcurrency,
		ContinueOnError:      p.cfg.ContinueOnError,
		Progress:             progress,
	})
	res.IndexTime += time.Since(indexStart)
	if ir != nil {
		res.DocumentsIndexed += ir.Indexed
		res.DocumentsSkipped += ir.Skipped + ir.Invalid
		res.FailedBatches += len(ir.FailedBatches)
	}
	if err != nil {
		// Cancellation mid-index needs no processor snapshot: the upsert
		// is idempotent, so resuming re-indexes this file cheaply.
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		return nil, fmt.Errorf("index documents: %w", err)
	}
	return nil, nil
}

// documentsForFile turns extracted constructs into indexable documents.
func documentsForFile(file DumpFile, parse *ParseResult) []Document {
	if parse == nil {
		return nil
	}
	fileID := GenerateFileID(file.Path)
	docs := make([]Document, 0, len(parse.Constructs))
	for _, c := range parse.Constructs {
		docs = append(docs, Document{
			Content: c.Source,
			Metadata: map[string]string{
				"id":             GenerateConstructID(file.Path, c.QualifiedName(), c.Kind, c.StartLine, c.EndLine),
				"file_id":        fileID,
				"file":           file.Path,
				"name":           c.Name,
				"qualified_name": c.QualifiedName(),
				"kind":           string(c.Kind),
				"namespace":      c.Namespace,
				"start_line":     strconv.Itoa(c.StartLine),
				"end_line":       strconv.Itoa(c.EndLine),
			},
		})
	}
	return docs
}

// finishRun stamps and stores the run record. Bookkeeping failures are
// logged, never fatal: the index data itself is already committed.
func (p *Pipeline) finishRun(run *storage.IngestRun, res *IngestResult) {
	run.FilesIngested = res.FilesIngested
	run.DocumentsIndexed = res.DocumentsIndexed
	run.DocumentsSkipped = res.DocumentsSkipped
	run.Errors = len(res.Errors)
	run.FinishedAt = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.RecordRun(ctx, run); err != nil {
		p.logger.Warn("pipeline.run_record.failed", "error", err)
	}
}
