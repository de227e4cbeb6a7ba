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

// Package ingestion implements the bounded-concurrency pipeline that turns
// large decompiled-source dump files into searchable documents.
//
// A dump file is a multi-hundred-megabyte (sometimes multi-gigabyte) textual
// export of decompiled program metadata: namespaces, classes, interfaces,
// enums, structs and delegates, usually produced by an IL2CPP-style dumper.
// The grammar of those files is simple; what is hard is making ingestion
// scale. This package is built around that problem.
//
// # Pipeline Overview
//
// Ingestion runs in five stages:
//
//  1. Discovery: find dump files under a root using glob patterns
//  2. Reading: stream each file through a fixed-size buffer with a soft
//     memory ceiling and progress reporting
//  3. Chunking: split content into overlapping chunks snapped to natural
//     boundaries, parse them in parallel, merge and deduplicate constructs
//  4. Embedding: embed every extracted construct in one upstream call
//  5. Indexing: persist documents in adaptively-sized batches over a pool
//     of store connections, with idempotent upserts and bounded retries
//
// # Key Components
//
// Gate is the single concurrency primitive shared by the pipeline. It is a
// counting permit gate with a strict FIFO waiter queue:
//
//	gate := ingestion.NewGate(4, ingestion.GateOptions{}, logger)
//	if err := gate.Acquire(ctx); err != nil { ... }
//	defer gate.Release()
//
// Chunk scheduling and the store connection pool are both bounded by Gate
// instances, so fairness and cancellation behave identically everywhere.
//
// ParserPool is a soft reuse cache for parser instances. Acquire never
// blocks and is never capped; MaxPoolSize only limits how many idle parsers
// are retained:
//
//	pool := ingestion.NewParserPool(factory, 8, logger)
//	p, err := pool.Acquire()
//	defer pool.Release(p)
//
// StreamingReader reads one dump file incrementally, samples memory, and
// reports progress with an ETA:
//
//	reader := ingestion.NewStreamingReader(pool, logger)
//	res, err := reader.ParseFile(ctx, "dump.cs", ingestion.ReaderOptions{})
//
// ChunkProcessor is a resumable state machine over overlapping chunks:
//
//	proc := ingestion.NewChunkProcessor(pool, gate, logger)
//	res, err := proc.ProcessContent(ctx, content, opts)
//	state, err := proc.Pause()    // serializable snapshot
//	res, err = proc.Resume(ctx)   // re-runs only unprocessed chunks
//
// BatchIndexer embeds documents and persists them in batches:
//
//	indexer := ingestion.NewBatchIndexer(embedder, pool, logger)
//	res, err := indexer.Index(ctx, docs, ingestion.IndexOptions{})
//
// Pipeline ties the stages together; the dredge CLI is a thin shell over it.
//
// # Configuration
//
// DefaultConfig returns the engine defaults. Everything is overridable via
// .dredge/project.yaml and a small set of DREDGE_* environment variables.
//
// # Metrics
//
// Per-run statistics are returned on each result struct. Prometheus metrics
// are also exported for long-running ingestion jobs.
package ingestion
