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
	"errors"
	"fmt"
)

// Sentinel errors for the concurrency primitives. Callers match them with
// errors.Is; every one of them may arrive wrapped with operation context.
var (
	// ErrTimeout is returned by Gate.Acquire when the configured acquire
	// timeout elapses before a permit becomes available.
	ErrTimeout = errors.New("acquire timed out waiting for permit")

	// ErrCancelled is returned when the caller's context is cancelled
	// while waiting for a permit or while an operation is in flight.
	ErrCancelled = errors.New("operation cancelled")

	// ErrDisposed is returned when a primitive is used after Dispose.
	// Waiters queued at dispose time all fail with this error.
	ErrDisposed = errors.New("primitive disposed")

	// ErrAcquireTimeout is returned by the store connection pool when no
	// connection becomes available within the acquire timeout.
	ErrAcquireTimeout = errors.New("connection acquire timed out")
)

// ChunkError records a parse failure for a single chunk. Chunk failures are
// collected, not fatal: with ContinueOnError the processor records the error
// and keeps going, and the run finishes as CompletedWithErrors.
type ChunkError struct {
	ChunkIndex int
	Offset     int64
	Err        error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d (offset %d): %v", e.ChunkIndex, e.Offset, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// BatchError records an insert failure for a single batch after retries were
// exhausted. With ContinueOnError the indexer records it and moves on.
type BatchError struct {
	BatchIndex    int
	DocumentCount int
	Err           error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d documents): %v", e.BatchIndex, e.DocumentCount, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// EmbeddingError wraps a failure from the embedding provider. Embedding runs
// once for the whole document set before any batch is written, so this error
// is always fatal to the indexing run.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (provider %s): %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
