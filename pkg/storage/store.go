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

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity doesn't exist.
var ErrNotFound = errors.New("not found")

// Row is one document as persisted: extracted construct source, its
// metadata, and an optional embedding vector. DocumentHash is the
// idempotency key; inserting a row whose hash already exists is a no-op.
type Row struct {
	ID           int64
	DocumentHash string
	Content      string
	Metadata     map[string]string
	Embedding    []float32
	CreatedAt    time.Time
}

// UpsertResult reports how an upsert batch landed.
type UpsertResult struct {
	Inserted int
	Skipped  int
}

// SearchResult is one similarity hit.
type SearchResult struct {
	Row        Row
	Similarity float64
}

// IngestRun records one pipeline run for the status command.
type IngestRun struct {
	ID               int64
	RootPath         string
	FilesTotal       int
	FilesIngested    int
	DocumentsIndexed int
	DocumentsSkipped int
	Errors           int
	StartedAt        time.Time
	FinishedAt       time.Time
}

// DocumentStore is the persistence contract the indexer writes through.
// All implementations must make UpsertDocuments idempotent on
// DocumentHash.
type DocumentStore interface {
	// UpsertDocuments inserts rows, silently skipping any whose
	// document hash is already present.
	UpsertDocuments(ctx context.Context, rows []Row) (*UpsertResult, error)

	// GetByHash fetches one row by document hash, ErrNotFound if absent.
	GetByHash(ctx context.Context, hash string) (*Row, error)

	// CountDocuments reports how many documents the store holds.
	CountDocuments(ctx context.Context) (int64, error)

	// SearchByEmbedding returns up to limit rows ranked by cosine
	// similarity to the query vector.
	SearchByEmbedding(ctx context.Context, query []float32, limit int) ([]SearchResult, error)

	// RecordRun persists one ingest run summary.
	RecordRun(ctx context.Context, run *IngestRun) error

	// LastRun returns the most recent ingest run, ErrNotFound when the
	// store has never seen one.
	LastRun(ctx context.Context) (*IngestRun, error)

	// Close releases the underlying database.
	Close() error
}

// DatabaseError wraps a store failure with its operation and whether a
// retry might succeed.
type DatabaseError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient store failure worth
// retrying: lock contention and busy timeouts, not constraint or schema
// errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr.Retryable
	}
	return isTransientSQLite(err)
}

// isTransientSQLite classifies raw driver errors by message so both the
// cgo and pure Go drivers are covered without importing either.
func isTransientSQLite(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"database is locked", "database table is locked", "busy", "interrupted"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// wrapDBError builds a DatabaseError with transience classified from
// the underlying driver error.
func wrapDBError(op string, err error) error {
	return &DatabaseError{Op: op, Retryable: isTransientSQLite(err), Err: err}
}
