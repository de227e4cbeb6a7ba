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
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SQLiteStore implements DocumentStore on a single SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    document_hash TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    metadata TEXT,
    embedding BLOB,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_hash ON documents(document_hash);

CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    root_path TEXT NOT NULL,
    files_total INTEGER DEFAULT 0,
    files_ingested INTEGER DEFAULT 0,
    documents_indexed INTEGER DEFAULT 0,
    documents_skipped INTEGER DEFAULT 0,
    errors INTEGER DEFAULT 0,
    started_at INTEGER,
    finished_at INTEGER
);
`

// openDatabase opens a SQLite database with appropriate settings.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	// Wait on lock contention instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// applies the schema.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Debug("storage.open", "path", dbPath, "driver", DriverName, "build", BuildMode)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertDocuments inserts rows inside one transaction. Conflicting
// document hashes are skipped, making re-ingestion of unchanged content
// a no-op.
func (s *SQLiteStore) UpsertDocuments(ctx context.Context, rows []Row) (*UpsertResult, error) {
	if len(rows) == 0 {
		return &UpsertResult{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (document_hash, content, metadata, embedding)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_hash) DO NOTHING
	`)
	if err != nil {
		return nil, wrapDBError("prepare upsert", err)
	}
	defer func() { _ = stmt.Close() }()

	result := &UpsertResult{}
	for i := range rows {
		meta, err := encodeMetadata(rows[i].Metadata)
		if err != nil {
			return nil, wrapDBError("encode metadata", err)
		}
		res, err := stmt.ExecContext(ctx,
			rows[i].DocumentHash,
			rows[i].Content,
			meta,
			serializeVector(rows[i].Embedding),
		)
		if err != nil {
			return nil, wrapDBError("insert document", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, wrapDBError("insert document", err)
		}
		if affected > 0 {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError("commit upsert", err)
	}
	return result, nil
}

// GetByHash fetches one row by document hash.
func (s *SQLiteStore) GetByHash(ctx context.Context, hash string) (*Row, error) {
	query := `
		SELECT id, document_hash, content, metadata, embedding, created_at
		FROM documents
		WHERE document_hash = ?
	`
	row, err := scanRow(s.db.QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapDBError("get document", err)
	}
	return row, nil
}

// CountDocuments reports how many documents the store holds.
func (s *SQLiteStore) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		return 0, wrapDBError("count documents", err)
	}
	return count, nil
}

// SearchByEmbedding ranks all embedded documents by cosine similarity
// to the query vector. Similarity is computed in Go, which holds up
// fine at the scale of one dump index.
func (s *SQLiteStore) SearchByEmbedding(ctx context.Context, query []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return []SearchResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_hash, content, metadata, embedding, created_at
		FROM documents
		WHERE embedding IS NOT NULL AND length(embedding) > 0
	`)
	if err != nil {
		return nil, wrapDBError("query embeddings", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, wrapDBError("scan document", err)
		}
		results = append(results, SearchResult{
			Row:        *row,
			Similarity: cosineSimilarity(query, row.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate documents", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// RecordRun persists one ingest run summary.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *IngestRun) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs
			(root_path, files_total, files_ingested, documents_indexed,
			 documents_skipped, errors, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RootPath, run.FilesTotal, run.FilesIngested, run.DocumentsIndexed,
		run.DocumentsSkipped, run.Errors, run.StartedAt.Unix(), run.FinishedAt.Unix(),
	)
	if err != nil {
		return wrapDBError("record run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return wrapDBError("record run", err)
	}
	run.ID = id
	return nil
}

// LastRun returns the most recent ingest run.
func (s *SQLiteStore) LastRun(ctx context.Context) (*IngestRun, error) {
	query := `
		SELECT id, root_path, files_total, files_ingested, documents_indexed,
		       documents_skipped, errors, started_at, finished_at
		FROM ingest_runs
		ORDER BY id DESC
		LIMIT 1
	`
	var (
		run      IngestRun
		started  sql.NullInt64
		finished sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query).Scan(
		&run.ID, &run.RootPath, &run.FilesTotal, &run.FilesIngested,
		&run.DocumentsIndexed, &run.DocumentsSkipped, &run.Errors,
		&started, &finished,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapDBError("get last run", err)
	}
	if started.Valid {
		run.StartedAt = time.Unix(started.Int64, 0)
	}
	if finished.Valid {
		run.FinishedAt = time.Unix(finished.Int64, 0)
	}
	return &run, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (*Row, error) {
	var (
		row       Row
		meta      sql.NullString
		embedding []byte
		createdAt int64
	)
	if err := sc.Scan(&row.ID, &row.DocumentHash, &row.Content, &meta, &embedding, &createdAt); err != nil {
		return nil, err
	}
	row.CreatedAt = time.Unix(createdAt, 0)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &row.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if len(embedding) > 0 {
		row.Embedding = deserializeVector(embedding)
	}
	return &row, nil
}

func encodeMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
