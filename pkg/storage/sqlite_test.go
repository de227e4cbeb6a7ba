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
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRows() []Row {
	return []Row{
		{
			DocumentHash: "hash-player",
			Content:      "public class Player { }",
			Metadata:     map[string]string{"name": "Game.Player", "kind": "class"},
			Embedding:    []float32{1, 0, 0},
		},
		{
			DocumentHash: "hash-mode",
			Content:      "public enum Mode { Solo }",
			Metadata:     map[string]string{"name": "Game.Mode", "kind": "enum"},
			Embedding:    []float32{0, 1, 0},
		},
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	res, err := store.UpsertDocuments(ctx, testRows())
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if res.Inserted != 2 || res.Skipped != 0 {
		t.Errorf("first upsert = %+v, want 2 inserted", res)
	}

	// Same hashes again: everything skipped, nothing duplicated.
	res, err = store.UpsertDocuments(ctx, testRows())
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if res.Inserted != 0 || res.Skipped != 2 {
		t.Errorf("second upsert = %+v, want 2 skipped", res)
	}

	count, err := store.CountDocuments(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestUpsertEmptyBatch(t *testing.T) {
	store := openTestStore(t)

	res, err := store.UpsertDocuments(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty upsert: %v", err)
	}
	if res.Inserted != 0 || res.Skipped != 0 {
		t.Errorf("empty upsert = %+v, want zeros", res)
	}
}

func TestGetByHash(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.UpsertDocuments(ctx, testRows()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	row, err := store.GetByHash(ctx, "hash-player")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row.Content != "public class Player { }" {
		t.Errorf("content = %q", row.Content)
	}
	if row.Metadata["name"] != "Game.Player" {
		t.Errorf("metadata name = %q, want Game.Player", row.Metadata["name"])
	}
	if len(row.Embedding) != 3 || row.Embedding[0] != 1 {
		t.Errorf("embedding = %v, want [1 0 0]", row.Embedding)
	}
	if row.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}

	if _, err := store.GetByHash(ctx, "no-such-hash"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing hash err = %v, want ErrNotFound", err)
	}
}

func TestSearchByEmbedding(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rows := []Row{
		{DocumentHash: "a", Content: "a", Embedding: []float32{1, 0, 0}},
		{DocumentHash: "b", Content: "b", Embedding: []float32{0.9, 0.1, 0}},
		{DocumentHash: "c", Content: "c", Embedding: []float32{0, 0, 1}},
	}
	if _, err := store.UpsertDocuments(ctx, rows); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	hits, err := store.SearchByEmbedding(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if hits[0].Row.DocumentHash != "a" {
		t.Errorf("top hit = %s, want a", hits[0].Row.DocumentHash)
	}
	if hits[1].Row.DocumentHash != "b" {
		t.Errorf("second hit = %s, want b", hits[1].Row.DocumentHash)
	}
	if hits[0].Similarity < hits[1].Similarity {
		t.Errorf("hits not ranked: %v then %v", hits[0].Similarity, hits[1].Similarity)
	}
}

func TestSearchByEmbeddingZeroLimit(t *testing.T) {
	store := openTestStore(t)

	hits, err := store.SearchByEmbedding(context.Background(), []float32{1, 0, 0}, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0", len(hits))
	}
}

func TestRecordAndLastRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.LastRun(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LastRun on empty store err = %v, want ErrNotFound", err)
	}

	started := time.Now().Add(-time.Minute).Truncate(time.Second)
	finished := time.Now().Truncate(time.Second)
	run := &IngestRun{
		RootPath:         "/dumps/game",
		FilesTotal:       3,
		FilesIngested:    2,
		DocumentsIndexed: 150,
		DocumentsSkipped: 30,
		Errors:           1,
		StartedAt:        started,
		FinishedAt:       finished,
	}
	if err := store.RecordRun(ctx, run); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if run.ID == 0 {
		t.Error("RecordRun did not set ID")
	}

	got, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if got.RootPath != "/dumps/game" || got.DocumentsIndexed != 150 {
		t.Errorf("LastRun = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
	if !IsRetryable(&DatabaseError{Op: "insert", Retryable: true, Err: errors.New("database is locked")}) {
		t.Error("retryable DatabaseError should be retryable")
	}
	if IsRetryable(&DatabaseError{Op: "insert", Retryable: false, Err: errors.New("UNIQUE constraint failed")}) {
		t.Error("constraint error should not be retryable")
	}
	if !IsRetryable(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("raw lock error should be retryable")
	}
}
