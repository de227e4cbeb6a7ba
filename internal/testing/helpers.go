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

package testing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kraklabs/dredge/pkg/storage"
)

// SetupTestStore creates a temporary SQLite document store for testing.
// The store is automatically cleaned up when the test finishes.
//
// This helper:
//   - Creates the database in a temporary directory
//   - Initializes the schema
//   - Registers cleanup to close the store
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.SetupTestStore(t)
//
//	    // Store is ready with the schema initialized
//	    testing.InsertTestDocument(t, store, "hash1", "public class Unit { }")
//
//	    // Run your tests...
//	}
func SetupTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// InsertTestDocument adds a document with the given hash and content.
// This is a convenience helper for seeding test data.
//
// Example:
//
//	store := testing.SetupTestStore(t)
//	testing.InsertTestDocument(t, store, "hash_123", "public class Unit { }")
func InsertTestDocument(t *testing.T, store *storage.SQLiteStore, hash, content string) {
	t.Helper()
	InsertTestDocumentWithMetadata(t, store, hash, content, nil)
}

// InsertTestDocumentWithMetadata adds a document carrying construct metadata.
//
// Example:
//
//	testing.InsertTestDocumentWithMetadata(t, store, "hash_123",
//	    "public class Unit { }",
//	    map[string]string{"name": "Unit", "kind": "class", "namespace": "Game"})
func InsertTestDocumentWithMetadata(t *testing.T, store *storage.SQLiteStore, hash, content string, metadata map[string]string) {
	t.Helper()

	res, err := store.UpsertDocuments(context.Background(), []storage.Row{{
		DocumentHash: hash,
		Content:      content,
		Metadata:     metadata,
	}})
	if err != nil {
		t.Fatalf("failed to insert test document: %v", err)
	}
	if res.Inserted+res.Skipped != 1 {
		t.Fatalf("unexpected upsert result: %+v", res)
	}
}

// InsertTestDocumentWithEmbedding adds a document with an embedding vector
// so similarity search can be exercised.
func InsertTestDocumentWithEmbedding(t *testing.T, store *storage.SQLiteStore, hash, content string, embedding []float32) {
	t.Helper()

	_, err := store.UpsertDocuments(context.Background(), []storage.Row{{
		DocumentHash: hash,
		Content:      content,
		Embedding:    embedding,
	}})
	if err != nil {
		t.Fatalf("failed to insert test document with embedding: %v", err)
	}
}

// CountDocuments is a helper to count documents in the store.
//
// Example:
//
//	n := testing.CountDocuments(t, store)
//	require.Equal(t, int64(2), n)
func CountDocuments(t *testing.T, store *storage.SQLiteStore) int64 {
	t.Helper()

	count, err := store.CountDocuments(context.Background())
	if err != nil {
		t.Fatalf("failed to count documents: %v", err)
	}
	return count
}

// GetTestDocument fetches a document by hash, failing the test if it is
// absent.
func GetTestDocument(t *testing.T, store *storage.SQLiteStore, hash string) *storage.Row {
	t.Helper()

	row, err := store.GetByHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("failed to get document %q: %v", hash, err)
	}
	return row
}
