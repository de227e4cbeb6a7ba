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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetupTestStore verifies the test store is created correctly.
func TestSetupTestStore(t *testing.T) {
	store := SetupTestStore(t)

	require.NotNil(t, store)
	assert.Equal(t, int64(0), CountDocuments(t, store), "should start with no documents")
}

// TestInsertTestDocument verifies document insertion.
func TestInsertTestDocument(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestDocument(t, store, "hash_123", "public class Unit { }")

	row := GetTestDocument(t, store, "hash_123")
	assert.Equal(t, "public class Unit { }", row.Content)
}

// TestInsertTestDocumentWithMetadata verifies metadata round-trips.
func TestInsertTestDocumentWithMetadata(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestDocumentWithMetadata(t, store, "hash_123", "public class Unit { }",
		map[string]string{"name": "Unit", "kind": "class", "namespace": "Game"})

	row := GetTestDocument(t, store, "hash_123")
	require.NotNil(t, row.Metadata)
	assert.Equal(t, "Unit", row.Metadata["name"])
	assert.Equal(t, "class", row.Metadata["kind"])
	assert.Equal(t, "Game", row.Metadata["namespace"])
}

// TestMultipleInserts verifies multiple documents can be inserted.
func TestMultipleInserts(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestDocument(t, store, "h1", "public class A { }")
	InsertTestDocument(t, store, "h2", "public class B { }")
	InsertTestDocument(t, store, "h3", "public enum C { }")

	assert.Equal(t, int64(3), CountDocuments(t, store))
}

// TestDuplicateHashIsSkipped verifies the idempotent upsert contract.
func TestDuplicateHashIsSkipped(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestDocument(t, store, "h1", "public class A { }")
	InsertTestDocument(t, store, "h1", "public class A { }")

	assert.Equal(t, int64(1), CountDocuments(t, store))
}

// TestInsertTestDocumentWithEmbedding verifies embedded documents are searchable.
func TestInsertTestDocumentWithEmbedding(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestDocumentWithEmbedding(t, store, "h1", "public class A { }", []float32{1, 0, 0})
	InsertTestDocumentWithEmbedding(t, store, "h2", "public class B { }", []float32{0, 1, 0})

	results, err := store.SearchByEmbedding(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "h1", results[0].Row.DocumentHash)
}

// TestStoreIsolation verifies each test store is independent.
func TestStoreIsolation(t *testing.T) {
	store1 := SetupTestStore(t)
	InsertTestDocument(t, store1, "h1", "public class A { }")

	store2 := SetupTestStore(t)
	assert.Equal(t, int64(0), CountDocuments(t, store2), "second store should be isolated from first")
	assert.Equal(t, int64(1), CountDocuments(t, store1))
}
