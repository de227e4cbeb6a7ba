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

// Package storage provides SQLite-based persistence for the dredge index.
//
// The store holds one table of documents (extracted constructs with
// metadata and optional embedding vectors) plus a log of ingest runs.
// Upserts are idempotent on the document content hash, so re-ingesting
// an unchanged dump inserts nothing.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStore(".dredge/index.db", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	res, err := store.UpsertDocuments(ctx, rows)
//	fmt.Printf("inserted %d, skipped %d\n", res.Inserted, res.Skipped)
//
// # Similarity Search
//
//	hits, err := store.SearchByEmbedding(ctx, queryVector, 10)
//	for _, hit := range hits {
//	    fmt.Printf("%.3f  %s\n", hit.Similarity, hit.Row.Metadata["name"])
//	}
//
// Embeddings are stored as little-endian float32 blobs; similarity is
// cosine, computed in Go.
//
// # Build Tags
//
// The package supports two build configurations:
//
// CGO Build (sqlite_vec tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires a C compiler
//
//     CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default, or purego tag):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build -tags "purego"
//
// # Error Classification
//
// Store failures surface as *DatabaseError carrying the operation name
// and whether a retry might succeed. IsRetryable reports lock
// contention and busy timeouts as transient; the indexer retries only
// those.
package storage
