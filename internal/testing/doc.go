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

// Package testing provides test helpers for Dredge integration tests.
//
// The helpers create throwaway SQLite document stores and seed them with
// documents, so tests against the storage layer need no boilerplate.
//
// # Quick Start
//
// Use SetupTestStore to create a temporary store with the schema applied:
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.SetupTestStore(t)
//
//	    testing.InsertTestDocument(t, store, "hash1", "public class Unit { }")
//
//	    n := testing.CountDocuments(t, store)
//	    require.Equal(t, int64(1), n)
//	}
//
// Every store lives in its own t.TempDir() and is closed via t.Cleanup,
// so tests stay isolated from each other.
package testing
