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

// Package bootstrap handles Dredge project initialization.
//
// This internal package creates the .dredge data directory and the SQLite
// index database with its schema, and ensures both exist before the project
// can be ingested or queried.
//
// # Initialization Workflow
//
// A typical workflow for setting up a new project:
//
//	// Initialize the project (creates .dredge/ and index.db)
//	info, err := bootstrap.InitProject(bootstrap.ProjectConfig{
//	    ProjectID: "myproject",
//	    Root:      "/path/to/project",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Index initialized at: %s\n", info.IndexPath)
//
//	// Later, open the project for queries
//	store, err := bootstrap.OpenProject(bootstrap.ProjectConfig{
//	    ProjectID: "myproject",
//	    Root:      "/path/to/project",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Idempotency
//
// InitProject is idempotent: calling it multiple times on the same project
// is safe and will not corrupt existing data. The SQLite schema uses CREATE
// TABLE IF NOT EXISTS throughout.
//
// # Configuration
//
//   - ProjectID: Required. Logical identifier for the project.
//   - Root: Optional. Project root directory; defaults to the current
//     directory. The index lives at <root>/.dredge/index.db.
package bootstrap
