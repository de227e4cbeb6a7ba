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

package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/dredge/pkg/storage"
)

// ProjectConfig holds configuration for initializing a project.
type ProjectConfig struct {
	// ProjectID is the logical project identifier.
	ProjectID string

	// Root is the project root directory. The index database lives at
	// <root>/.dredge/index.db. Defaults to the current directory.
	Root string
}

// ProjectInfo holds information about an initialized project.
type ProjectInfo struct {
	ProjectID string
	DataDir   string
	IndexPath string
}

// dataDir returns the .dredge directory for the configured root.
func (c *ProjectConfig) dataDir() (string, error) {
	root := c.Root
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get current directory: %w", err)
		}
		root = cwd
	}
	return filepath.Join(root, ".dredge"), nil
}

// InitProject initializes a new Dredge project.
// This function is idempotent: calling it multiple times is safe.
//
// The function:
//  1. Creates the .dredge data directory if it doesn't exist
//  2. Opens the SQLite index, creating the schema if needed
//
// Parameters:
//   - config: project configuration
//   - logger: optional logger (nil uses default)
//
// Returns:
//   - ProjectInfo: information about the initialized project
//   - error: if initialization fails
func InitProject(config ProjectConfig, logger *slog.Logger) (*ProjectInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required")
	}

	dataDir, err := config.dataDir()
	if err != nil {
		return nil, err
	}
	indexPath := filepath.Join(dataDir, "index.db")

	logger.Info("bootstrap.project.init.start",
		"project_id", config.ProjectID,
		"data_dir", dataDir,
	)

	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// Opening the store creates the schema.
	store, err := storage.NewSQLiteStore(indexPath, logger)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if err := store.Close(); err != nil {
		return nil, fmt.Errorf("close index: %w", err)
	}

	logger.Info("bootstrap.project.init.success",
		"project_id", config.ProjectID,
		"index_path", indexPath,
	)

	return &ProjectInfo{
		ProjectID: config.ProjectID,
		DataDir:   dataDir,
		IndexPath: indexPath,
	}, nil
}

// OpenProject opens an existing Dredge project.
// Returns the document store for querying the index. The caller owns the
// store and must Close it.
func OpenProject(config ProjectConfig, logger *slog.Logger) (*storage.SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required")
	}

	dataDir, err := config.dataDir()
	if err != nil {
		return nil, err
	}
	indexPath := filepath.Join(dataDir, "index.db")

	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("project not found: %s (run 'dredge init' first)", indexPath)
	}

	logger.Debug("bootstrap.project.open",
		"project_id", config.ProjectID,
		"index_path", indexPath,
	)

	store, err := storage.NewSQLiteStore(indexPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return store, nil
}
