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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultCheckpointDir is where ingest checkpoints live, relative to the
// project root.
const DefaultCheckpointDir = ".dredge/checkpoints"

// Checkpoint captures an interrupted ingest so a later run can pick it up:
// which files are already fully indexed, which file was mid-flight, and the
// paused processor snapshot for that file.
type Checkpoint struct {
	RootPath         string           `json:"root_path"`
	FilePath         string           `json:"file_path,omitempty"`
	FilesDone        []string         `json:"files_done,omitempty"`
	DocumentsIndexed int              `json:"documents_indexed"`
	DocumentsSkipped int              `json:"documents_skipped"`
	Processing       *ProcessingState `json:"processing,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// CheckpointManager persists checkpoints as JSON files, one per ingest root.
type CheckpointManager struct {
	dir string
}

// NewCheckpointManager creates a manager writing under dir. An empty dir
// uses DefaultCheckpointDir.
func NewCheckpointManager(dir string) *CheckpointManager {
	if dir == "" {
		dir = DefaultCheckpointDir
	}
	return &CheckpointManager{dir: dir}
}

// LoadCheckpoint loads the checkpoint for an ingest root. A missing
// checkpoint is not an error: it returns (nil, nil).
func (cm *CheckpointManager) LoadCheckpoint(rootPath string) (*Checkpoint, error) {
	data, err := os.ReadFile(cm.checkpointPath(rootPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &cp, nil
}

// SaveCheckpoint writes the checkpoint atomically (temp file + rename) so a
// crash mid-write never leaves a truncated file behind.
func (cm *CheckpointManager) SaveCheckpoint(cp *Checkpoint) error {
	if cp.RootPath == "" {
		return fmt.Errorf("checkpoint has no root path")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()

	path := cm.checkpointPath(cp.RootPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// ClearCheckpoint removes the checkpoint for an ingest root. Removing a
// checkpoint that does not exist is a no-op.
func (cm *CheckpointManager) ClearCheckpoint(rootPath string) error {
	if err := os.Remove(cm.checkpointPath(rootPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

// checkpointPath derives a stable file name from the ingest root so
// concurrent ingests of different roots never clobber each other.
func (cm *CheckpointManager) checkpointPath(rootPath string) string {
	id := DocumentHash(normalizePath(rootPath))[:12]
	return filepath.Join(cm.dir, fmt.Sprintf("checkpoint-%s.json", id))
}
