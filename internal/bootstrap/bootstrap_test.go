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
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestInitProjectCreatesIndex(t *testing.T) {
	root := t.TempDir()

	info, err := InitProject(ProjectConfig{ProjectID: "demo", Root: root}, nil)
	if err != nil {
		t.Fatalf("InitProject: %v", err)
	}
	if info.IndexPath != filepath.Join(root, ".dredge", "index.db") {
		t.Errorf("IndexPath = %q", info.IndexPath)
	}
	if _, err := os.Stat(info.IndexPath); err != nil {
		t.Fatalf("index file missing: %v", err)
	}
}

func TestInitProjectIsIdempotent(t *testing.T) {
	root := t.TempDir()
	cfg := ProjectConfig{ProjectID: "demo", Root: root}

	if _, err := InitProject(cfg, nil); err != nil {
		t.Fatalf("first InitProject: %v", err)
	}
	if _, err := InitProject(cfg, nil); err != nil {
		t.Fatalf("second InitProject: %v", err)
	}

	store, err := OpenProject(cfg, nil)
	if err != nil {
		t.Fatalf("OpenProject: %v", err)
	}
	defer store.Close()

	count, err := store.CountDocuments(context.Background())
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if count != 0 {
		t.Errorf("fresh index should be empty, got %d documents", count)
	}
}

func TestInitProjectRequiresProjectID(t *testing.T) {
	if _, err := InitProject(ProjectConfig{Root: t.TempDir()}, nil); err == nil {
		t.Fatal("expected error for missing project_id")
	}
}

func TestOpenProjectMissingIndex(t *testing.T) {
	_, err := OpenProject(ProjectConfig{ProjectID: "demo", Root: t.TempDir()}, nil)
	if err == nil {
		t.Fatal("expected error for missing index")
	}
}
