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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kraklabs/dredge/pkg/ingestion"
)

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")

	cfg := DefaultConfig("excavation")
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.Model = "nomic-embed-text"
	cfg.Ingest.Workers = 8
	cfg.Ingest.Exclude = append(cfg.Ingest.Exclude, "Library/**")

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.ProjectID != "excavation" {
		t.Errorf("ProjectID = %q, want %q", loaded.ProjectID, "excavation")
	}
	if loaded.Embedding.Provider != "ollama" {
		t.Errorf("Provider = %q, want ollama", loaded.Embedding.Provider)
	}
	if loaded.Ingest.Workers != 8 {
		t.Errorf("Workers = %d, want 8", loaded.Ingest.Workers)
	}
	if len(loaded.Ingest.Exclude) != len(cfg.Ingest.Exclude) {
		t.Errorf("Exclude = %v, want %v", loaded.Ingest.Exclude, cfg.Ingest.Exclude)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "project.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadConfigRequiresProjectID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	if err := os.WriteFile(path, []byte("embedding:\n  provider: mock\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for config without project_id")
	}
}

func TestLoadConfigEnvProviderOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.yaml")
	if err := SaveConfig(DefaultConfig("site"), path); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DREDGE_EMBEDDING_PROVIDER", "openai")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Embedding.Provider != "openai" {
		t.Errorf("Provider = %q, want env override openai", cfg.Embedding.Provider)
	}
}

func TestEngineConfigMapping(t *testing.T) {
	cfg := DefaultConfig("site")
	cfg.Ingest.ParserMode = "simplified"
	cfg.Ingest.Workers = 2
	cfg.Ingest.BatchStrategy = "fixed"
	cfg.Ingest.BatchSize = 25
	cfg.Ingest.Include = []string{"**/*.dump"}

	eng := cfg.engineConfig()
	if eng.ParserMode != ingestion.ParserModeSimplified {
		t.Errorf("ParserMode = %q, want simplified", eng.ParserMode)
	}
	if eng.MaxConcurrency != 2 || eng.MaxConnections != 2 {
		t.Errorf("workers not applied: concurrency=%d connections=%d", eng.MaxConcurrency, eng.MaxConnections)
	}
	if eng.BatchStrategy != ingestion.BatchStrategyFixed || eng.BatchSize != 25 {
		t.Errorf("batching not applied: %q/%d", eng.BatchStrategy, eng.BatchSize)
	}
	if len(eng.IncludePatterns) != 1 || eng.IncludePatterns[0] != "**/*.dump" {
		t.Errorf("IncludePatterns = %v", eng.IncludePatterns)
	}
	if !eng.ContinueOnError {
		t.Error("engineConfig should enable ContinueOnError for CLI runs")
	}
}
