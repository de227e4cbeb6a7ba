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
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/dredge/pkg/ingestion"
)

// Config is the .dredge/project.yaml project configuration.
type Config struct {
	// ProjectID is the logical project identifier, defaulting to the
	// directory name at init time.
	ProjectID string `yaml:"project_id"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingest    IngestConfig    `yaml:"ingest"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is one of: mock, ollama, openai.
	Provider string `yaml:"provider"`

	// BaseURL overrides the provider endpoint (Ollama or OpenAI-compatible).
	BaseURL string `yaml:"base_url,omitempty"`

	// Model is the embedding model name.
	Model string `yaml:"model,omitempty"`

	// APIKey authenticates against OpenAI-compatible providers.
	// Optional for local servers.
	APIKey string `yaml:"api_key,omitempty"`

	// CacheSize bounds the embedding LRU cache (entries). 0 disables it.
	CacheSize int `yaml:"cache_size,omitempty"`
}

// IngestConfig holds the tunables the ingest pipeline reads from the
// project file. Zero values fall back to the engine defaults.
type IngestConfig struct {
	// ParserMode is auto, simplified, or treesitter.
	ParserMode string `yaml:"parser_mode,omitempty"`

	// Workers bounds concurrent chunk parses and batch inserts.
	Workers int `yaml:"workers,omitempty"`

	// BatchStrategy is fixed, content_aware, or adaptive.
	BatchStrategy string `yaml:"batch_strategy,omitempty"`

	// BatchSize is the fixed-strategy batch size.
	BatchSize int `yaml:"batch_size,omitempty"`

	// MaxFileSize skips dump files larger than this many bytes.
	MaxFileSize int64 `yaml:"max_file_size,omitempty"`

	// Include and Exclude are discovery glob patterns (** supported).
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// ConfigDir returns the .dredge directory under root.
func ConfigDir(root string) string {
	return filepath.Join(root, ".dredge")
}

// ConfigPath returns the project.yaml path under root.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), "project.yaml")
}

// IndexPath returns the SQLite index path under root.
func IndexPath(root string) string {
	return filepath.Join(ConfigDir(root), "index.db")
}

// CheckpointDir returns the checkpoint directory under root.
func CheckpointDir(root string) string {
	return filepath.Join(ConfigDir(root), "checkpoints")
}

// DefaultConfig returns a fresh project configuration.
func DefaultConfig(projectID string) *Config {
	eng := ingestion.DefaultConfig()
	return &Config{
		ProjectID: projectID,
		Embedding: EmbeddingConfig{
			Provider:  "mock",
			CacheSize: 4096,
		},
		Ingest: IngestConfig{
			ParserMode:    string(ingestion.DefaultParserMode),
			Workers:       eng.MaxConcurrency,
			BatchStrategy: string(eng.BatchStrategy),
			BatchSize:     eng.BatchSize,
			MaxFileSize:   eng.MaxFileSizeBytes,
			Include:       append([]string(nil), ingestion.DefaultIncludePatterns...),
			Exclude:       append([]string(nil), ingestion.DefaultExcludePatterns...),
		},
	}
}

// LoadConfig reads the project configuration. An empty path means
// ./.dredge/project.yaml. The DREDGE_EMBEDDING_PROVIDER environment
// variable overrides the configured embedding provider.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get current directory: %w", err)
		}
		path = ConfigPath(cwd)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from --config or cwd
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no configuration at %s (run 'dredge init' first)", path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("config %s: project_id is required", path)
	}

	if p := os.Getenv("DREDGE_EMBEDDING_PROVIDER"); p != "" {
		cfg.Embedding.Provider = p
	}
	return &cfg, nil
}

// SaveConfig writes the configuration as YAML.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// engineConfig maps the project file onto the engine configuration.
// Unset fields keep the engine defaults.
func (c *Config) engineConfig() *ingestion.Config {
	eng := ingestion.DefaultConfig()
	if c.Ingest.ParserMode != "" {
		eng.ParserMode = ingestion.ParserMode(c.Ingest.ParserMode)
	}
	if c.Ingest.Workers > 0 {
		eng.MaxConcurrency = c.Ingest.Workers
		eng.MaxConnections = c.Ingest.Workers
	}
	if c.Ingest.BatchStrategy != "" {
		eng.BatchStrategy = ingestion.BatchStrategy(c.Ingest.BatchStrategy)
	}
	if c.Ingest.BatchSize > 0 {
		eng.BatchSize = c.Ingest.BatchSize
	}
	if c.Ingest.MaxFileSize > 0 {
		eng.MaxFileSizeBytes = c.Ingest.MaxFileSize
	}
	if len(c.Ingest.Include) > 0 {
		eng.IncludePatterns = c.Ingest.Include
	}
	if len(c.Ingest.Exclude) > 0 {
		eng.ExcludePatterns = c.Ingest.Exclude
	}
	eng.ContinueOnError = true
	return eng
}
