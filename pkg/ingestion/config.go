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

import "time"

// Engine defaults. Components normalize their own options against these, so
// a zero-value options struct always means "the defaults".
const (
	// DefaultBufferSize is the read buffer used by StreamingReader (64 KiB).
	DefaultBufferSize = 64 * 1024

	// DefaultMemoryCeilingBytes is the soft heap ceiling during a read.
	// Crossing it triggers a GC hint, never an error.
	DefaultMemoryCeilingBytes = 512 << 20

	// DefaultChunkSize is the core size of a processing chunk (256 KiB).
	DefaultChunkSize = 256 * 1024

	// DefaultChunkOverlap is how many bytes of the previous chunk are
	// prepended to each chunk for parsing context.
	DefaultChunkOverlap = 1024

	// DefaultMaxConcurrency bounds parallel chunk parses and parallel
	// batch inserts.
	DefaultMaxConcurrency = 4

	// DefaultMaxPoolSize caps how many idle parsers the pool retains.
	// It never caps acquisition.
	DefaultMaxPoolSize = 8

	// DefaultBatchSize is the fixed-strategy batch size.
	DefaultBatchSize = 100

	// DefaultMaxBatchContentBytes is the content-aware strategy's byte
	// ceiling per batch (1 MiB).
	DefaultMaxBatchContentBytes = 1 << 20

	// DefaultMaxRetries bounds per-batch insert attempts after the first.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the linear backoff unit: attempt n sleeps
	// n × DefaultRetryDelay.
	DefaultRetryDelay = time.Second

	// DefaultInsertTimeout races every insert attempt.
	DefaultInsertTimeout = 30 * time.Second

	// DefaultMaxConnections caps live store connections in the pool.
	DefaultMaxConnections = 4

	// DefaultAcquireTimeout bounds waiting for a pooled store connection.
	DefaultAcquireTimeout = 10 * time.Second

	// DefaultMaxFileSizeBytes is the discovery skip threshold for single
	// files (2 GiB); dumps larger than this are reported, not ingested.
	DefaultMaxFileSizeBytes = 2 << 30
)

// DefaultIncludePatterns and DefaultExcludePatterns drive dump discovery.
var (
	DefaultIncludePatterns = []string{"**/*.cs", "**/*.dump", "**/*.txt"}
	DefaultExcludePatterns = []string{".git/**", "bin/**", "obj/**"}
)

// Config carries the knobs the full pipeline needs. The CLI builds one from
// .dredge/project.yaml plus flags; library callers can start from
// DefaultConfig and override fields.
type Config struct {
	// Reading.
	BufferSize         int
	MemoryCeilingBytes int64
	SampleMemory       bool

	// Chunking.
	ChunkSize      int
	ChunkOverlap   int
	MaxConcurrency int
	StopOnError    bool // stop at the first chunk parse failure

	// Parsing.
	ParserMode  ParserMode
	MaxPoolSize int

	// Indexing.
	BatchStrategy        BatchStrategy
	BatchSize            int
	MaxBatchContentBytes int
	MaxRetries           int
	RetryDelay           time.Duration
	InsertTimeout        time.Duration
	MaxConnections       int
	AcquireTimeout       time.Duration
	ContinueOnError      bool // record failed batches instead of aborting

	// Discovery.
	IncludePatterns  []string
	ExcludePatterns  []string
	MaxFileSizeBytes int64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		BufferSize:           DefaultBufferSize,
		MemoryCeilingBytes:   DefaultMemoryCeilingBytes,
		SampleMemory:         true,
		ChunkSize:            DefaultChunkSize,
		ChunkOverlap:         DefaultChunkOverlap,
		MaxConcurrency:       DefaultMaxConcurrency,
		ParserMode:           DefaultParserMode,
		MaxPoolSize:          DefaultMaxPoolSize,
		BatchStrategy:        BatchStrategyAdaptive,
		BatchSize:            DefaultBatchSize,
		MaxBatchContentBytes: DefaultMaxBatchContentBytes,
		MaxRetries:           DefaultMaxRetries,
		RetryDelay:           DefaultRetryDelay,
		InsertTimeout:        DefaultInsertTimeout,
		MaxConnections:       DefaultMaxConnections,
		AcquireTimeout:       DefaultAcquireTimeout,
		IncludePatterns:      DefaultIncludePatterns,
		ExcludePatterns:      DefaultExcludePatterns,
		MaxFileSizeBytes:     DefaultMaxFileSizeBytes,
	}
}

// normalize fills zero fields with defaults. Called by the pipeline so a
// partially filled Config behaves predictably.
func (c *Config) normalize() {
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.MemoryCeilingBytes <= 0 {
		c.MemoryCeilingBytes = DefaultMemoryCeilingBytes
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.ParserMode == "" {
		c.ParserMode = DefaultParserMode
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = DefaultMaxPoolSize
	}
	if c.BatchStrategy == "" {
		c.BatchStrategy = BatchStrategyAdaptive
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxBatchContentBytes <= 0 {
		c.MaxBatchContentBytes = DefaultMaxBatchContentBytes
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.InsertTimeout <= 0 {
		c.InsertTimeout = DefaultInsertTimeout
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if len(c.IncludePatterns) == 0 {
		c.IncludePatterns = DefaultIncludePatterns
	}
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = DefaultMaxFileSizeBytes
	}
}
