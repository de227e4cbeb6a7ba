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
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kraklabs/dredge/internal/output"
	"github.com/kraklabs/dredge/internal/ui"
	"github.com/kraklabs/dredge/pkg/ingestion"
	"github.com/kraklabs/dredge/pkg/storage"
)

// runIngest executes the 'ingest' CLI command, running the full dump
// ingestion pipeline: discover, read, parse, embed, index.
//
// Flags:
//   - --resume: Resume an interrupted ingest from its checkpoint
//   - --workers: Override the configured concurrency bound
//   - --batch-strategy: Override the batching strategy (fixed, content_aware, adaptive)
//   - --parser-mode: Override the parser mode (auto, simplified, treesitter)
//   - --debug: Enable debug logging
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//
// Examples:
//
//	dredge ingest                   Ingest dumps under the current directory
//	dredge ingest dumps/            Ingest a specific directory
//	dredge ingest --resume          Pick up where an interrupted run stopped
//	dredge ingest --workers 8 --batch-strategy fixed
func runIngest(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	resume := fs.Bool("resume", false, "Resume an interrupted ingest from its checkpoint")
	workers := fs.Int("workers", 0, "Concurrency bound (0 = use config)")
	batchStrategy := fs.String("batch-strategy", "", "Batching strategy: fixed, content_aware, adaptive (empty = use config)")
	parserMode := fs.String("parser-mode", "", "Parser mode: auto, simplified, treesitter (empty = use config)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dredge ingest [options] [path]

Ingests dump files found under path (default: current directory) using
configuration from .dredge/project.yaml. Extracted constructs are embedded
and stored in .dredge/index.db.

An interrupted run (Ctrl-C) saves a checkpoint; rerun with --resume to
pick up where it stopped.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelWarn
	if *debug || globals.Verbose > 0 {
		logLevel = slog.LevelDebug
	} else if !globals.Quiet {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Prometheus metrics endpoint (optional)
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	// Graceful shutdown on SIGINT/SIGTERM: the pipeline saves a checkpoint
	// before returning.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	rootPath := cwd
	if fs.NArg() > 0 {
		rootPath = fs.Arg(0)
	}

	engCfg := cfg.engineConfig()
	if *workers > 0 {
		engCfg.MaxConcurrency = *workers
		engCfg.MaxConnections = *workers
	}
	if *batchStrategy != "" {
		engCfg.BatchStrategy = ingestion.BatchStrategy(*batchStrategy)
	}
	if *parserMode != "" {
		engCfg.ParserMode = ingestion.ParserMode(*parserMode)
	}

	if err := os.MkdirAll(CheckpointDir(cwd), 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create checkpoint directory: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(IndexPath(cwd), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open index: %v (run 'dredge init' first)\n", err)
		os.Exit(1)
	}

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		_ = store.Close()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	pipeline, err := ingestion.NewPipeline(engCfg, store, embedder, logger)
	if err != nil {
		_ = store.Close()
		fmt.Fprintf(os.Stderr, "Error: create pipeline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = pipeline.Close() }()

	logger.Info("ingest.starting",
		"project_id", cfg.ProjectID,
		"root_path", rootPath,
		"embedding_provider", cfg.Embedding.Provider,
	)

	progressCfg := NewProgressConfig(globals)
	spinner := NewSpinner(progressCfg, "Ingesting")
	var progressFn ingestion.ProgressFunc
	if spinner != nil {
		progressFn = func(ev ingestion.ProgressEvent) {
			spinner.Describe(phaseDescription(string(ev.Phase)))
			_ = spinner.Add(1)
		}
	}

	result, err := pipeline.Run(ctx, rootPath, ingestion.RunOptions{
		Resume:        *resume,
		CheckpointDir: CheckpointDir(cwd),
		Progress:      progressFn,
	})
	if spinner != nil {
		_ = spinner.Finish()
	}

	if err != nil {
		if errors.Is(err, ingestion.ErrCancelled) {
			if result != nil && result.CheckpointSaved {
				ui.Warning("Ingest interrupted; checkpoint saved. Rerun with --resume to continue.")
			} else {
				ui.Warning("Ingest interrupted.")
			}
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "Error: ingest failed: %v\n", err)
		os.Exit(1)
	}

	if globals.JSON {
		if err := output.JSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printIngestResult(cfg.ProjectID, result)
}

// buildEmbedder composes the configured embedding provider with retries
// and, when enabled, the LRU cache.
func buildEmbedder(cfg *Config, logger *slog.Logger) (ingestion.Embedder, error) {
	// Provider constructors read their endpoints from the environment;
	// project the config there first.
	switch cfg.Embedding.Provider {
	case "ollama":
		if cfg.Embedding.BaseURL != "" {
			os.Setenv("OLLAMA_BASE_URL", cfg.Embedding.BaseURL)
		}
		if cfg.Embedding.Model != "" {
			os.Setenv("OLLAMA_EMBED_MODEL", cfg.Embedding.Model)
		}
	case "openai":
		if cfg.Embedding.BaseURL != "" {
			os.Setenv("OPENAI_API_BASE", cfg.Embedding.BaseURL)
		}
		if cfg.Embedding.Model != "" {
			os.Setenv("OPENAI_EMBED_MODEL", cfg.Embedding.Model)
		}
		if cfg.Embedding.APIKey != "" {
			os.Setenv("OPENAI_API_KEY", cfg.Embedding.APIKey)
		}
	}

	inner, err := ingestion.NewEmbedder(cfg.Embedding.Provider, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	var embedder ingestion.Embedder = ingestion.NewRetryingEmbedder(inner, ingestion.DefaultRetryConfig(), logger)
	if cfg.Embedding.CacheSize > 0 {
		cached, err := ingestion.NewCachingEmbedder(embedder, cfg.Embedding.CacheSize, logger)
		if err != nil {
			return nil, fmt.Errorf("create embedding cache: %w", err)
		}
		embedder = cached
	}
	return embedder, nil
}

// printIngestResult prints the ingest summary to stdout.
func printIngestResult(projectID string, result *ingestion.IngestResult) {
	fmt.Println()
	ui.Header("Ingest Complete")
	fmt.Printf("%s %s\n", ui.Label("Project ID:"), projectID)
	fmt.Printf("%s %s\n", ui.Label("Root:"), result.RootPath)
	if result.Resumed {
		fmt.Println("Resumed from checkpoint")
	}
	fmt.Println()

	ui.SubHeader("Files:")
	fmt.Printf("  Discovered:  %s\n", ui.CountText(result.FilesTotal))
	fmt.Printf("  Ingested:    %s\n", ui.CountText(result.FilesIngested))
	if result.FilesFailed > 0 {
		fmt.Printf("  Failed:      %s\n", ui.CountText(result.FilesFailed))
	}

	ui.SubHeader("Constructs:")
	fmt.Printf("  Extracted:   %s\n", ui.CountText(result.ConstructsExtracted))
	fmt.Printf("  Indexed:     %s\n", ui.CountText(result.DocumentsIndexed))
	fmt.Printf("  Skipped:     %s\n", ui.CountText(result.DocumentsSkipped))
	if result.SyntaxErrors > 0 {
		fmt.Printf("  Syntax errors: %s\n", ui.CountText(result.SyntaxErrors))
	}
	if result.FailedBatches > 0 {
		fmt.Printf("  Failed batches: %s\n", ui.CountText(result.FailedBatches))
	}

	if len(result.SkipReasons) > 0 {
		fmt.Println("\nSkipped files:")
		for reason, count := range result.SkipReasons {
			fmt.Printf("  %s: %d\n", reason, count)
		}
	}

	if len(result.Errors) > 0 {
		fmt.Println()
		ui.Warningf("%d errors during ingest:", len(result.Errors))
		for _, msg := range result.Errors {
			fmt.Printf("  %s\n", msg)
		}
	}

	fmt.Println("\nTimings:")
	fmt.Printf("  Discover: %s\n", result.DiscoverTime)
	fmt.Printf("  Read:     %s\n", result.ReadTime)
	fmt.Printf("  Process:  %s\n", result.ProcessTime)
	fmt.Printf("  Index:    %s\n", result.IndexTime)
	fmt.Printf("  Total:    %s\n", result.Elapsed)
	fmt.Println()

	if result.FilesFailed == 0 && result.FailedBatches == 0 {
		ui.Successf("Indexed %d constructs from %d files", result.DocumentsIndexed, result.FilesIngested)
	}
}
