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
	"os"
	"time"

	"github.com/kraklabs/dredge/internal/output"
	"github.com/kraklabs/dredge/internal/ui"
	"github.com/kraklabs/dredge/pkg/storage"
)

// StatusResult represents the index status for JSON output.
type StatusResult struct {
	ProjectID string    `json:"project_id"`
	IndexPath string    `json:"index_path"`
	Documents int64     `json:"documents"`
	LastRun   *RunView  `json:"last_run,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunView is the JSON shape of the most recent ingest run.
type RunView struct {
	RootPath         string    `json:"root_path"`
	FilesTotal       int       `json:"files_total"`
	FilesIngested    int       `json:"files_ingested"`
	DocumentsIndexed int       `json:"documents_indexed"`
	DocumentsSkipped int       `json:"documents_skipped"`
	Errors           int       `json:"errors"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// runStatus executes the 'status' CLI command, displaying index statistics
// and the most recent ingest run.
//
// Flags:
//   - --json: Output results as JSON (default: false)
//
// Examples:
//
//	dredge status           Display formatted status
//	dredge status --json    Output as JSON for programmatic use
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dredge status [options]

Shows local index status.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	useJSON := *jsonOutput || globals.JSON

	cfg, err := LoadConfig(configPath)
	if err != nil {
		statusFatal(useJSON, &StatusResult{Error: err.Error(), Timestamp: time.Now()}, err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		statusFatal(useJSON, &StatusResult{ProjectID: cfg.ProjectID, Error: err.Error(), Timestamp: time.Now()}, err)
	}

	indexPath := IndexPath(cwd)
	result := &StatusResult{
		ProjectID: cfg.ProjectID,
		IndexPath: indexPath,
		Timestamp: time.Now(),
	}

	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		result.Error = "Index not created yet. Run 'dredge init' then 'dredge ingest'."
		if useJSON {
			_ = output.JSON(result)
		} else {
			fmt.Printf("Project '%s' has no index yet.\n", cfg.ProjectID)
			fmt.Println("Run 'dredge ingest' to ingest your dump files.")
		}
		os.Exit(0)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := storage.NewSQLiteStore(indexPath, logger)
	if err != nil {
		result.Error = fmt.Sprintf("Cannot open index: %v", err)
		statusFatal(useJSON, result, err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := store.CountDocuments(ctx)
	if err != nil {
		result.Error = fmt.Sprintf("Cannot count documents: %v", err)
		statusFatal(useJSON, result, err)
	}
	result.Documents = count

	if run, err := store.LastRun(ctx); err == nil {
		result.LastRun = &RunView{
			RootPath:         run.RootPath,
			FilesTotal:       run.FilesTotal,
			FilesIngested:    run.FilesIngested,
			DocumentsIndexed: run.DocumentsIndexed,
			DocumentsSkipped: run.DocumentsSkipped,
			Errors:           run.Errors,
			StartedAt:        run.StartedAt,
			FinishedAt:       run.FinishedAt,
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		result.Error = fmt.Sprintf("Cannot read last run: %v", err)
	}

	if useJSON {
		_ = output.JSON(result)
		return
	}
	printStatus(result)
}

// statusFatal reports a fatal status error in the requested format and exits.
func statusFatal(useJSON bool, result *StatusResult, err error) {
	if useJSON {
		_ = output.JSON(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// printStatus prints the status result as formatted text to stdout.
func printStatus(result *StatusResult) {
	ui.Header("Dredge Index Status")
	fmt.Printf("%s %s\n", ui.Label("Project ID:"), result.ProjectID)
	fmt.Printf("%s %s\n", ui.Label("Index:"), ui.DimText(result.IndexPath))
	fmt.Println()

	fmt.Printf("%s %s\n", ui.Label("Documents:"), ui.CountText(int(result.Documents)))

	if result.LastRun != nil {
		fmt.Println()
		ui.SubHeader("Last ingest:")
		fmt.Printf("  Root:      %s\n", result.LastRun.RootPath)
		fmt.Printf("  Files:     %d/%d ingested\n", result.LastRun.FilesIngested, result.LastRun.FilesTotal)
		fmt.Printf("  Indexed:   %d (%d skipped)\n", result.LastRun.DocumentsIndexed, result.LastRun.DocumentsSkipped)
		if result.LastRun.Errors > 0 {
			fmt.Printf("  Errors:    %d\n", result.LastRun.Errors)
		}
		fmt.Printf("  Finished:  %s\n", result.LastRun.FinishedAt.Local().Format(time.RFC3339))
	}

	if result.Error != "" {
		fmt.Printf("\nWarning: %s\n", result.Error)
	}
}
