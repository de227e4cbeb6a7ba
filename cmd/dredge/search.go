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
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/dredge/internal/errors"
	"github.com/kraklabs/dredge/internal/output"
	"github.com/kraklabs/dredge/pkg/storage"
)

// searchHit is the JSON shape of one search result.
type searchHit struct {
	Similarity    float64 `json:"similarity"`
	Name          string  `json:"name"`
	QualifiedName string  `json:"qualified_name"`
	Kind          string  `json:"kind"`
	File          string  `json:"file"`
	StartLine     string  `json:"start_line,omitempty"`
}

// runSearch executes the 'search' CLI command: embed the query text and
// rank indexed constructs by cosine similarity.
//
// Flags:
//   - --limit/-n: Maximum number of results (default: 10)
//   - --json: Output results as JSON
//   - --timeout: Search timeout (default: 30s)
//
// Examples:
//
//	dredge search "damage calculation"
//	dredge search -n 25 "inventory slot"
//	dredge search --json "player movement" | jq .
func runSearch(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	limit := fs.IntP("limit", "n", 10, "Maximum number of results")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	timeout := fs.Duration("timeout", 30*time.Second, "Search timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dredge search [options] <query>

Embeds the query with the configured provider and returns the indexed
constructs closest to it by cosine similarity.

Options:
%s
Examples:
  dredge search "damage calculation"
  dredge search -n 25 "inventory slot"
  dredge search --json "player movement"

`, fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	useJSON := *jsonOutput || globals.JSON

	if fs.NArg() == 0 {
		errors.FatalError(errors.NewInputError(
			"Missing query",
			"The search command requires a query argument",
			"Run 'dredge search \"<what you are looking for>\"'",
		), useJSON)
	}
	query := fs.Arg(0)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load configuration",
			err.Error(),
			"Run 'dredge init' to create a configuration",
			err,
		), useJSON)
	}

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(err, useJSON)
	}
	indexPath := IndexPath(cwd)
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		errors.FatalError(errors.NewNotFoundError(
			"Index not found",
			fmt.Sprintf("No index at %s", indexPath),
			"Run 'dredge ingest' first",
		), useJSON)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := storage.NewSQLiteStore(indexPath, logger)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Cannot open index",
			err.Error(),
			"Check that no other dredge process holds the database",
			err,
		), useJSON)
	}
	defer func() { _ = store.Close() }()

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		errors.FatalError(err, useJSON)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	vectors, err := embedder.EmbedDocuments(ctx, []string{query})
	if err != nil {
		errors.FatalError(errors.NewNetworkError(
			"Cannot embed query",
			err.Error(),
			"Check the embedding provider configuration and connectivity",
			err,
		), useJSON)
	}

	results, err := store.SearchByEmbedding(ctx, vectors[0], *limit)
	if err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"Search failed",
			err.Error(),
			"Check that the index is intact; 'dredge reset' rebuilds it",
			err,
		), useJSON)
	}

	if useJSON {
		hits := make([]searchHit, 0, len(results))
		for _, r := range results {
			hits = append(hits, hitFromResult(r))
		}
		_ = output.JSON(map[string]any{
			"query":   query,
			"results": hits,
			"count":   len(hits),
		})
		return
	}
	printSearchResults(results)
}

func hitFromResult(r storage.SearchResult) searchHit {
	return searchHit{
		Similarity:    r.Similarity,
		Name:          r.Row.Metadata["name"],
		QualifiedName: r.Row.Metadata["qualified_name"],
		Kind:          r.Row.Metadata["kind"],
		File:          r.Row.Metadata["file"],
		StartLine:     r.Row.Metadata["start_line"],
	}
}

// printSearchResults prints search hits as a tab-aligned table.
func printSearchResults(results []storage.SearchResult) {
	if len(results) == 0 {
		fmt.Println("No results")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCORE\tKIND\tQUALIFIED NAME\tLOCATION")
	_, _ = fmt.Fprintln(w, "---\t---\t---\t---")

	for _, r := range results {
		hit := hitFromResult(r)
		location := hit.File
		if hit.StartLine != "" {
			location = fmt.Sprintf("%s:%s", hit.File, hit.StartLine)
		}
		_, _ = fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n",
			hit.Similarity, hit.Kind, truncate(hit.QualifiedName, 60), truncate(location, 60))
	}
	_ = w.Flush()

	fmt.Printf("\n(%d results)\n", len(results))
}

// truncate shortens s for table display.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
