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
// Package main implements the Dredge CLI for ingesting decompiled C# dump
// files into a searchable local index.
//
// Usage:
//
//	dredge init                    Create .dredge/project.yaml configuration
//	dredge ingest [path]           Ingest dump files into the local index
//	dredge status [--json]         Show index status
//	dredge search <query>          Semantic search over indexed constructs
//	dredge reset                   Delete local index data (destructive!)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kraklabs/dredge/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags carries flags that apply to every command.
type GlobalFlags struct {
	// JSON requests machine-readable output. Implies Quiet.
	JSON bool

	// Quiet suppresses progress bars and informational chatter.
	Quiet bool

	// NoColor disables ANSI colors in all output.
	NoColor bool

	// Verbose raises log verbosity (0 = info, 1+ = debug).
	Verbose int
}

// main is the entry point for the Dredge CLI.
//
// It parses global flags and dispatches to command handlers.
//
// Global flags:
//   - --version: Display version information and exit
//   - --config: Path to .dredge/project.yaml configuration file
//   - --json: Machine-readable output where supported
//   - -q: Suppress progress output
//   - --no-color: Disable colored output
//
// Commands:
//   - init: Create .dredge/project.yaml configuration
//   - ingest: Ingest dump files into the local index
//   - status: Show index status
//   - search: Semantic search over indexed constructs
//   - reset: Delete local index data (destructive!)
//   - completion: Generate shell completion script
func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .dredge/project.yaml (default: ./.dredge/project.yaml)")
		jsonOut     = flag.Bool("json", false, "Machine-readable output where supported")
		quiet       = flag.Bool("q", false, "Suppress progress output")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		verbose     = flag.Int("v", 0, "Log verbosity (0 = info, 1+ = debug)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Dredge - Dump Ingestion Engine

Dredge ingests multi-gigabyte decompiled C# dump files, extracts type
declarations (classes, interfaces, enums, structs, delegates), embeds
them, and stores everything in a local SQLite index for semantic search.

Usage:
  dredge <command> [options]

Commands:
  init        Create .dredge/project.yaml configuration
  ingest      Ingest dump files into the local index
  status      Show index status
  search      Semantic search over indexed constructs
  reset       Delete local index data (destructive!)
  completion  Generate shell completion script (bash|zsh|fish)

Global Options:
  --config    Path to .dredge/project.yaml
  --json      Machine-readable output where supported
  -q          Suppress progress output
  --no-color  Disable colored output
  --version   Show version and exit

Examples:
  dredge init                        Create configuration interactively
  dredge ingest                      Ingest dumps under the current directory
  dredge ingest dumps/ --resume      Resume an interrupted ingest
  dredge status --json               Output status as JSON
  dredge search "damage calculation"
  dredge completion bash             Generate bash completion script

Getting Started:
  1. Initialize configuration:  dredge init
  2. Ingest your dump files:    dredge ingest
  3. Check the index:           dredge status
  4. Search it:                 dredge search "<query>"

Data Storage:
  The index is stored in ./.dredge/index.db
  Checkpoints are stored in ./.dredge/checkpoints/

Environment Variables:
  DREDGE_EMBEDDING_PROVIDER  Embedding provider override (mock, ollama, openai)
  OLLAMA_BASE_URL            Ollama URL (default: http://localhost:11434)
  OLLAMA_EMBED_MODEL         Embedding model (default: nomic-embed-text)

For detailed command help: dredge <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("dredge version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	globals := GlobalFlags{
		JSON:    *jsonOut,
		Quiet:   *quiet || *jsonOut, // JSON output implies quiet
		NoColor: *noColor,
		Verbose: *verbose,
	}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs)
	case "ingest":
		runIngest(cmdArgs, *configPath, globals)
	case "status":
		runStatus(cmdArgs, *configPath, globals)
	case "search":
		runSearch(cmdArgs, *configPath, globals)
	case "reset":
		runReset(cmdArgs, *configPath, globals)
	case "completion":
		runCompletion(cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
