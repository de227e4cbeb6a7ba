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
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/dredge/internal/bootstrap"
)

// initFlags holds parsed flags for the init command.
type initFlags struct {
	force, nonInteractive                    bool
	projectID, embeddingProvider             string
	embeddingURL, embeddingModel, parserMode string
}

// runInit executes the 'init' CLI command, creating a .dredge/project.yaml
// configuration file and an empty index database.
//
// It creates the configuration directory, generates a default configuration,
// and optionally prompts the user for customization in interactive mode.
//
// Flags:
//   - --force: Overwrite existing configuration (default: false)
//   - -y: Non-interactive mode, use all defaults (default: false)
//   - --project-id: Project identifier (default: directory name)
//   - --embedding-provider: Embedding provider (mock, ollama, openai)
//   - --embedding-url: Embedding provider base URL
//   - --embedding-model: Embedding model name
//   - --parser-mode: Parser mode (auto, simplified, treesitter)
//
// Examples:
//
//	dredge init                         Interactive setup
//	dredge init -y                      Use all defaults
//	dredge init --embedding-provider ollama
func runInit(args []string) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !flags.force {
		fmt.Fprintf(os.Stderr, "Error: %s already exists. Use --force to overwrite.\n", configPath)
		os.Exit(1)
	}

	cfg := createInitConfig(cwd, flags)
	reader := bufio.NewReader(os.Stdin)

	if !flags.nonInteractive {
		runInteractiveConfig(reader, cfg)
	}

	saveInitConfig(cwd, configPath, cfg)

	if _, err := bootstrap.InitProject(bootstrap.ProjectConfig{
		ProjectID: cfg.ProjectID,
		Root:      cwd,
	}, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot initialize index: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", IndexPath(cwd))

	printNextSteps()
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.BoolVar(&f.nonInteractive, "y", false, "Non-interactive mode (use defaults)")
	fs.StringVar(&f.projectID, "project-id", "", "Project identifier")
	fs.StringVar(&f.embeddingProvider, "embedding-provider", "", "Embedding provider (mock, ollama, openai)")
	fs.StringVar(&f.embeddingURL, "embedding-url", "", "Embedding provider base URL")
	fs.StringVar(&f.embeddingModel, "embedding-model", "", "Embedding model name")
	fs.StringVar(&f.parserMode, "parser-mode", "", "Parser mode (auto, simplified, treesitter)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dredge init [options]

Creates .dredge/project.yaml configuration and an empty index database.

Examples:
  dredge init                              # Interactive setup
  dredge init -y                           # Non-interactive with defaults
  dredge init --embedding-provider ollama
  dredge init --parser-mode simplified

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

func createInitConfig(cwd string, f initFlags) *Config {
	pid := f.projectID
	if pid == "" {
		pid = filepath.Base(cwd)
	}
	cfg := DefaultConfig(pid)
	if f.embeddingProvider != "" {
		cfg.Embedding.Provider = f.embeddingProvider
	}
	if f.embeddingURL != "" {
		cfg.Embedding.BaseURL = f.embeddingURL
	}
	if f.embeddingModel != "" {
		cfg.Embedding.Model = f.embeddingModel
	}
	if f.parserMode != "" {
		cfg.Ingest.ParserMode = f.parserMode
	}
	return cfg
}

func runInteractiveConfig(reader *bufio.Reader, cfg *Config) {
	fmt.Println("Dredge Project Configuration")
	fmt.Println("============================")
	fmt.Println()

	cfg.ProjectID = prompt(reader, "Project ID", cfg.ProjectID)

	fmt.Println()
	fmt.Println("Embedding Providers: mock, ollama, openai")
	cfg.Embedding.Provider = prompt(reader, "Embedding provider", cfg.Embedding.Provider)
	if cfg.Embedding.Provider == "ollama" || cfg.Embedding.Provider == "openai" {
		cfg.Embedding.BaseURL = prompt(reader, "Provider URL", cfg.Embedding.BaseURL)
		cfg.Embedding.Model = prompt(reader, "Embedding model", cfg.Embedding.Model)
	}

	fmt.Println()
	fmt.Println("Parser Modes: auto, simplified, treesitter")
	cfg.Ingest.ParserMode = prompt(reader, "Parser mode", cfg.Ingest.ParserMode)
	fmt.Println()
}

func saveInitConfig(cwd, configPath string, cfg *Config) {
	dredgeDir := ConfigDir(cwd)
	if err := os.MkdirAll(dredgeDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create .dredge directory: %v\n", err)
		os.Exit(1)
	}
	if err := SaveConfig(cfg, configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot save configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", configPath)
	addToGitignore(cwd)
}

func printNextSteps() {
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit .dredge/project.yaml if needed")
	fmt.Println("  2. Run 'dredge ingest' to ingest your dump files")
	fmt.Println("  3. Run 'dredge status' to verify the index")
}

// prompt displays an interactive prompt and reads user input from stdin.
//
// If the user presses Enter without providing input, the defaultValue is
// returned.
func prompt(reader *bufio.Reader, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

// addToGitignore adds .dredge/ to the project's .gitignore file if not already
// present. If .gitignore does not exist or cannot be modified, the function
// silently returns.
func addToGitignore(dir string) {
	gitignorePath := filepath.Join(dir, ".gitignore")

	content, err := os.ReadFile(gitignorePath) //nolint:gosec // G304: gitignorePath built from project dir
	if err != nil {
		return
	}

	lines := strings.Split(string(content), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == ".dredge/" || line == ".dredge" || line == "/.dredge/" || line == "/.dredge" {
			return
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0600) //nolint:gosec // G304: gitignorePath built from project dir
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}

	_, _ = f.WriteString("\n# Dredge index data\n.dredge/\n")
	fmt.Println("Added .dredge/ to .gitignore")
}
