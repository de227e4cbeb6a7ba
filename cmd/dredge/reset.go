// Copyright 2026 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/dredge/internal/errors"
	"github.com/kraklabs/dredge/internal/ui"
)

// runReset executes the 'reset' CLI command, deleting the local index and
// all checkpoints. The configuration file is kept.
//
// Flags:
//   - --yes/-y: Skip the confirmation prompt
//
// Examples:
//
//	dredge reset          Prompt before deleting
//	dredge reset --yes    Delete without prompting (for scripts)
func runReset(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	yes := fs.BoolP("yes", "y", false, "Skip confirmation prompt")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dredge reset [options]

Deletes the local index database and all checkpoints. This cannot be
undone. The .dredge/project.yaml configuration is kept.

Options:
%s`, fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot load configuration",
			err.Error(),
			"Run 'dredge init' to create a configuration",
			err,
		), globals.JSON)
	}

	cwd, err := os.Getwd()
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !*yes {
		fmt.Printf("This deletes the index and checkpoints for project '%s'. Continue? [y/N]: ", cfg.ProjectID)
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			os.Exit(0)
		}
	}

	indexPath := IndexPath(cwd)
	removed := false
	// SQLite leaves WAL sidecar files next to the database.
	for _, path := range []string{indexPath, indexPath + "-wal", indexPath + "-shm"} {
		if err := os.Remove(path); err == nil {
			removed = true
		} else if !os.IsNotExist(err) {
			errors.FatalError(errors.NewPermissionError(
				"Cannot delete index",
				fmt.Sprintf("Removing %s failed: %v", path, err),
				"Check file permissions and that no ingest is running",
				err,
			), globals.JSON)
		}
	}

	if err := os.RemoveAll(CheckpointDir(cwd)); err != nil {
		ui.Warningf("Cannot remove checkpoints: %v", err)
	}

	if removed {
		ui.Successf("Index data for project '%s' deleted", cfg.ProjectID)
	} else {
		fmt.Println("Nothing to delete.")
	}
}
