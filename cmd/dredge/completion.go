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
	"flag"
	"fmt"
	"os"

	"github.com/kraklabs/dredge/internal/errors"
)

// bashCompletionTemplate is the bash completion script for Dredge.
const bashCompletionTemplate = `#!/bin/bash

# Bash completion script for Dredge
# Installation:
#   source <(dredge completion bash)
#   Or add to ~/.bashrc:
#   echo 'source <(dredge completion bash)' >> ~/.bashrc

_dredge_completion() {
    local cur prev commands
    commands="init ingest status search reset completion"

    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    # Global flags
    if [[ ${cur} == -* ]] ; then
        COMPREPLY=( $(compgen -W "--version --config --json -q --no-color" -- ${cur}) )
        return 0
    fi

    # First argument: complete commands
    if [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
        return 0
    fi

    # Command-specific flag completion
    local cmd="${COMP_WORDS[1]}"
    case "${cmd}" in
        ingest)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--resume --workers --batch-strategy --parser-mode --debug --metrics-addr" -- ${cur}) )
            fi
            ;;
        status)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--json" -- ${cur}) )
            fi
            ;;
        search)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--limit --json --timeout" -- ${cur}) )
            fi
            ;;
        reset)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--yes" -- ${cur}) )
            fi
            ;;
        completion)
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            fi
            ;;
    esac
}

complete -F _dredge_completion dredge
`

// zshCompletionTemplate is the zsh completion script for Dredge.
const zshCompletionTemplate = `#compdef dredge

# Zsh completion script for Dredge
# Installation:
#   1. Ensure compinit is loaded (add to ~/.zshrc if not present):
#      autoload -U compinit; compinit
#   2. Save this script to a directory in your fpath:
#      dredge completion zsh > "${fpath[1]}/_dredge"
#   3. Reload completions:
#      rm -f ~/.zcompdump; compinit

_dredge() {
    local -a commands
    commands=(
        'init:Create .dredge/project.yaml configuration'
        'ingest:Ingest dump files into the local index'
        'status:Show index status'
        'search:Semantic search over indexed constructs'
        'reset:Delete local index data'
        'completion:Generate shell completion script'
    )

    _arguments -C \
        '(- *)--version[Show version and exit]' \
        '--config[Path to .dredge/project.yaml]:config file:_files -g "*.yaml"' \
        '--json[Machine-readable output]' \
        '-q[Suppress progress output]' \
        '--no-color[Disable colored output]' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                ingest)
                    _arguments \
                        '--resume[Resume an interrupted ingest]' \
                        '--workers[Concurrency bound]:workers:' \
                        '--batch-strategy[Batching strategy]:strategy:(fixed content_aware adaptive)' \
                        '--parser-mode[Parser mode]:mode:(auto simplified treesitter)' \
                        '--debug[Enable debug logging]' \
                        '--metrics-addr[Prometheus metrics address]:address:'
                    ;;
                status)
                    _arguments \
                        '--json[Output as JSON]'
                    ;;
                search)
                    _arguments \
                        '--limit[Maximum number of results]:limit:' \
                        '--json[Output as JSON]' \
                        '1:query:'
                    ;;
                reset)
                    _arguments \
                        '--yes[Skip confirmation prompt]'
                    ;;
                completion)
                    _arguments \
                        '1:shell:(bash zsh fish)'
                    ;;
            esac
            ;;
    esac
}

_dredge
`

// fishCompletionTemplate is the fish completion script for Dredge.
const fishCompletionTemplate = `# Fish completion script for Dredge
# Installation:
#   1. Load completions for current session:
#      dredge completion fish | source
#   2. Install permanently:
#      dredge completion fish > ~/.config/fish/completions/dredge.fish

# Commands
complete -c dredge -f -n "__fish_use_subcommand" -a "init" -d "Create .dredge/project.yaml configuration"
complete -c dredge -f -n "__fish_use_subcommand" -a "ingest" -d "Ingest dump files into the local index"
complete -c dredge -f -n "__fish_use_subcommand" -a "status" -d "Show index status"
complete -c dredge -f -n "__fish_use_subcommand" -a "search" -d "Semantic search over indexed constructs"
complete -c dredge -f -n "__fish_use_subcommand" -a "reset" -d "Delete local index data (destructive!)"
complete -c dredge -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"

# Global flags
complete -c dredge -l version -d "Show version and exit"
complete -c dredge -l config -d "Path to .dredge/project.yaml" -r
complete -c dredge -l json -d "Machine-readable output"
complete -c dredge -l no-color -d "Disable colored output"

# ingest command flags
complete -c dredge -n "__fish_seen_subcommand_from ingest" -l resume -d "Resume an interrupted ingest"
complete -c dredge -n "__fish_seen_subcommand_from ingest" -l workers -d "Concurrency bound" -r
complete -c dredge -n "__fish_seen_subcommand_from ingest" -l batch-strategy -d "Batching strategy" -r -f -a "fixed content_aware adaptive"
complete -c dredge -n "__fish_seen_subcommand_from ingest" -l parser-mode -d "Parser mode" -r -f -a "auto simplified treesitter"
complete -c dredge -n "__fish_seen_subcommand_from ingest" -l debug -d "Enable debug logging"
complete -c dredge -n "__fish_seen_subcommand_from ingest" -l metrics-addr -d "Prometheus metrics address" -r

# status command flags
complete -c dredge -n "__fish_seen_subcommand_from status" -l json -d "Output as JSON"

# search command flags
complete -c dredge -n "__fish_seen_subcommand_from search" -l limit -s n -d "Maximum number of results" -r
complete -c dredge -n "__fish_seen_subcommand_from search" -l json -d "Output as JSON"

# reset command flags
complete -c dredge -n "__fish_seen_subcommand_from reset" -l yes -s y -d "Skip confirmation prompt"

# completion command arguments
complete -c dredge -n "__fish_seen_subcommand_from completion" -f -a "bash" -d "Generate bash completion script"
complete -c dredge -n "__fish_seen_subcommand_from completion" -f -a "zsh" -d "Generate zsh completion script"
complete -c dredge -n "__fish_seen_subcommand_from completion" -f -a "fish" -d "Generate fish completion script"
`

// runCompletion executes the 'completion' CLI command, generating
// shell-specific completion scripts for bash, zsh, or fish shells.
//
// Usage:
//
//	dredge completion [bash|zsh|fish]
//
// Examples:
//
//	dredge completion bash                      Output bash completion script
//	source <(dredge completion bash)            Load bash completions now
//	dredge completion fish | source             Load fish completions now
func runCompletion(args []string) {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: dredge completion <shell>

Description:
  Generate shell completion scripts for bash, zsh, or fish.

Arguments:
  shell    Shell type: bash, zsh, or fish (required)

Examples:
  # Load bash completions in current shell
  source <(dredge completion bash)

  # Install bash completions permanently (Linux)
  dredge completion bash > /etc/bash_completion.d/dredge

  # Install zsh completions
  dredge completion zsh > "${fpath[1]}/_dredge"

  # Install fish completions
  dredge completion fish > ~/.config/fish/completions/dredge.fish

Notes:
  After installing completions, restart your shell or source your rc file.

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		errors.FatalError(errors.NewInputError(
			"Invalid arguments",
			"The completion command requires exactly one argument: the shell name",
			"Run 'dredge completion bash', 'dredge completion zsh', or 'dredge completion fish'",
		), false)
	}

	shell := fs.Arg(0)

	switch shell {
	case "bash":
		fmt.Print(bashCompletionTemplate)
	case "zsh":
		fmt.Print(zshCompletionTemplate)
	case "fish":
		fmt.Print(fishCompletionTemplate)
	default:
		errors.FatalError(errors.NewInputError(
			"Unsupported shell",
			fmt.Sprintf("Shell '%s' is not supported. Valid options: bash, zsh, fish", shell),
			"Run 'dredge completion bash', 'dredge completion zsh', or 'dredge completion fish'",
		), false)
	}
}
