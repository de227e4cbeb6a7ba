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

package ingestion

import (
	"log/slog"
	"strings"
)

// =============================================================================
// DUMP PARSER (simplified, no tree-sitter)
// =============================================================================

// DumpParser extracts type declarations from decompiled C# dumps using
// line-oriented matching. It tracks namespace blocks by brace depth and
// recognizes class, interface, enum, struct and delegate declarations
// together with the attribute lines that precede them.
//
// Dumper output is frequently malformed (truncated blocks, stray braces),
// so the parser never fails a whole file: unrecognizable regions are
// skipped and recoverable problems are counted in ParseResult.SyntaxErrors.
type DumpParser struct {
	logger  *slog.Logger
	content string
}

// NewDumpParser creates a line-oriented dump parser.
func NewDumpParser(logger *slog.Logger) *DumpParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &DumpParser{logger: logger}
}

// LoadContent replaces the parser's working text.
func (p *DumpParser) LoadContent(content string) {
	p.content = content
}

// Reset clears loaded content for reuse through the pool.
func (p *DumpParser) Reset() error {
	p.content = ""
	return nil
}

// ExtractAllConstructs parses the loaded text and returns every construct
// found in it.
func (p *DumpParser) ExtractAllConstructs() (*ParseResult, error) {
	result := &ParseResult{
		Constructs:   make([]Construct, 0),
		CountsByKind: make(map[ConstructKind]int),
	}
	if p.content == "" {
		return result, nil
	}

	lines := strings.Split(p.content, "\n")

	var (
		namespaces  []namespaceFrame
		pendingNS   string // namespace seen, opening brace not yet
		fileScopeNS string // "namespace X;" form, applies to the rest of the file
		pendingAttr []string
		depth       int
	)

	currentNamespace := func() string {
		parts := make([]string, 0, len(namespaces)+1)
		if fileScopeNS != "" {
			parts = append(parts, fileScopeNS)
		}
		for _, f := range namespaces {
			parts = append(parts, f.name)
		}
		return strings.Join(parts, ".")
	}

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])

		// Skip comments
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") ||
			strings.HasPrefix(trimmed, "*") {
			continue
		}

		// Attribute lines precede the declaration they decorate.
		if strings.HasPrefix(trimmed, "[") {
			pendingAttr = append(pendingAttr, trimmed)
			continue
		}

		// Detect namespace: block form or file-scoped form.
		if strings.HasPrefix(trimmed, "namespace ") || trimmed == "namespace" {
			name := namespaceName(trimmed)
			if name == "" {
				result.SyntaxErrors++
				p.logger.Debug("parser.dump.namespace_unnamed", "line", i+1)
			} else if strings.HasSuffix(trimmed, ";") {
				fileScopeNS = name
			} else {
				pendingNS = name
			}
		}

		if kind, name, ok := matchDeclaration(trimmed); ok {
			start := i
			var end int
			if kind == KindDelegate && !strings.Contains(trimmed, "{") {
				// Delegates are single statements, no body.
				end = i
			} else {
				var closed bool
				end, closed = findBlockEnd(lines, i)
				if !closed {
					result.SyntaxErrors++
					p.logger.Debug("parser.dump.unclosed_block",
						"name", name, "line", i+1)
				}
			}

			c := Construct{
				Name:       name,
				Kind:       kind,
				Namespace:  currentNamespace(),
				Source:     strings.Join(lines[start:end+1], "\n"),
				StartLine:  start + 1,
				EndLine:    end + 1,
				Attributes: pendingAttr,
			}
			result.Constructs = append(result.Constructs, c)
			result.CountsByKind[kind]++
			pendingAttr = nil

			// Scanning continues inside the block so nested types are
			// extracted as their own constructs.
		} else if trimmed != "" && trimmed != "{" && trimmed != "}" {
			// Anything else breaks the attribute -> declaration adjacency.
			pendingAttr = nil
		}

		// Brace bookkeeping for namespace scoping.
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				if pendingNS != "" {
					namespaces = append(namespaces, namespaceFrame{name: pendingNS, depth: depth})
					pendingNS = ""
				}
			case '}':
				depth--
				for len(namespaces) > 0 && namespaces[len(namespaces)-1].depth > depth {
					namespaces = namespaces[:len(namespaces)-1]
				}
			}
		}
	}

	if pendingNS != "" {
		// "namespace X" at EOF with no block.
		result.SyntaxErrors++
	}

	return result, nil
}

type namespaceFrame struct {
	name  string
	depth int // brace depth inside the namespace block
}

// namespaceName extracts the dotted name from a namespace line,
// tolerating both "namespace A.B {" and file-scoped "namespace A.B;".
func namespaceName(trimmed string) string {
	rest := strings.TrimPrefix(trimmed, "namespace")
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, "{")
	rest = strings.TrimSuffix(strings.TrimSpace(rest), ";")
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// csharpModifiers are declaration modifiers stripped before keyword matching.
var csharpModifiers = map[string]bool{
	"public":    true,
	"private":   true,
	"protected": true,
	"internal":  true,
	"static":    true,
	"sealed":    true,
	"abstract":  true,
	"partial":   true,
	"readonly":  true,
	"unsafe":    true,
	"new":       true,
	"ref":       true,
}

// matchDeclaration reports whether a trimmed line declares a type-level
// construct, and if so its kind and name.
func matchDeclaration(trimmed string) (ConstructKind, string, bool) {
	tokens := strings.Fields(trimmed)
	idx := 0
	for idx < len(tokens) && csharpModifiers[tokens[idx]] {
		idx++
	}
	if idx >= len(tokens) {
		return "", "", false
	}

	switch tokens[idx] {
	case "class":
		return declName(tokens, idx, KindClass)
	case "interface":
		return declName(tokens, idx, KindInterface)
	case "enum":
		return declName(tokens, idx, KindEnum)
	case "struct":
		return declName(tokens, idx, KindStruct)
	case "delegate":
		// delegate <return type> Name(args);
		if idx+2 >= len(tokens) {
			return "", "", false
		}
		name := cleanTypeName(tokens[idx+2])
		if name == "" {
			return "", "", false
		}
		return KindDelegate, name, true
	}
	return "", "", false
}

func declName(tokens []string, idx int, kind ConstructKind) (ConstructKind, string, bool) {
	if idx+1 >= len(tokens) {
		return "", "", false
	}
	name := cleanTypeName(tokens[idx+1])
	if name == "" {
		return "", "", false
	}
	return kind, name, true
}

// cleanTypeName strips generic arguments, base-type lists and block openers
// from a declaration token: "Dict<K," -> "Dict", "Player:" -> "Player".
func cleanTypeName(token string) string {
	if i := strings.IndexAny(token, "<:{("); i >= 0 {
		token = token[:i]
	}
	return strings.TrimSpace(token)
}

// findBlockEnd returns the index of the line closing the block opened at or
// after start, and whether the block was actually closed before EOF.
func findBlockEnd(lines []string, start int) (int, bool) {
	depth := 0
	opened := false
	for i := start; i < len(lines); i++ {
		depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if strings.Contains(lines[i], "{") {
			opened = true
		}
		if opened && depth <= 0 {
			return i, true
		}
	}
	return len(lines) - 1, false
}
