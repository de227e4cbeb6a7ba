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
	"context"
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
)

// =============================================================================
// C# PARSER (tree-sitter)
// =============================================================================

// TreeSitterParser extracts type declarations from decompiled C# dumps using
// the tree-sitter C# grammar. Tree-sitter is error-tolerant: malformed
// regions become ERROR nodes and extraction keeps whatever parses cleanly,
// which suits dumper output better than a strict compiler front end.
type TreeSitterParser struct {
	logger  *slog.Logger
	parser  *sitter.Parser
	content []byte
}

// NewTreeSitterParser creates a parser bound to the C# grammar.
func NewTreeSitterParser(logger *slog.Logger) *TreeSitterParser {
	if logger == nil {
		logger = slog.Default()
	}
	parser := sitter.NewParser()
	parser.SetLanguage(csharp.GetLanguage())
	return &TreeSitterParser{logger: logger, parser: parser}
}

// LoadContent replaces the parser's working text.
func (p *TreeSitterParser) LoadContent(content string) {
	p.content = []byte(content)
}

// Reset clears loaded content for reuse through the pool.
func (p *TreeSitterParser) Reset() error {
	p.content = nil
	return nil
}

// ExtractAllConstructs parses the loaded text and returns every construct
// found in it.
func (p *TreeSitterParser) ExtractAllConstructs() (*ParseResult, error) {
	result := &ParseResult{
		Constructs:   make([]Construct, 0),
		CountsByKind: make(map[ConstructKind]int),
	}
	if len(p.content) == 0 {
		return result, nil
	}

	tree, err := p.parser.ParseCtx(context.Background(), nil, p.content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if rootNode.HasError() {
		if errorCount := countErrors(rootNode); errorCount > 0 {
			result.SyntaxErrors = errorCount
			p.logger.Debug("parser.treesitter.syntax_errors",
				"error_count", errorCount,
			)
		}
		// Continue extraction - tree-sitter is error-tolerant
	}

	p.walkDeclarations(rootNode, "", result)
	return result, nil
}

// walkDeclarations recursively collects type declarations, carrying the
// enclosing namespace. Nested types are collected under the namespace of
// their outermost enclosing type, matching the simplified parser.
func (p *TreeSitterParser) walkDeclarations(node *sitter.Node, namespace string, result *ParseResult) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "namespace_declaration":
			ns := joinNamespace(namespace, p.fieldText(child, "name"))
			if body := child.ChildByFieldName("body"); body != nil {
				p.walkDeclarations(body, ns, result)
			}

		case "file_scoped_namespace_declaration":
			// The node spans the rest of the file; its name child is
			// skipped by the declaration switch below.
			ns := joinNamespace(namespace, p.fieldText(child, "name"))
			p.walkDeclarations(child, ns, result)

		case "class_declaration":
			p.collectConstruct(child, KindClass, namespace, result)
		case "interface_declaration":
			p.collectConstruct(child, KindInterface, namespace, result)
		case "enum_declaration":
			p.collectConstruct(child, KindEnum, namespace, result)
		case "struct_declaration":
			p.collectConstruct(child, KindStruct, namespace, result)
		case "delegate_declaration":
			p.collectConstruct(child, KindDelegate, namespace, result)
		}
	}
}

// collectConstruct records one declaration node and then descends into its
// body so nested types are extracted as their own constructs.
func (p *TreeSitterParser) collectConstruct(node *sitter.Node, kind ConstructKind, namespace string, result *ParseResult) {
	name := p.fieldText(node, "name")
	if name == "" {
		result.SyntaxErrors++
		return
	}

	var attrs []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "attribute_list" {
			attrs = append(attrs, strings.TrimSpace(child.Content(p.content)))
		}
	}

	result.Constructs = append(result.Constructs, Construct{
		Name:       name,
		Kind:       kind,
		Namespace:  namespace,
		Source:     node.Content(p.content),
		StartLine:  int(node.StartPoint().Row) + 1,
		EndLine:    int(node.EndPoint().Row) + 1,
		Attributes: attrs,
	})
	result.CountsByKind[kind]++

	if body := node.ChildByFieldName("body"); body != nil {
		p.walkDeclarations(body, namespace, result)
	}
}

func (p *TreeSitterParser) fieldText(node *sitter.Node, field string) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Content(p.content)
}

func joinNamespace(outer, inner string) string {
	if outer == "" {
		return inner
	}
	if inner == "" {
		return outer
	}
	return outer + "." + inner
}

// countErrors counts ERROR and missing nodes in the parse tree.
func countErrors(node *sitter.Node) int {
	count := 0
	if node.IsError() || node.IsMissing() {
		count++
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		count += countErrors(node.Child(i))
	}
	return count
}

// NewParserForMode builds a parser for the configured mode. Auto probes the
// tree-sitter grammar with a trivial parse and falls back to the simplified
// parser if it fails, so ingestion always has a working parser.
func NewParserForMode(mode ParserMode, logger *slog.Logger) (Parser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch mode {
	case ParserModeSimplified:
		return NewDumpParser(logger), nil
	case ParserModeTreeSitter:
		return NewTreeSitterParser(logger), nil
	case ParserModeAuto, "":
		ts := NewTreeSitterParser(logger)
		if err := probeParser(ts); err != nil {
			logger.Warn("parser.treesitter.unavailable", "error", err)
			return NewDumpParser(logger), nil
		}
		return ts, nil
	default:
		return nil, fmt.Errorf("unknown parser mode: %q", mode)
	}
}

func probeParser(p Parser) error {
	p.LoadContent("class Probe { }")
	res, err := p.ExtractAllConstructs()
	if err != nil {
		return err
	}
	if len(res.Constructs) != 1 {
		return fmt.Errorf("probe extracted %d constructs, want 1", len(res.Constructs))
	}
	return p.Reset()
}
