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

// Parser is the contract the pipeline drives. Instances are pooled and
// reused across chunks and files. Reset returns an instance to a clean
// state; callers treat a reset failure as grounds to discard the instance,
// never as a fatal error.
type Parser interface {
	// LoadContent replaces the parser's working text.
	LoadContent(content string)

	// ExtractAllConstructs parses the loaded text and returns every
	// construct found in it.
	ExtractAllConstructs() (*ParseResult, error)

	// Reset clears loaded content and scratch state for reuse.
	Reset() error
}

// Ensure implementations satisfy the interface
var _ Parser = (*DumpParser)(nil)
var _ Parser = (*TreeSitterParser)(nil)

// ParserFactory constructs fresh parser instances for the pool.
type ParserFactory func() (Parser, error)

// ConstructKind classifies a type-level declaration in a decompiled dump.
type ConstructKind string

const (
	KindClass     ConstructKind = "class"
	KindInterface ConstructKind = "interface"
	KindEnum      ConstructKind = "enum"
	KindStruct    ConstructKind = "struct"
	KindDelegate  ConstructKind = "delegate"
)

// Construct is one declaration extracted from a dump: a class, interface,
// enum, struct or delegate, with the attribute lines that precede it.
type Construct struct {
	Name       string        `json:"name"`
	Kind       ConstructKind `json:"kind"`
	Namespace  string        `json:"namespace,omitempty"`
	Source     string        `json:"source"`
	StartLine  int           `json:"start_line"`
	EndLine    int           `json:"end_line"`
	Attributes []string      `json:"attributes,omitempty"`
}

// QualifiedName is the construct's identity for deduplication: the same
// type seen in two overlapping chunks merges into one document.
func (c *Construct) QualifiedName() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

// ParseResult is the outcome of one extraction pass.
type ParseResult struct {
	Constructs   []Construct           `json:"constructs"`
	CountsByKind map[ConstructKind]int `json:"counts_by_kind"`

	// SyntaxErrors counts recoverable parse errors. Decompiled dumps are
	// frequently malformed, so extraction is error-tolerant and keeps
	// whatever it can recognize.
	SyntaxErrors int `json:"syntax_errors,omitempty"`
}

// ParserMode determines which parser implementation to use.
type ParserMode string

const (
	// ParserModeTreeSitter uses Tree-sitter for AST-based extraction.
	// Requires CGO and the C# grammar.
	ParserModeTreeSitter ParserMode = "treesitter"

	// ParserModeSimplified uses line-oriented matching (fallback).
	// Does not require CGO; good enough for well-formed dumper output.
	ParserModeSimplified ParserMode = "simplified"

	// ParserModeAuto selects the best available parser: Tree-sitter when
	// it initializes, simplified otherwise.
	ParserModeAuto ParserMode = "auto"
)

// DefaultParserMode is the default parser mode.
// Set to Auto to prefer Tree-sitter when available.
const DefaultParserMode = ParserModeAuto
