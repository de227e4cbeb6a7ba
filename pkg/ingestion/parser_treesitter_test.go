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

package ingestion

import (
	"strings"
	"testing"
)

func parseTreeSitter(t *testing.T, content string) *ParseResult {
	t.Helper()
	p := NewTreeSitterParser(testLogger())
	p.LoadContent(content)
	res, err := p.ExtractAllConstructs()
	if err != nil {
		t.Fatalf("ExtractAllConstructs: %v", err)
	}
	return res
}

func TestTreeSitterParserAllKinds(t *testing.T) {
	content := strings.Join([]string{
		"namespace Game.Combat",
		"{",
		"\tpublic class Unit",
		"\t{",
		"\t\tpublic int Health;",
		"\t}",
		"\tpublic interface ITargetable",
		"\t{",
		"\t}",
		"\tpublic enum DamageType",
		"\t{",
		"\t\tPhysical,",
		"\t\tMagical,",
		"\t}",
		"\tpublic struct HitInfo",
		"\t{",
		"\t}",
		"\tpublic delegate void DamageHandler(Unit target, int amount);",
		"}",
		"",
	}, "\n")

	res := parseTreeSitter(t, content)
	if len(res.Constructs) != 5 {
		t.Fatalf("constructs = %d, want 5", len(res.Constructs))
	}
	for kind, want := range map[ConstructKind]int{
		KindClass: 1, KindInterface: 1, KindEnum: 1, KindStruct: 1, KindDelegate: 1,
	} {
		if res.CountsByKind[kind] != want {
			t.Errorf("counts[%s] = %d, want %d", kind, res.CountsByKind[kind], want)
		}
	}

	unit := findConstruct(t, res, "Unit")
	if unit.Namespace != "Game.Combat" {
		t.Errorf("Unit namespace = %q, want Game.Combat", unit.Namespace)
	}
	if unit.StartLine != 3 || unit.EndLine != 6 {
		t.Errorf("Unit lines = %d..%d, want 3..6", unit.StartLine, unit.EndLine)
	}
	if !strings.Contains(unit.Source, "public int Health;") {
		t.Error("Unit source lost its body")
	}
}

func TestTreeSitterParserFileScopedNamespace(t *testing.T) {
	content := "namespace Game.Core;\n\npublic class Session\n{\n}\n"
	res := parseTreeSitter(t, content)
	if got := findConstruct(t, res, "Session").Namespace; got != "Game.Core" {
		t.Errorf("namespace = %q, want Game.Core", got)
	}
}

func TestTreeSitterParserNestedTypes(t *testing.T) {
	content := strings.Join([]string{
		"namespace Game",
		"{",
		"\tpublic class Outer",
		"\t{",
		"\t\tpublic enum Inner",
		"\t\t{",
		"\t\t\tOne,",
		"\t\t}",
		"\t}",
		"}",
	}, "\n")

	res := parseTreeSitter(t, content)
	if len(res.Constructs) != 2 {
		t.Fatalf("constructs = %d, want 2 (outer and nested)", len(res.Constructs))
	}
	inner := findConstruct(t, res, "Inner")
	if inner.Kind != KindEnum || inner.Namespace != "Game" {
		t.Errorf("Inner = %s in %q, want enum in Game", inner.Kind, inner.Namespace)
	}
}

func TestTreeSitterParserAttributes(t *testing.T) {
	content := strings.Join([]string{
		"[Serializable]",
		"[Obsolete(\"use UnitV2\")]",
		"public class Unit",
		"{",
		"}",
	}, "\n")

	res := parseTreeSitter(t, content)
	unit := findConstruct(t, res, "Unit")
	if len(unit.Attributes) != 2 {
		t.Fatalf("attributes = %v, want 2 entries", unit.Attributes)
	}
	if unit.Attributes[0] != "[Serializable]" {
		t.Errorf("first attribute = %q", unit.Attributes[0])
	}
}

func TestTreeSitterParserMalformedDump(t *testing.T) {
	// Truncated mid-declaration; the well-formed class must still come out.
	content := "namespace Game\n{\n\tpublic class Fine\n\t{\n\t}\n\tpublic class Broken {{{\n"
	res := parseTreeSitter(t, content)
	if res.SyntaxErrors == 0 {
		t.Error("SyntaxErrors = 0, want parse errors counted")
	}
	findConstruct(t, res, "Fine")
}

func TestTreeSitterParserReset(t *testing.T) {
	p := NewTreeSitterParser(testLogger())
	p.LoadContent("public class X\n{\n}\n")
	if err := p.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	res, err := p.ExtractAllConstructs()
	if err != nil {
		t.Fatalf("extract after reset: %v", err)
	}
	if len(res.Constructs) != 0 {
		t.Error("Reset did not clear loaded content")
	}
}

func TestNewParserForMode(t *testing.T) {
	simplified, err := NewParserForMode(ParserModeSimplified, testLogger())
	if err != nil {
		t.Fatalf("simplified: %v", err)
	}
	if _, ok := simplified.(*DumpParser); !ok {
		t.Errorf("simplified mode parser = %T, want *DumpParser", simplified)
	}

	ts, err := NewParserForMode(ParserModeTreeSitter, testLogger())
	if err != nil {
		t.Fatalf("treesitter: %v", err)
	}
	if _, ok := ts.(*TreeSitterParser); !ok {
		t.Errorf("treesitter mode parser = %T, want *TreeSitterParser", ts)
	}

	auto, err := NewParserForMode(ParserModeAuto, testLogger())
	if err != nil {
		t.Fatalf("auto: %v", err)
	}
	if auto == nil {
		t.Fatal("auto mode returned no parser")
	}

	if _, err := NewParserForMode(ParserMode("weird"), testLogger()); err == nil {
		t.Error("unknown mode did not error")
	}
}
