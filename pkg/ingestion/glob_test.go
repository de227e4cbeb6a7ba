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
	"testing"
)

func TestMatchesGlob_BasicPatterns(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		pattern string
		want    bool
	}{
		// Exact match
		{"exact match", "Unit.cs", "Unit.cs", true},
		{"exact no match", "Unit.cs", "Item.cs", false},

		// * wildcard (single segment)
		{"star prefix", "Unit.cs", "*.cs", true},
		{"star suffix", "Assembly-CSharp", "Assembly-*", true},
		{"star middle", "Unit_Patch_Gen.cs", "Unit_*_Gen.cs", true},
		{"star no match ext", "Unit.dll", "*.cs", false},

		// ** wildcard (any depth)
		{"doublestar prefix any depth", "Game/Combat/Unit.cs", "**/*.cs", true},
		{"doublestar prefix root", "Unit.cs", "**/*.cs", true},
		{"doublestar suffix", "Library/ScriptAssemblies/Main.cs", "Library/**", true},
		{"doublestar suffix nested", "Library/a/b/c/d.cs", "Library/**", true},
		{"doublestar full path", "obj/Debug/net48/Assembly.cs", "obj/**", true},

		// ? wildcard (single char)
		{"question single", "Unit.cs", "Uni?.cs", true},
		{"question no match", "Unitt.cs", "Uni?.cs", false},

		// Character classes
		{"char class match", "Unit.cs", "Unit.[ct]s", true},
		{"char class no match", "Unit.cs", "Unit.[ab]s", false},
		{"char range match", "Chunk1.cs", "Chunk[0-9].cs", true},
		{"char range no match", "Chunka.cs", "Chunk[0-9].cs", false},
		{"negated class match", "Unit.cs", "Unit.[!ab]s", true},
		{"negated class no match", "Unit.as", "Unit.[!ab]s", false},

		// Common exclude patterns for decompiled dumps
		{".git dir exact", ".git", ".git/**", true},
		{".git subdir", ".git/objects/pack", ".git/**", true},
		{"obj deep", "obj/Debug/net48/file.cs", "obj/**", true},
		{"Library deep", "Library/PackageCache/pkg/runtime.cs", "Library/**", true},
		{"Temp match", "Temp/bin/output.cs", "Temp/**", true},

		// Pattern without ** can match anywhere
		{"implicit prefix", "Game/Unit.cs", "Unit.cs", true},
		{"implicit prefix nested", "a/b/c/Unit.cs", "Unit.cs", true},

		// Directory patterns
		{"dir pattern", "Plugins/Editor/Tool.cs", "Plugins/**", true},
		{"dir pattern exact", "Plugins", "Plugins/**", true},

		// bin/** must match the directory at any depth
		{"bin nested dir", "Assembly-CSharp/sub/bin", "bin/**", true},
		{"bin exact", "bin", "bin/**", true},
		{"bin nested file", "Assembly-CSharp/bin/Game.dll", "bin/**", true},
		{"bindings no match", "Assembly-CSharp/bindings/foo", "bin/**", false},

		// Complex patterns
		{"complex nested", "Game/Combat/UnitTests/Unit.Tests.cs", "**/*.Tests.cs", true},
		{"complex no match", "Game/Combat/Unit.cs", "**/*.Tests.cs", false},

		// Edge cases
		{"empty path", "", "**", true},
		{"empty pattern", "Unit.cs", "", false},
		{"path with dots", "Game.Core.Unit.cs", "*.cs", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesGlob(tt.path, tt.pattern)
			if got != tt.want {
				t.Errorf("matchesGlob(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestMatchesAnyGlob_CommonExcludePatterns(t *testing.T) {
	patterns := []string{
		".git/**",
		"obj/**",
		"bin/**",
		"Library/**",
		"Temp/**",
		"*.dll",
		"*.pdb",
		"*.meta",
	}

	excludedPaths := []string{
		".git/objects/pack/file",
		".git/HEAD",
		"obj/Debug/net48/Assembly-CSharp.cs",
		"bin/Release/Game.exe",
		"Library/ScriptAssemblies/Main.cs",
		"Library/PackageCache/com.unity.ugui/Runtime/UI/Button.cs",
		"Temp/StagingArea/Data/file",
		"Game.dll",
		"Managed/Assembly-CSharp.dll",
		"Game.pdb",
		"Assets/Scripts/Unit.cs.meta",
	}

	includedPaths := []string{
		"Assembly-CSharp/Game/Unit.cs",
		"Assembly-CSharp/Game/Combat/DamageCalculator.cs",
		"Scripts/Inventory/Item.cs",
		"README.md",
		".gitignore",     // Not in .git directory
		"git/file.cs",    // Not .git
		"Libraries/X.cs", // Not Library
	}

	for _, path := range excludedPaths {
		if !matchesAnyGlob(path, patterns) {
			t.Errorf("matchesAnyGlob(%q) = false, want true", path)
		}
	}

	for _, path := range includedPaths {
		if matchesAnyGlob(path, patterns) {
			t.Errorf("matchesAnyGlob(%q) = true, want false", path)
		}
	}
}

func TestMatchCharClass(t *testing.T) {
	tests := []struct {
		name  string
		c     byte
		class string
		want  bool
	}{
		{"simple match", 'a', "abc", true},
		{"simple no match", 'd', "abc", false},
		{"range match", 'e', "a-z", true},
		{"range no match", 'E', "a-z", false},
		{"digit range", '5', "0-9", true},
		{"negated match", 'd', "!abc", true},
		{"negated no match", 'a', "!abc", false},
		{"caret negation", 'd', "^abc", true},
		{"mixed", 'f', "a-z0-9", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchCharClass(tt.c, tt.class)
			if got != tt.want {
				t.Errorf("matchCharClass(%c, %q) = %v, want %v", tt.c, tt.class, got, tt.want)
			}
		})
	}
}

func TestMatchGlobPattern_Complex(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		pattern string
		want    bool
	}{
		// Multiple wildcards
		{"multi star", "Game/Combat/Unit.cs", "Game/*/*.cs", true},
		{"multi star deep", "a/b/c/d.cs", "a/*/c/*.cs", true},

		// ** in middle
		{"doublestar middle", "Game/Combat/Skills/Fireball.cs", "Game/**/Fireball.cs", true},
		{"doublestar middle deep", "a/b/c/d/e/f.cs", "a/**/f.cs", true},

		// Mixed wildcards
		{"mixed wildcards", "dump_data/chunk_1.json", "dump_*/*_?.json", true},

		// Trailing patterns
		{"file in dir", "Game/Unit.cs", "Game/*", true},
		{"nested file", "Game/Combat/Unit.cs", "Game/*/*", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchGlobPattern(tt.path, tt.pattern)
			if got != tt.want {
				t.Errorf("matchGlobPattern(%q, %q) = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}
