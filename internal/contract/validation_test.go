// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"strings"
	"testing"

	"github.com/kraklabs/dredge/pkg/storage"
)

func TestValidateRow(t *testing.T) {
	tests := []struct {
		name string
		row  *storage.Row
		ok   bool
	}{
		{"valid", &storage.Row{DocumentHash: "abc123", Content: "public class Unit { }"}, true},
		{"nil row", nil, false},
		{"missing hash", &storage.Row{Content: "public class Unit { }"}, false},
		{"oversized hash", &storage.Row{DocumentHash: strings.Repeat("a", DocumentHashMaxBytes+1), Content: "x"}, false},
		{"empty content", &storage.Row{DocumentHash: "abc123"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateRow(tt.row)
			if got.OK != tt.ok {
				t.Errorf("ValidateRow() OK = %v, want %v (%s)", got.OK, tt.ok, got.Message)
			}
		})
	}
}

func TestValidateBatchContent(t *testing.T) {
	if res := ValidateBatchContent(1024); !res.OK {
		t.Errorf("small batch rejected: %s", res.Message)
	}
	if res := ValidateBatchContent(DefaultSoftLimitBytes + 1); res.OK {
		t.Error("oversized batch accepted")
	}
}

func TestSoftLimitBytesEnvOverride(t *testing.T) {
	t.Setenv("DREDGE_SOFT_LIMIT_BYTES", "1024")
	if got := SoftLimitBytes(); got != 1024 {
		t.Errorf("SoftLimitBytes() = %d, want 1024", got)
	}

	t.Setenv("DREDGE_SOFT_LIMIT_BYTES", "not-a-number")
	if got := SoftLimitBytes(); got != DefaultSoftLimitBytes {
		t.Errorf("SoftLimitBytes() = %d, want default on bad value", got)
	}
}
