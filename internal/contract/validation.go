// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"os"
	"strconv"

	"github.com/kraklabs/dredge/pkg/storage"
)

const (
	// DefaultSoftLimitBytes is the baseline soft limit for batch content.
	DefaultSoftLimitBytes = 64 << 20 // 64 MiB

	// DocumentHashMaxBytes is the maximum length for the document_hash field.
	DocumentHashMaxBytes = 128
)

// SoftLimitBytes returns the effective soft limit for total batch content.
// Controlled via env DREDGE_SOFT_LIMIT_BYTES; falls back to DefaultSoftLimitBytes.
func SoftLimitBytes() int {
	if v := os.Getenv("DREDGE_SOFT_LIMIT_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultSoftLimitBytes
}

// ValidationResult represents the result of a validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

// ValidateRow checks a document row before insertion: the idempotency key
// must be present and bounded, and the row must carry content.
func ValidateRow(row *storage.Row) *ValidationResult {
	if row == nil {
		return &ValidationResult{Message: "row is nil"}
	}
	if row.DocumentHash == "" {
		return &ValidationResult{Message: "document_hash is required"}
	}
	if len(row.DocumentHash) > DocumentHashMaxBytes {
		return &ValidationResult{Message: "document_hash exceeds maximum length"}
	}
	if row.Content == "" {
		return &ValidationResult{Message: "content is empty"}
	}
	return &ValidationResult{OK: true}
}

// ValidateBatchContent checks the total content size of a batch against
// the soft limit.
func ValidateBatchContent(totalBytes int) *ValidationResult {
	if totalBytes > SoftLimitBytes() {
		return &ValidationResult{
			Message: "batch content exceeds soft limit",
		}
	}
	return &ValidationResult{OK: true}
}
