package models

import (
	"strings"
	"time"
)

// MissingPersonsScope is the singleton scope value for the global
// missing-children index.
const MissingPersonsScope = "missing_persons"

const loyaltyScopePrefix = "loyalty:"

// LoyaltyScope returns the per-tenant loyalty-index scope identifier.
func LoyaltyScope(tenantID string) string {
	return loyaltyScopePrefix + tenantID
}

// TenantIDFromLoyaltyScope extracts the tenant ID back out of a scope
// produced by LoyaltyScope, for consumers (the compile task handler) that
// only have the scope string to work from.
func TenantIDFromLoyaltyScope(scope string) (tenantID string, ok bool) {
	if !strings.HasPrefix(scope, loyaltyScopePrefix) {
		return "", false
	}
	return strings.TrimPrefix(scope, loyaltyScopePrefix), true
}

// IndexArtifact is an immutable, hash-sealed compiled recognition database.
type IndexArtifact struct {
	ID          string    `json:"id"`
	Scope       string    `json:"scope"`
	Version     int64     `json:"version"`
	RecordCount int       `json:"record_count"`
	Hash        string    `json:"hash"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
}

// SidecarRecord is one row of the sidecar JSON's records array, mapping a
// compiled index row back to display metadata.
type SidecarRecord struct {
	Idx      int                    `json:"idx"`
	ID       string                 `json:"id"`
	Metadata map[string]interface{} `json:"-"`
}

// Sidecar is the full JSON sidecar written alongside an index file.
type Sidecar struct {
	Version     int64           `json:"version"`
	Scope       string          `json:"scope"`
	RecordCount int             `json:"record_count"`
	Hash        string          `json:"hash"`
	CompiledAt  time.Time       `json:"compiled_at"`
	Records     []SidecarRecord `json:"records"`
}
