package dto

import (
	"encoding/json"
	"time"

	"venuepos/internal/infrastructure/storage/postgres"
)

// AuditEntryResponse is one settlement trail entry.
type AuditEntryResponse struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FromAuditEntry converts a trail entry to its API representation.
// Compressed payloads were already inflated by the audit service.
func FromAuditEntry(e postgres.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        e.ID.String(),
		Action:    string(e.Action),
		Changes:   e.Changes,
		CreatedAt: e.CreatedAt,
	}
}
