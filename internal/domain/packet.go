package domain

import "time"

// ClaimPacket freezes a prioritized batch snapshot for export. Immutable once
// created; a batch may have many packets and, because entries are frozen,
// regenerations carry identical content under fresh ids.
type ClaimPacket struct {
	ID              string        `json:"id"`
	BatchID         string        `json:"batch_id"`
	CustomerName    string        `json:"customer_name"`
	GeneratedAt     time.Time     `json:"generated_at"`
	EntriesSnapshot []Opportunity `json:"entries_snapshot"`
	TotalRecovery   float64       `json:"total_recovery"`
}
