package domain

import "github.com/google/uuid"

// Prefixed ids keep entity kinds distinguishable in logs and the audit trail.
func NewTicketID() string { return "review_" + uuid.NewString() }
func NewBatchID() string  { return "pilot_" + uuid.NewString() }
func NewPacketID() string { return "claim_" + uuid.NewString() }
