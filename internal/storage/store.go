// Package storage defines the durable store contract and its implementations.
//
// Every mutating workflow operation runs inside RunInTx: the mutation and its
// audit event become visible together or not at all, and writes to the same
// entity id are serialized. View gives a consistent read snapshot for the
// metrics aggregator.
package storage

import (
	"context"

	"dutyguard/internal/audit"
	"dutyguard/internal/domain"
)

// ReadTx is a consistent read view over committed state.
type ReadTx interface {
	FindTicket(ctx context.Context, id string) (domain.ReviewTicket, error)
	ListTickets(ctx context.Context) ([]domain.ReviewTicket, error)
	FindBatch(ctx context.Context, id string) (domain.PilotBatch, error)
	ListBatches(ctx context.Context) ([]domain.PilotBatch, error)
	FindPacket(ctx context.Context, id string) (domain.ClaimPacket, error)
	ListPackets(ctx context.Context) ([]domain.ClaimPacket, error)
	// ListAudit returns ledger entries in commit order. limit <= 0 means all.
	ListAudit(ctx context.Context, limit int) ([]audit.Event, error)
}

// Tx extends the read view with staged writes. Nothing staged is visible
// outside the transaction until RunInTx commits.
type Tx interface {
	ReadTx
	SaveTicket(ctx context.Context, ticket domain.ReviewTicket) error
	SaveBatch(ctx context.Context, batch domain.PilotBatch) error
	SavePacket(ctx context.Context, packet domain.ClaimPacket) error
	// AppendAudit stages a ledger entry. Seq, hashes, and (when unset) the
	// timestamp are assigned at commit so the chain stays linear.
	AppendAudit(ctx context.Context, event audit.Event) error
}

// Store is the durable persistence boundary of the workflow core.
type Store interface {
	// RunInTx executes fn as one atomic unit. key is the entity id whose
	// writes must be serialized; concurrent calls with the same key are
	// mutually exclusive. A non-nil error from fn discards all staged writes.
	RunInTx(ctx context.Context, key string, fn func(tx Tx) error) error

	// View executes fn against one consistent snapshot. fn must not call
	// back into RunInTx.
	View(ctx context.Context, fn func(tx ReadTx) error) error
}
