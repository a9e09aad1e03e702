// Package audit defines the append-only event ledger. One event is committed
// atomically with every state-changing operation; events are never mutated or
// deleted. Each event carries the SHA-256 hash of its predecessor so tampering
// with history is detectable.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubjectKind names the entity type an event refers to.
type SubjectKind string

const (
	SubjectTicket         SubjectKind = "ticket"
	SubjectBatch          SubjectKind = "batch"
	SubjectPacket         SubjectKind = "packet"
	SubjectClassification SubjectKind = "classification"
)

// Actions recorded by the workflow core. Every mutating operation emits
// exactly one of these.
const (
	ActionClassificationIssued = "classification_issued"
	ActionTicketDecided        = "ticket_decided"
	ActionBatchOnboarded       = "pilot_batch_onboarded"
	ActionPacketGenerated      = "claim_packet_generated"
)

// Event is one ledger entry. Seq, PrevHash, and Hash are assigned by the store
// at commit time under the ledger lock; everything else is set by the emitting
// service.
type Event struct {
	Seq         int64           `json:"seq"`
	ID          string          `json:"event_id"`
	SubjectID   string          `json:"subject_id"`
	SubjectKind SubjectKind     `json:"subject_kind"`
	Action      string          `json:"action"`
	Actor       string          `json:"actor"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload_snapshot,omitempty"`
	PrevHash    string          `json:"previous_hash"`
	Hash        string          `json:"event_hash"`
}

// New builds an unsealed event. Payload values that fail to marshal are
// recorded as an error string rather than dropped: an audit entry with a
// degraded payload beats a missing one.
func New(kind SubjectKind, subjectID, action, actor string, payload any) Event {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"marshal_error": err.Error()})
	}
	return Event{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		SubjectKind: kind,
		Action:      action,
		Actor:       actor,
		Payload:     raw,
	}
}

// Seal assigns sequence, timestamp when unset, and the chain hashes. Stores
// call this while holding the ledger lock so the chain is linear.
func Seal(e *Event, seq int64, prevHash string, now time.Time) {
	e.Seq = seq
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	e.PrevHash = prevHash
	e.Hash = chainHash(*e)
}

// Verify walks the chain and reports the first break, if any.
func Verify(events []Event) error {
	prev := ""
	for _, e := range events {
		if e.PrevHash != prev {
			return fmt.Errorf("audit chain broken at seq %d: prev hash mismatch", e.Seq)
		}
		if chainHash(e) != e.Hash {
			return fmt.Errorf("audit chain broken at seq %d: event hash mismatch", e.Seq)
		}
		prev = e.Hash
	}
	return nil
}

func chainHash(e Event) string {
	// Hash covers everything except the hash itself.
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s|%s|%s",
		e.Seq, e.ID, e.SubjectID, e.SubjectKind, e.Action, e.Actor,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.PrevHash)
	h.Write(e.Payload)
	return hex.EncodeToString(h.Sum(nil))
}
