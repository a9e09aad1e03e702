package storage

import (
	"context"
	"sync"
	"time"

	"dutyguard/internal/audit"
	"dutyguard/internal/domain"
	dErrors "dutyguard/pkg/domain-errors"
)

// Per-entity write serialization uses sharded mutexes keyed by an FNV-1a hash
// of the entity id, so unrelated entities do not contend on one global lock.
const numShards = 128

// defaultTxTimeout bounds a transaction when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

// MemoryStore keeps all state in process. It favors clarity over performance
// and is the reference implementation for the atomic commit semantics the SQL
// store must match.
type MemoryStore struct {
	shards [numShards]sync.Mutex

	mu      sync.RWMutex
	tickets map[string]domain.ReviewTicket
	batches map[string]domain.PilotBatch
	packets map[string]domain.ClaimPacket
	ledger  []audit.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]domain.ReviewTicket),
		batches: make(map[string]domain.PilotBatch),
		packets: make(map[string]domain.ClaimPacket),
	}
}

func (s *MemoryStore) RunInTx(ctx context.Context, key string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	shard := &s.shards[fnvHash(key)%numShards]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

// commit makes all staged writes visible in one step. The ledger lock also
// covers seq assignment and hash chaining, so event order equals commit order.
func (s *MemoryStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range tx.tickets {
		s.tickets[id] = t
	}
	for id, b := range tx.batches {
		s.batches[id] = b
	}
	for id, p := range tx.packets {
		s.packets[id] = p
	}

	now := time.Now().UTC()
	for _, e := range tx.events {
		prev := ""
		if n := len(s.ledger); n > 0 {
			prev = s.ledger[n-1].Hash
		}
		audit.Seal(&e, int64(len(s.ledger)+1), prev, now)
		s.ledger = append(s.ledger, e)
	}
}

func (s *MemoryStore) View(_ context.Context, fn func(tx ReadTx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memView{store: s})
}

// memView reads committed state while the caller holds the store read lock.
type memView struct {
	store *MemoryStore
}

func (v *memView) FindTicket(_ context.Context, id string) (domain.ReviewTicket, error) {
	if t, ok := v.store.tickets[id]; ok {
		return t, nil
	}
	return domain.ReviewTicket{}, ErrNotFound
}

func (v *memView) ListTickets(_ context.Context) ([]domain.ReviewTicket, error) {
	out := make([]domain.ReviewTicket, 0, len(v.store.tickets))
	for _, t := range v.store.tickets {
		out = append(out, t)
	}
	return out, nil
}

func (v *memView) FindBatch(_ context.Context, id string) (domain.PilotBatch, error) {
	if b, ok := v.store.batches[id]; ok {
		b.Entries = append([]domain.PilotEntry{}, b.Entries...)
		return b, nil
	}
	return domain.PilotBatch{}, ErrNotFound
}

func (v *memView) ListBatches(_ context.Context) ([]domain.PilotBatch, error) {
	out := make([]domain.PilotBatch, 0, len(v.store.batches))
	for _, b := range v.store.batches {
		b.Entries = append([]domain.PilotEntry{}, b.Entries...)
		out = append(out, b)
	}
	return out, nil
}

func (v *memView) FindPacket(_ context.Context, id string) (domain.ClaimPacket, error) {
	if p, ok := v.store.packets[id]; ok {
		p.EntriesSnapshot = append([]domain.Opportunity{}, p.EntriesSnapshot...)
		return p, nil
	}
	return domain.ClaimPacket{}, ErrNotFound
}

func (v *memView) ListPackets(_ context.Context) ([]domain.ClaimPacket, error) {
	out := make([]domain.ClaimPacket, 0, len(v.store.packets))
	for _, p := range v.store.packets {
		p.EntriesSnapshot = append([]domain.Opportunity{}, p.EntriesSnapshot...)
		out = append(out, p)
	}
	return out, nil
}

func (v *memView) ListAudit(_ context.Context, limit int) ([]audit.Event, error) {
	events := v.store.ledger
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]audit.Event{}, events...), nil
}

// memTx stages writes and reads through to committed state for anything not
// yet staged. Staged state is invisible to other transactions until commit.
type memTx struct {
	store   *MemoryStore
	tickets map[string]domain.ReviewTicket
	batches map[string]domain.PilotBatch
	packets map[string]domain.ClaimPacket
	events  []audit.Event
}

func (t *memTx) FindTicket(ctx context.Context, id string) (domain.ReviewTicket, error) {
	if tk, ok := t.tickets[id]; ok {
		return tk, nil
	}
	return t.committed().FindTicket(ctx, id)
}

func (t *memTx) ListTickets(ctx context.Context) ([]domain.ReviewTicket, error) {
	out, err := t.committed().ListTickets(ctx)
	if err != nil {
		return nil, err
	}
	return overlay(out, t.tickets, func(tk domain.ReviewTicket) string { return tk.ID }), nil
}

func (t *memTx) FindBatch(ctx context.Context, id string) (domain.PilotBatch, error) {
	if b, ok := t.batches[id]; ok {
		return b, nil
	}
	return t.committed().FindBatch(ctx, id)
}

func (t *memTx) ListBatches(ctx context.Context) ([]domain.PilotBatch, error) {
	out, err := t.committed().ListBatches(ctx)
	if err != nil {
		return nil, err
	}
	return overlay(out, t.batches, func(b domain.PilotBatch) string { return b.ID }), nil
}

func (t *memTx) FindPacket(ctx context.Context, id string) (domain.ClaimPacket, error) {
	if p, ok := t.packets[id]; ok {
		return p, nil
	}
	return t.committed().FindPacket(ctx, id)
}

func (t *memTx) ListPackets(ctx context.Context) ([]domain.ClaimPacket, error) {
	out, err := t.committed().ListPackets(ctx)
	if err != nil {
		return nil, err
	}
	return overlay(out, t.packets, func(p domain.ClaimPacket) string { return p.ID }), nil
}

func (t *memTx) ListAudit(ctx context.Context, limit int) ([]audit.Event, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return (&memView{store: t.store}).ListAudit(ctx, limit)
}

func (t *memTx) SaveTicket(_ context.Context, ticket domain.ReviewTicket) error {
	if t.tickets == nil {
		t.tickets = make(map[string]domain.ReviewTicket)
	}
	t.tickets[ticket.ID] = ticket
	return nil
}

func (t *memTx) SaveBatch(_ context.Context, batch domain.PilotBatch) error {
	if t.batches == nil {
		t.batches = make(map[string]domain.PilotBatch)
	}
	batch.Entries = append([]domain.PilotEntry{}, batch.Entries...)
	t.batches[batch.ID] = batch
	return nil
}

func (t *memTx) SavePacket(_ context.Context, packet domain.ClaimPacket) error {
	if t.packets == nil {
		t.packets = make(map[string]domain.ClaimPacket)
	}
	t.packets[packet.ID] = packet
	return nil
}

func (t *memTx) AppendAudit(_ context.Context, event audit.Event) error {
	t.events = append(t.events, event)
	return nil
}

// committed wraps reads of already-visible state in the store read lock.
func (t *memTx) committed() *lockedView {
	return &lockedView{store: t.store}
}

type lockedView struct {
	store *MemoryStore
}

func (v *lockedView) FindTicket(ctx context.Context, id string) (domain.ReviewTicket, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return (&memView{store: v.store}).FindTicket(ctx, id)
}

func (v *lockedView) ListTickets(ctx context.Context) ([]domain.ReviewTicket, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return (&memView{store: v.store}).ListTickets(ctx)
}

func (v *lockedView) FindBatch(ctx context.Context, id string) (domain.PilotBatch, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return (&memView{store: v.store}).FindBatch(ctx, id)
}

func (v *lockedView) ListBatches(ctx context.Context) ([]domain.PilotBatch, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return (&memView{store: v.store}).ListBatches(ctx)
}

func (v *lockedView) FindPacket(ctx context.Context, id string) (domain.ClaimPacket, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return (&memView{store: v.store}).FindPacket(ctx, id)
}

func (v *lockedView) ListPackets(ctx context.Context) ([]domain.ClaimPacket, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return (&memView{store: v.store}).ListPackets(ctx)
}

func overlay[T any](committed []T, staged map[string]T, id func(T) string) []T {
	if len(staged) == 0 {
		return committed
	}
	seen := make(map[string]bool, len(committed))
	for i, item := range committed {
		k := id(item)
		if st, ok := staged[k]; ok {
			committed[i] = st
		}
		seen[k] = true
	}
	for k, st := range staged {
		if !seen[k] {
			committed = append(committed, st)
		}
	}
	return committed
}

// fnvHash uses FNV-1a for shard selection.
func fnvHash(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
