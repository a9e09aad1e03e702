package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"dutyguard/internal/audit"
	"dutyguard/internal/domain"
	dErrors "dutyguard/pkg/domain-errors"
)

// SQLStore implements Store over database/sql. Supported drivers: "postgres"
// (lib/pq) and "sqlite3" (mattn/go-sqlite3). Entities are stored as JSON
// documents beside the columns queries filter on; the audit ledger is a plain
// table keyed by the commit sequence.
//
// Per-entity write serialization: Postgres uses a transaction-scoped advisory
// lock on the entity key. SQLite allows a single writer, and a deferred
// transaction that loses the write-lock upgrade fails with SQLITE_BUSY instead
// of waiting, so writers in this process queue on writeMu; the loser of a race
// then re-reads committed state and observes the other writer's outcome.
type SQLStore struct {
	db      *sql.DB
	driver  string
	writeMu sync.Mutex
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS review_tickets (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS pilot_batches (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS claim_packets (
	id         TEXT PRIMARY KEY,
	batch_id   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_events (
	seq          BIGINT PRIMARY KEY,
	id           TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	subject_kind TEXT NOT NULL,
	action       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	ts           TIMESTAMPTZ NOT NULL,
	payload      JSONB,
	prev_hash    TEXT NOT NULL,
	hash         TEXT NOT NULL
);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS review_tickets (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	doc        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pilot_batches (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	doc        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS claim_packets (
	id         TEXT PRIMARY KEY,
	batch_id   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	doc        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS audit_events (
	seq          INTEGER PRIMARY KEY,
	id           TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	subject_kind TEXT NOT NULL,
	action       TEXT NOT NULL,
	actor        TEXT NOT NULL,
	ts           TIMESTAMP NOT NULL,
	payload      TEXT,
	prev_hash    TEXT NOT NULL,
	hash         TEXT NOT NULL
);
`

// EnsureSchema creates the tables when missing.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	ddl := schemaSQLite
	if s.driver == "postgres" {
		ddl = schemaPostgres
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "ensure schema")
	}
	return nil
}

func (s *SQLStore) RunInTx(ctx context.Context, key string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	if s.driver != "postgres" {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	// Read committed, not serializable: the advisory locks below serialize
	// conflicting writers, and the ledger tail read in AppendAudit must see
	// rows committed after this transaction began. A serializable snapshot
	// taken here would read a stale tail and collide on seq.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if s.driver == "postgres" {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "acquire entity lock")
		}
	}

	if err := fn(&sqlTx{q: tx, driver: s.driver}); err != nil {
		if isWriteRace(err) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent write lost")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if isWriteRace(err) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent write lost")
		}
		return dErrors.Wrap(err, dErrors.CodeStorage, "commit transaction")
	}
	return nil
}

// isWriteRace reports whether err is the driver's signature of a lost write
// race rather than a genuine storage fault: SQLITE_BUSY/SQLITE_LOCKED from a
// cross-process sqlite writer, or a Postgres serialization failure or
// deadlock abort.
func isWriteRace(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "40001" || pe.Code == "40P01"
	}
	return false
}

func (s *SQLStore) View(ctx context.Context, fn func(tx ReadTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.driver == "postgres"})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "begin read transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()
	return fn(&sqlTx{q: tx, driver: s.driver})
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlTx struct {
	q      querier
	driver string
}

func (t *sqlTx) FindTicket(ctx context.Context, id string) (domain.ReviewTicket, error) {
	var ticket domain.ReviewTicket
	err := scanDoc(t.q.QueryRowContext(ctx, `SELECT doc FROM review_tickets WHERE id = $1`, id), &ticket)
	return ticket, err
}

func (t *sqlTx) ListTickets(ctx context.Context) ([]domain.ReviewTicket, error) {
	return queryDocs[domain.ReviewTicket](ctx, t.q, `SELECT doc FROM review_tickets ORDER BY created_at DESC`)
}

func (t *sqlTx) FindBatch(ctx context.Context, id string) (domain.PilotBatch, error) {
	var batch domain.PilotBatch
	err := scanDoc(t.q.QueryRowContext(ctx, `SELECT doc FROM pilot_batches WHERE id = $1`, id), &batch)
	return batch, err
}

func (t *sqlTx) ListBatches(ctx context.Context) ([]domain.PilotBatch, error) {
	return queryDocs[domain.PilotBatch](ctx, t.q, `SELECT doc FROM pilot_batches ORDER BY created_at DESC`)
}

func (t *sqlTx) FindPacket(ctx context.Context, id string) (domain.ClaimPacket, error) {
	var packet domain.ClaimPacket
	err := scanDoc(t.q.QueryRowContext(ctx, `SELECT doc FROM claim_packets WHERE id = $1`, id), &packet)
	return packet, err
}

func (t *sqlTx) ListPackets(ctx context.Context) ([]domain.ClaimPacket, error) {
	return queryDocs[domain.ClaimPacket](ctx, t.q, `SELECT doc FROM claim_packets ORDER BY created_at DESC`)
}

func (t *sqlTx) ListAudit(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `SELECT seq, id, subject_id, subject_kind, action, actor, ts, payload, prev_hash, hash
		FROM audit_events ORDER BY seq`
	rows, err := t.q.QueryContext(ctx, query)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "list audit events")
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var payload sql.NullString
		if err := rows.Scan(&e.Seq, &e.ID, &e.SubjectID, &e.SubjectKind, &e.Action, &e.Actor,
			&e.Timestamp, &payload, &e.PrevHash, &e.Hash); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "scan audit event")
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "iterate audit events")
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (t *sqlTx) SaveTicket(ctx context.Context, ticket domain.ReviewTicket) error {
	doc, err := json.Marshal(ticket)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "marshal ticket")
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO review_tickets (id, status, created_at, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, doc = excluded.doc`,
		ticket.ID, string(ticket.Status), ticket.CreatedAt, string(doc))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "save ticket")
	}
	return nil
}

func (t *sqlTx) SaveBatch(ctx context.Context, batch domain.PilotBatch) error {
	doc, err := json.Marshal(batch)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "marshal batch")
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO pilot_batches (id, created_at, doc) VALUES ($1, $2, $3)`,
		batch.ID, batch.CreatedAt, string(doc))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "save batch")
	}
	return nil
}

func (t *sqlTx) SavePacket(ctx context.Context, packet domain.ClaimPacket) error {
	doc, err := json.Marshal(packet)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "marshal packet")
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO claim_packets (id, batch_id, created_at, doc) VALUES ($1, $2, $3, $4)`,
		packet.ID, packet.BatchID, packet.GeneratedAt, string(doc))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "save packet")
	}
	return nil
}

// AppendAudit seals the event inside the transaction: the ledger tail is read
// under a ledger-wide lock so the hash chain stays linear across entities.
func (t *sqlTx) AppendAudit(ctx context.Context, event audit.Event) error {
	if t.driver == "postgres" {
		// One well-known lock id serializes chain extension.
		if _, err := t.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(815100)`); err != nil {
			return dErrors.Wrap(err, dErrors.CodeStorage, "acquire ledger lock")
		}
	}

	var lastSeq int64
	var lastHash string
	err := t.q.QueryRowContext(ctx,
		`SELECT seq, hash FROM audit_events ORDER BY seq DESC LIMIT 1`).Scan(&lastSeq, &lastHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return dErrors.Wrap(err, dErrors.CodeStorage, "read ledger tail")
	}

	audit.Seal(&event, lastSeq+1, lastHash, time.Now().UTC())

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO audit_events (seq, id, subject_id, subject_kind, action, actor, ts, payload, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.Seq, event.ID, event.SubjectID, string(event.SubjectKind), event.Action, event.Actor,
		event.Timestamp, string(event.Payload), event.PrevHash, event.Hash)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "append audit event")
	}
	return nil
}

func scanDoc(row *sql.Row, v any) error {
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return dErrors.Wrap(err, dErrors.CodeStorage, "scan document")
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorage, "decode document")
	}
	return nil
}

func queryDocs[T any](ctx context.Context, q querier, query string) ([]T, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "query documents")
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "scan document")
		}
		var v T
		if err := json.Unmarshal([]byte(doc), &v); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeStorage, "decode document")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "iterate documents")
	}
	return out, nil
}
