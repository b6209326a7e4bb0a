package trustledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. It must be identical on every ledgerd instance
// sharing a database.
const advisoryLockKey = int64(2_024_061_117)

const pgEntryColumns = `idx, timestamp, record_id, action, actor, payload, data_hash, prev_hash, hash`

// PostgresLedger persists the event log to the ledger_events table.
// It implements the Ledger interface.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLedger creates a PostgresLedger backed by the given connection pool.
func NewPostgresLedger(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{pool: pool, logger: logger}
}

// EnsureGenesis inserts the genesis row if the table is empty.
func (l *PostgresLedger) EnsureGenesis(ctx context.Context) error {
	g := newGenesis()
	if _, err := l.pool.Exec(ctx,
		`INSERT INTO ledger_events (`+pgEntryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (idx) DO NOTHING`,
		g.Index, g.Timestamp, g.RecordID, g.Action, g.Actor,
		[]byte(g.Payload), g.DataHash, g.PrevHash, g.Hash,
	); err != nil {
		return fmt.Errorf("insert genesis entry: %w", err)
	}
	return nil
}

// Append implements Ledger.
// The advisory lock, tail read and insert all happen in one transaction.
func (l *PostgresLedger) Append(ctx context.Context, recordID, action, actor string, payload any) (*Entry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Released automatically when the transaction ends.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prev := &Entry{}
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM ledger_events ORDER BY idx DESC LIMIT 1",
	).Scan(&prev.Index, &prev.Hash); err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	entry, err := newEntry(prev, recordID, action, actor, payload)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_events (`+pgEntryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.Index, entry.Timestamp, entry.RecordID,
		entry.Action, entry.Actor, []byte(entry.Payload),
		entry.DataHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}

	l.logger.Debug("ledger entry appended",
		zap.Int("idx", entry.Index),
		zap.String("action", entry.Action),
		zap.String("record_id", entry.RecordID),
	)
	return entry, nil
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, index int) (*Entry, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+pgEntryColumns+` FROM ledger_events WHERE idx = $1`, index)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("index %d: %w", index, ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %d: %w", index, err)
	}
	return entry, nil
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Entries implements Ledger.
func (l *PostgresLedger) Entries(ctx context.Context, from, limit int) ([]*Entry, error) {
	if limit <= 0 {
		return l.query(ctx,
			`SELECT `+pgEntryColumns+` FROM ledger_events WHERE idx >= $1 ORDER BY idx ASC`, from)
	}
	return l.query(ctx,
		`SELECT `+pgEntryColumns+` FROM ledger_events WHERE idx >= $1 ORDER BY idx ASC LIMIT $2`, from, limit)
}

// ByRecord implements Ledger.
func (l *PostgresLedger) ByRecord(ctx context.Context, recordID string) ([]*Entry, error) {
	return l.query(ctx,
		`SELECT `+pgEntryColumns+` FROM ledger_events WHERE record_id = $1 AND idx > 0 ORDER BY idx ASC`, recordID)
}

func (l *PostgresLedger) query(ctx context.Context, sql string, args ...any) ([]*Entry, error) {
	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Verify implements Ledger. It streams all rows ordered by idx and validates
// the hash chain. O(n) in ledger length.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx,
		`SELECT `+pgEntryColumns+` FROM ledger_events ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan ledger row: %w", err)
		}
		if err := checkLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Ledger.
func (l *PostgresLedger) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM ledger_events ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get ledger root: %w", err)
	}
	return hash, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	var payload []byte
	if err := row.Scan(
		&e.Index, &e.Timestamp, &e.RecordID,
		&e.Action, &e.Actor, &payload,
		&e.DataHash, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	// timestamptz comes back in the session zone.
	e.Timestamp = e.Timestamp.UTC()
	e.Payload = payload
	return e, nil
}
