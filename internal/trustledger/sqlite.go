package trustledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// sqliteSchemaVersion is stored in PRAGMA user_version.
//
//	1 - ledger_events with payload column
const sqliteSchemaVersion = 1

const sqliteEntryColumns = `idx, timestamp, record_id, action, actor, payload, data_hash, prev_hash, hash`

// SQLiteLedger persists the event log to a single SQLite file.
// It implements the Ledger interface.
type SQLiteLedger struct {
	db     *sql.DB
	logger *zap.Logger
	mu     sync.Mutex // serialises Append
}

// OpenSQLite creates or opens the database at path, applies pragmas and the
// schema, and writes the genesis entry when the log is empty. Use ":memory:"
// for a throwaway log.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps a ":memory:" database alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set user_version: %w", err)
	}

	l := &SQLiteLedger{db: db, logger: logger}
	if err := l.ensureGenesis(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the database handle.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) ensureGenesis(ctx context.Context) error {
	g := newGenesis()
	if _, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger_events (`+sqliteEntryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.Index, g.Timestamp.Format(time.RFC3339Nano), g.RecordID, g.Action, g.Actor,
		[]byte(g.Payload), g.DataHash, g.PrevHash, g.Hash,
	); err != nil {
		return fmt.Errorf("insert genesis entry: %w", err)
	}
	return nil
}

// Append implements Ledger.
func (l *SQLiteLedger) Append(ctx context.Context, recordID, action, actor string, payload any) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prev := &Entry{}
	if err := tx.QueryRowContext(ctx,
		"SELECT idx, hash FROM ledger_events ORDER BY idx DESC LIMIT 1",
	).Scan(&prev.Index, &prev.Hash); err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}

	entry, err := newEntry(prev, recordID, action, actor, payload)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_events (`+sqliteEntryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Index, entry.Timestamp.Format(time.RFC3339Nano), entry.RecordID,
		entry.Action, entry.Actor, []byte(entry.Payload),
		entry.DataHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
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
func (l *SQLiteLedger) Get(ctx context.Context, index int) (*Entry, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+sqliteEntryColumns+` FROM ledger_events WHERE idx = ?`, index)
	e, err := scanSQLiteEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index %d: %w", index, ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %d: %w", index, err)
	}
	return e, nil
}

// Len implements Ledger.
func (l *SQLiteLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return n, nil
}

// Entries implements Ledger.
func (l *SQLiteLedger) Entries(ctx context.Context, from, limit int) ([]*Entry, error) {
	// SQLite treats a negative LIMIT as no limit.
	if limit <= 0 {
		limit = -1
	}
	return l.query(ctx,
		`SELECT `+sqliteEntryColumns+` FROM ledger_events WHERE idx >= ? ORDER BY idx ASC LIMIT ?`, from, limit)
}

// ByRecord implements Ledger.
func (l *SQLiteLedger) ByRecord(ctx context.Context, recordID string) ([]*Entry, error) {
	return l.query(ctx,
		`SELECT `+sqliteEntryColumns+` FROM ledger_events WHERE record_id = ? AND idx > 0 ORDER BY idx ASC`, recordID)
}

// Verify implements Ledger.
func (l *SQLiteLedger) Verify(ctx context.Context) error {
	entries, err := l.Entries(ctx, 0, 0)
	if err != nil {
		return err
	}
	var prev *Entry
	for _, curr := range entries {
		if err := checkLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

// Root implements Ledger.
func (l *SQLiteLedger) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.db.QueryRowContext(ctx,
		"SELECT hash FROM ledger_events ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get ledger root: %w", err)
	}
	return hash, nil
}

func (l *SQLiteLedger) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(s sqlScanner) (*Entry, error) {
	e := &Entry{}
	var ts string
	var payload []byte
	if err := s.Scan(
		&e.Index, &ts, &e.RecordID,
		&e.Action, &e.Actor, &payload,
		&e.DataHash, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	e.Timestamp = t.UTC()
	e.Payload = payload
	return e, nil
}
