// Package ledger implements the append-only hash-chain ledger described in
// spec §4.7: a small relational store, one writer at a time, many
// concurrent readers, chained via entry_hash = SHA-256("{prev}|{capsule}|{t_run}").
package ledger

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"spe/internal/hasher"
)

// GenesisPrevHash is the prev_hash recorded for the first entry in a
// chain: 64 ASCII zero characters.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one row of the ledger, per spec §3.
type Entry struct {
	ID          int64
	TRun        int64
	CapsuleHash string
	PrevHash    string
	EntryHash   string
}

// Ledger wraps a SQLite-backed hash chain. The zero value is not usable;
// construct with Open.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path and ensures its
// schema exists.
func Open(path string) (*Ledger, error) {
	// _txlock=exclusive makes db.Begin issue BEGIN EXCLUSIVE, so Append's
	// tip read and insert hold the write lock together.
	db, err := sql.Open("sqlite3", path+"?_txlock=exclusive")
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer model, per spec §5

	l := &Ledger{db: db}
	if err := l.init(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) init() error {
	const schema = `
CREATE TABLE IF NOT EXISTS ledger (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	t_run INTEGER NOT NULL,
	capsule_hash TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	entry_hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_id ON ledger(id);
`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("ledger: init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// ChainHash computes entry_hash = SHA-256("{prev}|{capsuleHash}|{tRun}"),
// per spec §4.7 step 2.
func ChainHash(prevHash, capsuleHash string, tRun int64) string {
	payload := fmt.Sprintf("%s|%s|%d", prevHash, capsuleHash, tRun)
	return hasher.SumHex([]byte(payload))
}

// Append inserts a new entry chained onto the current tip. The read of
// the tip and the insert happen inside one exclusive transaction, so
// concurrent appends cannot observe or produce an inconsistent chain,
// per spec §5.
func (l *Ledger) Append(capsuleHash string, tRun int64) (Entry, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: begin append: %w", err)
	}
	defer tx.Rollback()

	prevHash := GenesisPrevHash
	row := tx.QueryRow("SELECT entry_hash FROM ledger ORDER BY id DESC LIMIT 1")
	if err := row.Scan(&prevHash); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("ledger: read tip: %w", err)
	}

	entryHash := ChainHash(prevHash, capsuleHash, tRun)

	res, err := tx.Exec(
		"INSERT INTO ledger (t_run, capsule_hash, prev_hash, entry_hash) VALUES (?, ?, ?, ?)",
		tRun, capsuleHash, prevHash, entryHash,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: read inserted id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("ledger: commit append: %w", err)
	}

	return Entry{
		ID:          id,
		TRun:        tRun,
		CapsuleHash: capsuleHash,
		PrevHash:    prevHash,
		EntryHash:   entryHash,
	}, nil
}

// All returns every entry ordered by id ascending.
func (l *Ledger) All() ([]Entry, error) {
	rows, err := l.db.Query("SELECT id, t_run, capsule_hash, prev_hash, entry_hash FROM ledger ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("ledger: query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TRun, &e.CapsuleHash, &e.PrevHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate entries: %w", err)
	}
	return entries, nil
}

// Tip returns the most recent entry, or ok=false if the ledger is empty.
func (l *Ledger) Tip() (entry Entry, ok bool, err error) {
	row := l.db.QueryRow("SELECT id, t_run, capsule_hash, prev_hash, entry_hash FROM ledger ORDER BY id DESC LIMIT 1")
	if err := row.Scan(&entry.ID, &entry.TRun, &entry.CapsuleHash, &entry.PrevHash, &entry.EntryHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("ledger: read tip: %w", err)
	}
	return entry, true, nil
}

// Verify walks the chain and confirms every entry's prev_hash and
// entry_hash, per spec §4.7. An empty ledger is invalid in the context
// of a bundle, which must carry at least one entry.
func Verify(entries []Entry) bool {
	if len(entries) == 0 {
		return false
	}
	expected := GenesisPrevHash
	for _, e := range entries {
		if e.PrevHash != expected {
			return false
		}
		if ChainHash(expected, e.CapsuleHash, e.TRun) != e.EntryHash {
			return false
		}
		expected = e.EntryHash
	}
	return true
}
