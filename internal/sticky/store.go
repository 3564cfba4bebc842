// Package sticky persists notifications posted with the sticky flag set,
// so they can be replayed to a client the next time it registers.
package sticky

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Notice is one persisted notification.
type Notice struct {
	RowID int64
	UID   int
	Type  int
	MsgID int
	Data  []byte
}

// Store is a SQLite-backed table of sticky notices.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the notices database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sticky: open %q: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS notices (
		uid   INTEGER NOT NULL,
		type  INTEGER NOT NULL,
		msgid INTEGER NOT NULL,
		data  BLOB
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sticky: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Insert records a new sticky notice.
func (s *Store) Insert(ctx context.Context, uid, typ, msgid int, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notices (uid, type, msgid, data) VALUES (?, ?, ?, ?)`,
		uid, typ, msgid, data)
	if err != nil {
		return fmt.Errorf("sticky: insert: %w", err)
	}
	return nil
}

// Notices returns every persisted notice.
func (s *Store) Notices(ctx context.Context) ([]Notice, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT rowid, uid, type, msgid, data FROM notices`)
	if err != nil {
		return nil, fmt.Errorf("sticky: query: %w", err)
	}
	defer rows.Close()

	var notices []Notice
	for rows.Next() {
		var n Notice
		if err := rows.Scan(&n.RowID, &n.UID, &n.Type, &n.MsgID, &n.Data); err != nil {
			return nil, fmt.Errorf("sticky: scan: %w", err)
		}
		notices = append(notices, n)
	}
	return notices, rows.Err()
}

// ClearType removes every notice matching uid and typ.
func (s *Store) ClearType(ctx context.Context, uid, typ int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notices WHERE uid = ? AND type = ?`, uid, typ)
	if err != nil {
		return fmt.Errorf("sticky: clear type: %w", err)
	}
	return nil
}

// Flush removes every persisted notice.
func (s *Store) Flush(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notices`)
	if err != nil {
		return fmt.Errorf("sticky: flush: %w", err)
	}
	return nil
}

// Count returns how many notices are persisted, for tests and diagnostics.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notices`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sticky: count: %w", err)
	}
	return n, nil
}
