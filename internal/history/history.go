// Package history provides SQLite-based persistence for chat messages.
// The database file and its table are created on Open.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/chatgpt-local/internal/logger"
)

const schema = `CREATE TABLE IF NOT EXISTS chat_message (
    ID INTEGER PRIMARY KEY AUTOINCREMENT,
    CID TEXT NOT NULL,
    MID TEXT NOT NULL,
    CONTENT TEXT NOT NULL,
    SEND INTEGER NOT NULL,
    CREATETIME DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_message_cid ON chat_message (CID, CREATETIME);`

const columns = `ID, CID, MID, CONTENT, SEND, CREATETIME`

// Store is a handle on the chat_message table. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps every worker in line.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chat_message table: %w", err)
	}
	logger.L.Info("sqlite history DB initialized", "path", path)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert persists row and returns its assigned ID. A zero CreateTime is
// replaced with the current time.
func (s *Store) Insert(ctx context.Context, row Row) (int64, error) {
	if row.CreateTime.IsZero() {
		row.CreateTime = time.Now()
	}
	send := 0
	if row.Send {
		send = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_message (CID, MID, CONTENT, SEND, CREATETIME) VALUES (?,?,?,?,?);`,
		row.CID, row.MID, row.Content, send, row.CreateTime.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert message %s: %w", row.MID, err)
	}
	return res.LastInsertId()
}

// Conversations returns the first message of every conversation, oldest
// conversation first.
func (s *Store) Conversations(ctx context.Context) ([]Row, error) {
	return s.query(ctx, `SELECT `+columns+` FROM chat_message
        WHERE ID IN (SELECT MIN(ID) FROM chat_message GROUP BY CID)
        ORDER BY CREATETIME ASC, ID ASC;`)
}

// Messages returns every message of a conversation in chronological order.
func (s *Store) Messages(ctx context.Context, cid string) ([]Row, error) {
	return s.query(ctx, `SELECT `+columns+` FROM chat_message
        WHERE CID = ? ORDER BY CREATETIME ASC, ID ASC;`, cid)
}

// DeleteConversation removes every message of a conversation and reports how
// many rows were deleted.
func (s *Store) DeleteConversation(ctx context.Context, cid string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_message WHERE CID = ?;`, cid)
	if err != nil {
		return 0, fmt.Errorf("delete conversation %s: %w", cid, err)
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r    Row
			send int
		)
		if err := rows.Scan(&r.ID, &r.CID, &r.MID, &r.Content, &send, &r.CreateTime); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		r.Send = send == 1
		out = append(out, r)
	}
	return out, rows.Err()
}
