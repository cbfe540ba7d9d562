package server

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore mirrors the original backend schema: a users table and a messages
// table read back ordered by timestamp.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("sqlite store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			username TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp_ns INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS messages_timestamp ON messages (timestamp_ns, id);
	`)
	return errors.Wrap(err, "sqlite store: migrate")
}

func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (username, password) VALUES (?, ?)`, username, passwordHash)
	if err != nil {
		return errors.Wrap(err, "sqlite store: create user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlite store: create user")
	}
	if n == 0 {
		return ErrUserExists
	}
	return nil
}

func (s *SQLiteStore) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password FROM users WHERE username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "sqlite store: get user")
	}
	return hash, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, message StoredMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, username, message, timestamp_ns) VALUES (?, ?, ?, ?)`,
		message.ID, message.Username, message.Message, message.CreatedAt.UnixNano())
	return errors.Wrap(err, "sqlite store: append message")
}

func (s *SQLiteStore) Messages(ctx context.Context) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT message_id, username, message, timestamp_ns FROM messages ORDER BY timestamp_ns, id`)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: list messages")
	}
	defer rows.Close()

	messages := make([]StoredMessage, 0)
	for rows.Next() {
		var message StoredMessage
		var ns int64
		if err := rows.Scan(&message.ID, &message.Username, &message.Message, &ns); err != nil {
			return nil, errors.Wrap(err, "sqlite store: scan message")
		}
		message.CreatedAt = time.Unix(0, ns).UTC()
		messages = append(messages, message)
	}
	return messages, errors.Wrap(rows.Err(), "sqlite store: list messages")
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
