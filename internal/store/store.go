package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Roles are a closed set: every message row is one or the other.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrNotFound is returned by UserStats for users never upserted.
var ErrNotFound = errors.New("store: not found")

// Turn is one history entry in the shape the completion API expects.
type Turn struct {
	Role    string
	Content string
}

// UserStats holds the per-user counter row joined with the user's name.
type UserStats struct {
	Username        string
	MessageCount    int64
	LastInteraction time.Time
}

type GlobalStats struct {
	TotalUsers    int64 `json:"total_users"`
	TotalMessages int64 `json:"total_messages"`
	UserMessages  int64 `json:"user_messages"`
	BotResponses  int64 `json:"bot_responses"`
}

// Store persists users, conversation history and per-user counters in SQLite.
// Every operation is a single statement or a single short transaction; there
// is no batching and no retry.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT PRIMARY KEY,
		username   TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id   TEXT NOT NULL,
		role      TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content   TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(user_id)
	);

	CREATE TABLE IF NOT EXISTS stats (
		user_id          TEXT PRIMARY KEY,
		message_count    INTEGER DEFAULT 0,
		last_interaction TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertUser inserts the user or refreshes the display name, and makes sure a
// zero-initialized stats row exists. An existing counter is never reset.
func (s *Store) UpsertUser(userID, username string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO users (user_id, username) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET username = excluded.username`,
		userID, username)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", userID, err)
	}

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO stats (user_id, message_count, last_interaction)
		VALUES (?, 0, ?)`,
		userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("init stats for %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// AppendMessage appends one history row and bumps the user's counter by one,
// in a single transaction so the counter cannot drift from the history under
// concurrent writers.
func (s *Store) AppendMessage(userID, role, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO messages (user_id, role, content) VALUES (?, ?, ?)`,
		userID, role, content)
	if err != nil {
		return fmt.Errorf("append message for %s: %w", userID, err)
	}

	_, err = tx.Exec(`
		UPDATE stats
		SET message_count = message_count + 1, last_interaction = ?
		WHERE user_id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("bump counter for %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// RecentHistory returns up to limit most recent messages, oldest first.
func (s *Store) RecentHistory(userID string, limit int) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT role, content FROM messages
		WHERE user_id = ?
		ORDER BY id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", userID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Rows come newest-first; reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ClearHistory drops the user's messages and zeroes the counter. The user row
// survives.
func (s *Store) ClearHistory(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete messages for %s: %w", userID, err)
	}
	if _, err := tx.Exec(`UPDATE stats SET message_count = 0 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("reset counter for %s: %w", userID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	return nil
}

func (s *Store) UserStats(userID string) (*UserStats, error) {
	var st UserStats
	var last sql.NullTime
	var count sql.NullInt64
	err := s.db.QueryRow(`
		SELECT u.username, s.message_count, s.last_interaction
		FROM users u
		LEFT JOIN stats s ON u.user_id = s.user_id
		WHERE u.user_id = ?`,
		userID).Scan(&st.Username, &count, &last)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query stats for %s: %w", userID, err)
	}
	st.MessageCount = count.Int64
	if last.Valid {
		st.LastInteraction = last.Time
	}
	return &st, nil
}

func (s *Store) GlobalStats() (*GlobalStats, error) {
	var g GlobalStats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&g.TotalUsers); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&g.TotalMessages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE role = ?`, RoleUser).Scan(&g.UserMessages); err != nil {
		return nil, fmt.Errorf("count user messages: %w", err)
	}
	g.BotResponses = g.TotalMessages - g.UserMessages
	return &g, nil
}
