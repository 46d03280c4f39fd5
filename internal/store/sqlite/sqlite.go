// Package sqlite is the single-file store backend built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS cards (
    id               TEXT PRIMARY KEY,
    conversation_key TEXT NOT NULL,
    title            TEXT NOT NULL,
    payload          TEXT NOT NULL,
    created_at_ns    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cards_created ON cards (created_at_ns DESC, id ASC);
CREATE TABLE IF NOT EXISTS active_conversations (
    conversation_key TEXT PRIMARY KEY,
    card_id          TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS muted_conversations (
    conversation_key TEXT PRIMARY KEY,
    muted_at_ns      INTEGER NOT NULL
);
`

// Open opens (or creates) a SQLite database at the given path and enables WAL journal mode.
func Open(path string) (*sql.DB, error) {
	// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer at a time; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	return nil
}

// NewWithDB constructs a store backed by an already migrated database.
func NewWithDB(db *sql.DB) store.Store { return &sqliteStore{db: db} }

type sqliteStore struct{ db *sql.DB }

func (s *sqliteStore) Cards() store.Cards { return &cards{db: s.db} }
func (s *sqliteStore) Mutes() store.Mutes { return &mutes{db: s.db} }

// HealthPing implements health.HealthPinger.
func (s *sqliteStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Cards ---
type cards struct{ db *sql.DB }

func (c *cards) Insert(ctx context.Context, card *model.Card) error {
	payload, err := store.MarshalPayload(card)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, `
        INSERT INTO cards (id, conversation_key, title, payload, created_at_ns)
        VALUES (?,?,?,?,?)
        ON CONFLICT(id) DO NOTHING
    `, card.ID, string(card.ConversationKey), card.Title, string(payload), card.CreatedAt.UnixNano())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("card %s: %w", card.ID, model.ErrConflict)
	}
	return nil
}

func (c *cards) Get(ctx context.Context, id string) (*model.Card, error) {
	row := c.db.QueryRowContext(ctx, `
        SELECT id, conversation_key, title, payload, created_at_ns FROM cards WHERE id=?
    `, id)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return card, err
}

func (c *cards) Remove(ctx context.Context, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cards WHERE id=?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (c *cards) List(ctx context.Context) ([]*model.Card, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT id, conversation_key, title, payload, created_at_ns
        FROM cards ORDER BY created_at_ns DESC, id ASC
    `)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []*model.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, card)
	}
	return res, rows.Err()
}

func (c *cards) ActiveID(ctx context.Context, key model.ConversationKey) (string, error) {
	var id string
	err := c.db.QueryRowContext(ctx, `SELECT card_id FROM active_conversations WHERE conversation_key=?`, string(key)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (c *cards) SetActive(ctx context.Context, key model.ConversationKey, id string) error {
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO active_conversations (conversation_key, card_id) VALUES (?,?)
        ON CONFLICT(conversation_key) DO UPDATE SET card_id=excluded.card_id
    `, string(key), id)
	return err
}

func (c *cards) ClearActive(ctx context.Context, key model.ConversationKey, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM active_conversations WHERE conversation_key=? AND card_id=?`, string(key), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type scanner interface{ Scan(dest ...any) error }

func scanCard(r scanner) (*model.Card, error) {
	var (
		card      model.Card
		key       string
		payload   string
		createdNS int64
	)
	if err := r.Scan(&card.ID, &key, &card.Title, &payload, &createdNS); err != nil {
		return nil, err
	}
	card.ConversationKey = model.ConversationKey(key)
	card.CreatedAt = time.Unix(0, createdNS).UTC()
	if err := store.UnmarshalPayload([]byte(payload), &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// --- Mutes ---
type mutes struct{ db *sql.DB }

func (m *mutes) Add(ctx context.Context, key model.ConversationKey) error {
	_, err := m.db.ExecContext(ctx, `
        INSERT INTO muted_conversations (conversation_key, muted_at_ns) VALUES (?,?)
        ON CONFLICT(conversation_key) DO NOTHING
    `, string(key), time.Now().UnixNano())
	return err
}

func (m *mutes) Remove(ctx context.Context, key model.ConversationKey) (bool, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM muted_conversations WHERE conversation_key=?`, string(key))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (m *mutes) Contains(ctx context.Context, key model.ConversationKey) (bool, error) {
	var one int
	err := m.db.QueryRowContext(ctx, `SELECT 1 FROM muted_conversations WHERE conversation_key=?`, string(key)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (m *mutes) List(ctx context.Context) ([]model.ConversationKey, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT conversation_key FROM muted_conversations ORDER BY conversation_key`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	res := []model.ConversationKey{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		res = append(res, model.ConversationKey(k))
	}
	return res, rows.Err()
}
