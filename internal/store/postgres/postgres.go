// Package postgres is the shared-database store backend built on the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hideapp/hide/internal/model"
	"github.com/hideapp/hide/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS cards (
    id               TEXT PRIMARY KEY,
    conversation_key TEXT NOT NULL,
    title            TEXT NOT NULL,
    payload          JSONB NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cards_created ON cards (created_at DESC, id ASC);
CREATE TABLE IF NOT EXISTS active_conversations (
    conversation_key TEXT PRIMARY KEY,
    card_id          TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS muted_conversations (
    conversation_key TEXT PRIMARY KEY,
    muted_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) Cards() store.Cards { return &cards{db: s.db} }
func (s *pgStore) Mutes() store.Mutes { return &mutes{db: s.db} }

// HealthPing implements health.HealthPinger for Postgres-backed store.
func (s *pgStore) HealthPing(ctx context.Context) error {
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
        INSERT INTO cards (id, conversation_key, title, payload, created_at)
        VALUES ($1,$2,$3,$4::jsonb,$5)
        ON CONFLICT (id) DO NOTHING
    `, card.ID, string(card.ConversationKey), card.Title, string(payload), card.CreatedAt)
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
        SELECT id, conversation_key, title, payload::text, created_at FROM cards WHERE id=$1
    `, id)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return card, err
}

func (c *cards) Remove(ctx context.Context, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cards WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (c *cards) List(ctx context.Context) ([]*model.Card, error) {
	rows, err := c.db.QueryContext(ctx, `
        SELECT id, conversation_key, title, payload::text, created_at
        FROM cards ORDER BY created_at DESC, id ASC
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
	err := c.db.QueryRowContext(ctx, `SELECT card_id FROM active_conversations WHERE conversation_key=$1`, string(key)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (c *cards) SetActive(ctx context.Context, key model.ConversationKey, id string) error {
	_, err := c.db.ExecContext(ctx, `
        INSERT INTO active_conversations (conversation_key, card_id) VALUES ($1,$2)
        ON CONFLICT (conversation_key) DO UPDATE SET card_id=EXCLUDED.card_id
    `, string(key), id)
	return err
}

func (c *cards) ClearActive(ctx context.Context, key model.ConversationKey, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM active_conversations WHERE conversation_key=$1 AND card_id=$2`, string(key), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type scanner interface{ Scan(dest ...any) error }

func scanCard(r scanner) (*model.Card, error) {
	var (
		card    model.Card
		key     string
		payload string
		created time.Time
	)
	if err := r.Scan(&card.ID, &key, &card.Title, &payload, &created); err != nil {
		return nil, err
	}
	card.ConversationKey = model.ConversationKey(key)
	card.CreatedAt = created.UTC()
	if err := store.UnmarshalPayload([]byte(payload), &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// --- Mutes ---
type mutes struct{ db *sql.DB }

func (m *mutes) Add(ctx context.Context, key model.ConversationKey) error {
	_, err := m.db.ExecContext(ctx, `
        INSERT INTO muted_conversations (conversation_key) VALUES ($1)
        ON CONFLICT (conversation_key) DO NOTHING
    `, string(key))
	return err
}

func (m *mutes) Remove(ctx context.Context, key model.ConversationKey) (bool, error) {
	res, err := m.db.ExecContext(ctx, `DELETE FROM muted_conversations WHERE conversation_key=$1`, string(key))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (m *mutes) Contains(ctx context.Context, key model.ConversationKey) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM muted_conversations WHERE conversation_key=$1)`, string(key)).Scan(&exists)
	return exists, err
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
