// Package partystore persists party metadata in SQLite.
package partystore

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/soundhaus/partyline/internal/domain/party"
)

var ErrPartyNotFound = errors.New("party not found")

const schema = `
CREATE TABLE IF NOT EXISTS parties (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	genre         TEXT NOT NULL,
	privacy       TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	cover_ref     TEXT NOT NULL DEFAULT '',
	active        BOOLEAN NOT NULL DEFAULT 1,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
`

// Store persists parties. Sessions are ephemeral; only the party
// metadata survives a restart.
type Store struct {
	db *sqlx.DB
}

// Open opens (and if needed initializes) the store at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open party store")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize party store schema")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new party.
func (s *Store) Create(ctx context.Context, p *party.Party) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Active = true

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO parties (id, name, genre, privacy, password_hash, description, cover_ref, active, created_at, updated_at)
		VALUES (:id, :name, :genre, :privacy, :password_hash, :description, :cover_ref, :active, :created_at, :updated_at)`, p)
	if err != nil {
		return errors.Wrapf(err, "failed to insert party %s", p.ID)
	}
	return nil
}

// Get returns the party with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*party.Party, error) {
	var p party.Party
	err := s.db.GetContext(ctx, &p, `SELECT * FROM parties WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrPartyNotFound, "party %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load party %s", id)
	}
	return &p, nil
}

// ListActive returns all active parties, newest first.
func (s *Store) ListActive(ctx context.Context) ([]party.Party, error) {
	parties := make([]party.Party, 0)
	err := s.db.SelectContext(ctx, &parties,
		`SELECT * FROM parties WHERE active = 1 ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list parties")
	}
	return parties, nil
}

// Deactivate marks a party as ended. The row is kept for history.
func (s *Store) Deactivate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE parties SET active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to deactivate party %s", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(ErrPartyNotFound, "party %s", id)
	}
	return nil
}
