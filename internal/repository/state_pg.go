package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStateRepo persists opaque state snapshots (withdrawal workflow
// exports, trust cache exports) keyed by name. Snapshots are whole-blob
// upserts; history is not kept.
type PostgresStateRepo struct {
	db *sqlx.DB
}

func NewPostgresStateRepo(db *sqlx.DB) *PostgresStateRepo {
	repo := &PostgresStateRepo{db: db}
	_ = repo.ensureSchema(context.Background())
	return repo
}

func (r *PostgresStateRepo) Save(ctx context.Context, name string, blob []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO state_snapshots (name, blob, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET blob = $2, updated_at = $3
	`, name, blob, time.Now().UTC())
	return err
}

// Load returns nil with no error when no snapshot exists yet.
func (r *PostgresStateRepo) Load(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := r.db.GetContext(ctx, &blob, `SELECT blob FROM state_snapshots WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (r *PostgresStateRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS state_snapshots (
			name TEXT PRIMARY KEY,
			blob BYTEA,
			updated_at TIMESTAMPTZ
		)
	`)
	return err
}
