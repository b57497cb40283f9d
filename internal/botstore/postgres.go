package botstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/scriptvox/pkg/types"
)

// Schema is the SQL DDL for the bots table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS bots (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL DEFAULT '',
    script       JSONB NOT NULL,
    voice        TEXT NOT NULL,
    is_active    BOOLEAN NOT NULL DEFAULT true,
    is_archived  BOOLEAN NOT NULL DEFAULT false,
    current_line INTEGER NOT NULL DEFAULT 0 CHECK (current_line >= 0),
    archived_at  TIMESTAMPTZ,
    restored_at  TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const botColumns = `id, name, script, voice, is_active, is_archived, current_line,
       archived_at, restored_at, created_at, updated_at`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is a [Store] backed by a PostgreSQL database. The script is
// stored as a JSONB array.
type PostgresStore struct {
	db    DB
	close func()
}

// NewPostgresStore creates a [PostgresStore] over db. The caller is
// responsible for calling [PostgresStore.Migrate] to ensure the schema exists.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, close: func() {}}
}

// OpenPostgres connects a pool to dsn, verifies it with a ping and returns a
// store that owns the pool.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("botstore: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("botstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("botstore: ping: %w", err)
	}
	return &PostgresStore{db: pool, close: pool.Close}, nil
}

// Close releases the connection pool if the store owns one.
func (s *PostgresStore) Close() { s.close() }

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("botstore: migrate: %w", err)
	}
	return nil
}

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Bot, error) {
	const op = "botstore.get"
	b, err := scanBot(s.db.QueryRow(ctx, `SELECT `+botColumns+` FROM bots WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(op, id)
		}
		return nil, fmt.Errorf("botstore: get %q: %w", id, err)
	}
	return b, nil
}

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, bot *Bot) error {
	const op = "botstore.create"
	if err := bot.Validate(); err != nil {
		return invalid(op, err)
	}
	script, err := json.Marshal(bot.Script)
	if err != nil {
		return fmt.Errorf("botstore: marshal script: %w", err)
	}

	const query = `
		INSERT INTO bots (id, name, script, voice, is_active, is_archived, current_line)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		bot.ID, bot.Name, script, bot.Voice, bot.IsActive, bot.IsArchived, bot.Progress.CurrentLine,
	).Scan(&bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return types.NewError(types.KindConflict, op, fmt.Sprintf("bot %q already exists", bot.ID), err)
		}
		return fmt.Errorf("botstore: create: %w", err)
	}
	return nil
}

// UpdateProgress implements [Store]. The write is a single conditional
// UPDATE; when it matches no row the bot is re-read to report why.
func (s *PostgresStore) UpdateProgress(ctx context.Context, id string, expected, next int) error {
	const op = "botstore.update_progress"
	const query = `
		UPDATE bots SET current_line = $3, updated_at = now()
		WHERE id = $1
		  AND current_line = $2
		  AND NOT is_archived
		  AND $3 >= 0
		  AND $3 <= jsonb_array_length(script)`

	tag, err := s.db.Exec(ctx, query, id, expected, next)
	if err != nil {
		return fmt.Errorf("botstore: update progress %q: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	b, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return notFound(op, id)
		}
		return err
	}
	if err := checkProgress(op, b, expected, next); err != nil {
		return err
	}
	// The row matched again by the time it was re-read; another writer moved
	// it away and back in between.
	return conflict(op, id, expected, b.Progress.CurrentLine)
}

// SetArchived implements [Store].
func (s *PostgresStore) SetArchived(ctx context.Context, id string, isArchived bool) (*Bot, error) {
	query := `
		UPDATE bots SET
			is_archived = $2,
			archived_at = CASE WHEN $2 THEN now() ELSE archived_at END,
			restored_at = CASE WHEN $2 THEN restored_at ELSE now() END,
			updated_at  = now()
		WHERE id = $1
		RETURNING ` + botColumns

	b, err := scanBot(s.db.QueryRow(ctx, query, id, isArchived))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("botstore.set_archived", id)
		}
		return nil, fmt.Errorf("botstore: set archived %q: %w", id, err)
	}
	return b, nil
}

// Ping implements [Store].
func (s *PostgresStore) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `SELECT 1`); err != nil {
		return fmt.Errorf("botstore: ping: %w", err)
	}
	return nil
}

// scanBot reads one row selected with botColumns.
func scanBot(row pgx.Row) (*Bot, error) {
	var (
		b          Bot
		script     []byte
		archivedAt *time.Time
		restoredAt *time.Time
	)
	if err := row.Scan(
		&b.ID, &b.Name, &script, &b.Voice, &b.IsActive, &b.IsArchived, &b.Progress.CurrentLine,
		&archivedAt, &restoredAt, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(script, &b.Script); err != nil {
		return nil, fmt.Errorf("botstore: unmarshal script: %w", err)
	}
	b.ArchivedAt, b.RestoredAt = archivedAt, restoredAt
	return &b, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
