package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qepting91/tagstream/internal/domain"
)

// PostgresStore keeps the settings snapshot as a single JSONB row.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

const settingsKey = "feed"

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	s := &PostgresStore{Pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	q := `CREATE TABLE IF NOT EXISTS feed_settings (
		key TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := s.Pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (domain.FeedSettings, error) {
	var raw []byte
	err := s.Pool.QueryRow(ctx, "SELECT data FROM feed_settings WHERE key = $1", settingsKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FeedSettings{}, ErrNotFound
	}
	if err != nil {
		return domain.FeedSettings{}, fmt.Errorf("load settings: %w", err)
	}

	settings := domain.DefaultSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.FeedSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	return settings.Normalize(), nil
}

func (s *PostgresStore) Save(ctx context.Context, settings domain.FeedSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO feed_settings (key, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET data = $2, updated_at = now()`,
		settingsKey, raw)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.Pool.Close()
	return nil
}
