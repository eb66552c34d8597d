// Package storage persists the feed settings snapshot between restarts.
package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/qepting91/tagstream/internal/domain"
)

// ErrNotFound is returned by Load when nothing was saved yet.
var ErrNotFound = errors.New("settings not found")

type SettingsStore interface {
	Load(ctx context.Context) (domain.FeedSettings, error)
	Save(ctx context.Context, settings domain.FeedSettings) error
	Close() error
}

// NewSettingsStore returns a Postgres store when databaseURL is set and a
// YAML file store at path otherwise.
func NewSettingsStore(ctx context.Context, databaseURL, path string) (SettingsStore, error) {
	if databaseURL != "" {
		slog.Info("settings storage", "backend", "postgres")
		return NewPostgresStore(ctx, databaseURL)
	}
	slog.Info("settings storage", "backend", "file", "path", path)
	return NewFileStore(path), nil
}
