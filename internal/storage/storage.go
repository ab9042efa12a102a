// Package storage persists reference cache entries.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/miwake/internal/config"
	"github.com/hyperjump/miwake/internal/models"
	"go.uber.org/zap"
)

// ErrNotExist is returned by ReadAll when no cache has been persisted yet.
var ErrNotExist = errors.New("reference cache does not exist")

// Storage is the durable backing store of the reference cache.
type Storage interface {
	// Exists reports whether a cache has been persisted.
	Exists() bool
	// ReadAll returns every persisted entry in write order. Malformed rows
	// and keypoints are skipped and logged, not returned as errors.
	ReadAll(ctx context.Context) ([]*models.CatalogEntry, error)
	// Append persists entries as a single write.
	Append(ctx context.Context, entries []*models.CatalogEntry) error
	// Path returns the location of the persisted cache.
	Path() string
	Close() error
}

// Option configures a storage backend.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets a logger for skipped rows and keypoints.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Open returns the backend selected by cfg.
func Open(cfg *config.StorageConfig, opts ...Option) (Storage, error) {
	switch cfg.Backend {
	case config.BackendCSV, "":
		return NewCSVStorage(cfg.ActivePath(), opts...)
	case config.BackendSQLite:
		return NewSQLiteStorage(cfg.ActivePath(), opts...)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: csv, sqlite)", cfg.Backend)
	}
}
