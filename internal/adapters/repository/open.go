package repository

import (
	"context"
	"fmt"
)

// Config selects and locates the backing store.
type Config struct {
	// DatabaseURL selects the relational store when set.
	DatabaseURL string
	// DataDir holds the JSON-lines files otherwise.
	DataDir string
}

// Open returns the relational store when a database URL is configured and
// the file store in DataDir otherwise.
func Open(ctx context.Context, cfg Config, opts ...Option) (Store, error) {
	if cfg.DatabaseURL != "" {
		return OpenGormStore(ctx, cfg.DatabaseURL, opts...)
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("%w: neither database url nor data directory configured", ErrStorage)
	}
	return OpenFileStore(ctx, cfg.DataDir, opts...)
}
