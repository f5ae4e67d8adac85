// Package store holds the whole-collection persistence backends.
package store

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"notesync/internal/collection"
)

// Store is a collection.Repository that owns resources which must be released.
type Store interface {
	collection.Repository
	Close() error
}

type Options struct {
	Backend     string
	DataDir     string
	DatabaseURL string
}

// New opens the backend named by opts.Backend:
//
//	"json"     - one pretty-printed JSON document per collection in DataDir (default)
//	"sqlite"   - SQLite database at DataDir/sync.db
//	"postgres" - Postgres at DatabaseURL
//	"memory"   - in-process, lost on exit
func New(ctx context.Context, opts Options, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch opts.Backend {
	case "json", "":
		return NewJSONFile(opts.DataDir, log), nil
	case "sqlite":
		return NewSQLite(ctx, filepath.Join(opts.DataDir, "sync.db"))
	case "postgres":
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires DATABASE_URL")
		}
		return NewPostgres(opts.DatabaseURL)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: json, sqlite, postgres, memory)", opts.Backend)
	}
}
