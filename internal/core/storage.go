package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"factorycore/internal/infra/blob"
	blobcore "factorycore/internal/infra/blob/core"
	"factorycore/internal/infra/persistence/imageblob"
	"factorycore/internal/infra/persistence/memory"
	"factorycore/internal/infra/persistence/postgres"
	"factorycore/internal/infra/persistence/sqlite"
	"factorycore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageConfig selects the factory store and its optional image side-store.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	// Blob, when set, moves image bytes out of the record store into the
	// configured blob backend.
	Blob *blob.Config
	// OrphanHandler receives blob keys left behind by a removal.
	OrphanHandler func(key string, err error)
}

// Storage is an opened factory store.
type Storage struct {
	Store  domain.FactoryStore
	Blobs  blobcore.Store
	Driver StorageDriver
	closer io.Closer
}

// Close releases the database handle, if any.
func (s *Storage) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpenPersistentStore opens the backend named by cfg.Driver, sqlite when
// unset.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig) (*Storage, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	out := &Storage{Driver: driver}
	switch driver {
	case StorageMemory:
		out.Store = memory.NewStore()
	case StorageSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		out.Store, out.closer = s, s
	case StoragePostgres:
		s, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		out.Store, out.closer = s, s
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}

	if cfg.Blob != nil {
		blobs, err := blob.Open(ctx, *cfg.Blob)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("open blob store: %w", err), out.Close())
		}
		var opts []imageblob.Option
		if cfg.OrphanHandler != nil {
			opts = append(opts, imageblob.WithOrphanHandler(cfg.OrphanHandler))
		}
		out.Blobs = blobs
		out.Store = imageblob.New(out.Store, blobs, opts...)
	}
	return out, nil
}
