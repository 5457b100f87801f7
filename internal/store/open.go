package store

import (
	"context"
	"fmt"

	"github.com/amishk599/jobharvest/internal/model"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects and locates the backing store.
type Config struct {
	Driver string
	Path   string // sqlite
	DSN    string // postgres
}

// Open returns the store described by cfg.
func Open(ctx context.Context, cfg Config) (model.Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLiteStore(cfg.Path)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
