package db

import (
	"fmt"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
)

// NewStorage creates the storage backend selected by cfg.Driver, wrapped by the redis
// read cache when it is configured
func NewStorage(cfg Config) (repository.Storage, error) {
	var (
		base repository.Storage
		err  error
	)
	switch cfg.Driver {
	case DriverMemory, "":
		base = NewMemoryStorage()
	case DriverPostgres:
		base, err = NewPostgresStorage(cfg)
	case DriverSQLite:
		base, err = NewSQLiteStorage(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	log.Infof("using %s transaction storage", cfg.Driver)

	if cfg.Cache.Addr == "" {
		return base, nil
	}
	log.Infof("using redis cache at %s", cfg.Cache.Addr)
	return NewCachedStorage(base, cfg.Cache)
}
