package db

import "github.com/0xPolygonHermez/zkevm-tx-engine/config/types"

const (
	// DriverMemory keeps records in process memory
	DriverMemory = "memory"
	// DriverPostgres stores records in PostgreSQL
	DriverPostgres = "postgres"
	// DriverSQLite stores records in an embedded SQLite file
	DriverSQLite = "sqlite"
)

// Config provide fields to configure the transaction storage
type Config struct {
	// Driver is the storage backend: "memory", "postgres" or "sqlite"
	Driver string `mapstructure:"Driver"`

	// User is the database user
	User string `mapstructure:"User"`

	// Password is the database password
	Password string `mapstructure:"Password"`

	// Name is the database name
	Name string `mapstructure:"Name"`

	// Host is the database host
	Host string `mapstructure:"Host"`

	// Port is the database port
	Port string `mapstructure:"Port"`

	// EnableLog enables the pgx query log
	EnableLog bool `mapstructure:"EnableLog"`

	// MaxConns is the maximum number of connections in the pool
	MaxConns int `mapstructure:"MaxConns"`

	// SQLitePath is the database file used by the sqlite driver
	SQLitePath string `mapstructure:"SQLitePath"`

	// Cache configures the redis read cache placed in front of the storage
	Cache CacheConfig `mapstructure:"Cache"`
}

// CacheConfig configures the redis read cache. The cache is disabled when Addr is empty.
type CacheConfig struct {
	// Addr is the redis address (host:port)
	Addr string `mapstructure:"Addr"`

	// TTL is the expiration of cached entries
	TTL types.Duration `mapstructure:"TTL"`
}
