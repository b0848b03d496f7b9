package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
	"github.com/gobuffalo/packr/v2"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/pgx/v4/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	// TxEngineMigrationName is the name of the migration used by packr to pack the migration files
	TxEngineMigrationName = "zkevm-tx-engine-db"
)

var packrMigrations = map[string]*packr.Box{
	TxEngineMigrationName: packr.New(TxEngineMigrationName, "./migrations/txengine"),
}

// NewSQLDB creates a new postgres connection pool
func NewSQLDB(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s:%s/%s?pool_max_conns=%d", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.MaxConns))
	if err != nil {
		log.Errorf("unable to parse DB config: %v", err)
		return nil, err
	}
	if cfg.EnableLog {
		config.ConnConfig.Logger = logger{}
	}
	conn, err := pgxpool.ConnectConfig(context.Background(), config)
	if err != nil {
		log.Errorf("unable to connect to database: %v", err)
		return nil, err
	}
	return conn, nil
}

// RunMigrationsUp runs the pending migrations
func RunMigrationsUp(cfg Config, name string) error {
	log.Info("running migrations up")
	return runMigrations(cfg, name, migrate.Up)
}

// RunMigrationsDown reverts the applied migrations
func RunMigrationsDown(cfg Config, name string) error {
	log.Info("running migrations down")
	return runMigrations(cfg, name, migrate.Down)
}

// CheckMigrations returns an error if the database does not contain every migration
func CheckMigrations(cfg Config, name string) error {
	db, err := openStdlibDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := migrationSource(name)
	if err != nil {
		return err
	}
	migrations, err := source.FindMigrations()
	if err != nil {
		log.Errorf("error getting migrations from source: %v", err)
		return err
	}

	var expected int
	for _, migration := range migrations {
		if len(migration.Up) != 0 {
			expected++
		}
	}

	var actual int
	query := `SELECT COUNT(1) FROM public.gorp_migrations`
	if err = db.QueryRow(query).Scan(&actual); err != nil {
		log.Errorf("error getting migrations count: %v", err)
		return err
	}
	if expected != actual {
		return fmt.Errorf("error the component needs to run %d migrations before starting. DB only contains %d migrations", expected, actual)
	}
	log.Infof("found %d migrations as expected", actual)
	return nil
}

func runMigrations(cfg Config, name string, direction migrate.MigrationDirection) error {
	db, err := openStdlibDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := migrationSource(name)
	if err != nil {
		return err
	}
	nMigrations, err := migrate.Exec(db, "postgres", source, direction)
	if err != nil {
		return err
	}
	log.Infof("successfully ran %d migrations", nMigrations)
	return nil
}

func migrationSource(name string) (*migrate.PackrMigrationSource, error) {
	box, ok := packrMigrations[name]
	if !ok {
		return nil, fmt.Errorf("migration not found with name: %v", name)
	}
	return &migrate.PackrMigrationSource{Box: box}, nil
}

func openStdlibDB(cfg Config) (*sql.DB, error) {
	c, err := pgx.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s:%s/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name))
	if err != nil {
		return nil, err
	}
	return stdlib.OpenDB(*c), nil
}

type logger struct{}

func (l logger) Log(ctx context.Context, level pgx.LogLevel, msg string, data map[string]interface{}) {
	m := fmt.Sprintf("%s %v", msg, data)

	switch level {
	case pgx.LogLevelInfo:
		log.Info(m)
	case pgx.LogLevelWarn:
		log.Warn(m)
	case pgx.LogLevelError:
		log.Error(m)
	default:
		m = fmt.Sprintf("%s %s %v", level.String(), msg, data)
		log.Debug(m)
	}
}
