package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// MigrationsTable records the applied schema version for both dialects.
const MigrationsTable = "guild_schema_migrations"

var (
	// sqliteMigrateMu serializes migrations of sqlite files opened by this process.
	sqliteMigrateMu sync.Mutex

	dirtyRetries = 10
	dirtyBackoff = 200 * time.Millisecond
)

// MigratePostgres applies the embedded postgres migrations. The pgx driver
// holds an advisory lock, so concurrent starters wait for each other.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	driver, err := migratepgx.WithInstance(sqlDB, &migratepgx.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}
	m, err := newMigrator(DialectPostgres, driver)
	if err != nil {
		return err
	}
	defer m.Close()
	return up(ctx, m)
}

func migrateSQLite(ctx context.Context, conn *sql.DB) error {
	sqliteMigrateMu.Lock()
	defer sqliteMigrateMu.Unlock()

	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("create sqlite migration driver: %w", err)
	}
	// Closing the migrator would close conn, which the caller keeps.
	m, err := newMigrator(DialectSQLite, driver)
	if err != nil {
		return err
	}
	return up(ctx, m)
}

func newMigrator(dialect Dialect, driver database.Driver) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("open %s migrations: %w", dialect, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("create %s migrator: %w", dialect, err)
	}
	return m, nil
}

// up applies pending migrations. A dirty version usually means another
// process is halfway through the same migration, so it is re-read a few
// times before giving up.
func up(ctx context.Context, m *migrate.Migrate) error {
	for attempt := 0; ; attempt++ {
		err := m.Up()
		if err == nil || errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		var dirty migrate.ErrDirty
		if !errors.As(err, &dirty) || attempt >= dirtyRetries {
			return fmt.Errorf("apply migrations: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dirtyBackoff):
		}
	}
}

// SchemaVersion reports the applied migration version of an sqlite database.
func SchemaVersion(ctx context.Context, conn *sql.DB) (int, bool, error) {
	var version int
	var dirty bool
	err := conn.QueryRowContext(ctx, `SELECT version, dirty FROM `+MigrationsTable+` LIMIT 1`).Scan(&version, &dirty)
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, dirty, nil
}
