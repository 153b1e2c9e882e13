// Package database opens the relational store behind the persistence layer.
//
// A DSN starting with postgres:// or postgresql:// selects PostgreSQL through
// pgxpool; anything else is treated as a SQLite path or URI.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blockedby/chansearch/internal/models"
)

// Driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// sqlitePragmas are applied to every SQLite connection.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

// DB wraps the GORM handle and, for PostgreSQL, the underlying pgx pool.
type DB struct {
	GORM   *gorm.DB
	Pool   *pgxpool.Pool
	Driver string
}

// New opens the database identified by dsn and migrates the schema.
func New(ctx context.Context, dsn string) (*DB, error) {
	var (
		db  *DB
		err error
	)
	if IsPostgres(dsn) {
		db, err = openPostgres(ctx, dsn)
	} else {
		db, err = openSQLite(dsn)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// IsPostgres reports whether dsn addresses a PostgreSQL server.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func openPostgres(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: stdlib.OpenDBFromPool(pool),
	}), gormConfig())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	return &DB{GORM: gormDB, Pool: pool, Driver: DriverPostgres}, nil
}

func openSQLite(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
	}

	gormDB, err := gorm.Open(sqlite.Open(withPragmas(dsn)), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY under load.
	sqlDB.SetMaxOpenConns(1)

	return &DB{GORM: gormDB, Driver: DriverSQLite}, nil
}

func withPragmas(dsn string) string {
	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

// Migrate creates or updates all tables.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.GORM.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Ping checks if the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if db.Pool != nil {
		return db.Pool.Ping(ctx)
	}
	sqlDB, err := db.GORM.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases all connections.
func (db *DB) Close() {
	if sqlDB, err := db.GORM.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
}
