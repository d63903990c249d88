// Package store implements the Postgres-backed repositories behind the
// narrow interfaces declared by pkg/credential, pkg/inventory, pkg/baseline,
// pkg/scheduler, and pkg/ownership, plus schema migrations via
// pressly/goose/v3. pkg/cache/topocache is the one topology-cache exception:
// it owns its own pgxpool.Pool directly for bulk CopyFrom writes.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Open dials both connection handles the engine needs against the same
// Postgres database: a sqlx.DB for the row-at-a-time repositories below, and
// a pgxpool.Pool for pkg/cache/topocache's bulk CopyFrom writes.
func Open(databaseURL string) (*sqlx.DB, *pgxpool.Pool, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening sqlx connection: %w", err)
	}
	db := sqlx.NewDb(sqlDB, "pgx")

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("opening pgxpool: %w", err)
	}

	return db, pool, nil
}

// Migrate applies every pending migration under migrations/ to db.
func Migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrationFiles)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
