// Package sqlcat is a Postgres-backed catalog. The metadata pointer lives
// in one row per table and every swap is a conditional UPDATE, so the
// database serializes concurrent committers across processes.
package sqlcat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"floe/floeerr"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS floe_tables (
	name              text PRIMARY KEY,
	metadata_location text NOT NULL
)`

type Catalog struct {
	pool *pgxpool.Pool
}

// Open connects to the database and ensures the catalog table exists.
func Open(ctx context.Context, dsn string) (*Catalog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to catalog database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating catalog table: %w", err)
	}
	return &Catalog{pool: pool}, nil
}

func (c *Catalog) Close() {
	c.pool.Close()
}

func (c *Catalog) CurrentLocation(ctx context.Context, name string) (string, error) {
	var loc string
	err := c.pool.QueryRow(ctx,
		`SELECT metadata_location FROM floe_tables WHERE name = $1`, name).Scan(&loc)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("loading table %s: %w", name, floeerr.ErrNoSuchTable)
	}
	if err != nil {
		return "", fmt.Errorf("loading table %s: %w", name, err)
	}
	return loc, nil
}

// CompareAndSwap is a conditional UPDATE: zero rows affected means either
// the table is gone or the pointer moved.
func (c *Catalog) CompareAndSwap(ctx context.Context, name, expected, next string) error {
	tag, err := c.pool.Exec(ctx,
		`UPDATE floe_tables SET metadata_location = $3 WHERE name = $1 AND metadata_location = $2`,
		name, expected, next)
	if err != nil {
		return fmt.Errorf("committing to table %s: %w", name, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := c.CurrentLocation(ctx, name); err != nil {
		return err
	}
	return fmt.Errorf("committing to table %s: pointer moved from %s: %w", name, expected, floeerr.ErrConflict)
}

func (c *Catalog) CreateTable(ctx context.Context, name, metadataLocation string) error {
	tag, err := c.pool.Exec(ctx,
		`INSERT INTO floe_tables (name, metadata_location) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, metadataLocation)
	if err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("creating table %s: already exists: %w", name, floeerr.ErrConflict)
	}
	return nil
}

func (c *Catalog) DropTable(ctx context.Context, name string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM floe_tables WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("dropping table %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dropping table %s: %w", name, floeerr.ErrNoSuchTable)
	}
	return nil
}

func (c *Catalog) RenameTable(ctx context.Context, from, to string) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("renaming table %s: %w", from, err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM floe_tables WHERE name = $1)`, to).Scan(&exists); err != nil {
		return fmt.Errorf("renaming table %s: %w", from, err)
	}
	if exists {
		return fmt.Errorf("renaming table %s to %s: target exists: %w", from, to, floeerr.ErrConflict)
	}
	tag, err := tx.Exec(ctx, `UPDATE floe_tables SET name = $2 WHERE name = $1`, from, to)
	if err != nil {
		return fmt.Errorf("renaming table %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("renaming table %s: %w", from, floeerr.ErrNoSuchTable)
	}
	return tx.Commit(ctx)
}
