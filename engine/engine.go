// Package engine executes scan plans with an embedded DuckDB and serves
// results over the Postgres wire protocol.
package engine

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"floe/scan"
)

// Engine wraps one embedded DuckDB instance. Data files are read directly
// from the warehouse root on local disk.
type Engine struct {
	db   *sql.DB
	root string
}

func New(warehouseRoot string) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	if _, err := db.Exec("INSTALL parquet; LOAD parquet;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading parquet extension: %w", err)
	}
	return &Engine{db: db, root: warehouseRoot}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// Query runs a plan and returns its merged rows.
func (e *Engine) Query(ctx context.Context, tasks []scan.Task) (*sql.Rows, error) {
	q, err := ScanQuery(tasks, e.root)
	if err != nil {
		return nil, err
	}
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("executing scan: %w", err)
	}
	return rows, nil
}

// RegisterTable exposes a plan as a named view so wire clients can query
// the table by name. Re-registering after a commit refreshes the view.
func (e *Engine) RegisterTable(ctx context.Context, name string, tasks []scan.Task) error {
	q, err := viewSQL(name, tasks, e.root)
	if err != nil {
		return fmt.Errorf("registering table %s: %w", name, err)
	}
	if _, err := e.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("registering table %s: %w", name, err)
	}
	return nil
}

// Exec runs arbitrary SQL against the embedded database, for wire clients.
func (e *Engine) Exec(ctx context.Context, query string) (*sql.Rows, error) {
	return e.db.QueryContext(ctx, query)
}
