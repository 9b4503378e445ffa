// Package fscat is a file-backed catalog: one JSON document mapping table
// names to metadata locations, rewritten atomically via rename. It is safe
// across goroutines in one process; cross-process writers need the SQL
// catalog instead.
package fscat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"floe/floeerr"
)

const catalogFile = "catalog.json"

type Catalog struct {
	path string
	mu   sync.Mutex
}

// Open creates the catalog file under dir if it does not exist.
func Open(dir string) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog dir: %w", err)
	}
	c := &Catalog{path: filepath.Join(dir, catalogFile)}
	if _, err := os.Stat(c.path); errors.Is(err, os.ErrNotExist) {
		if err := c.write(map[string]string{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking catalog file: %w", err)
	}
	return c, nil
}

func (c *Catalog) read() (map[string]string, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	tables := make(map[string]string)
	if err := json.Unmarshal(raw, &tables); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	return tables, nil
}

// write replaces the catalog document through a temp file and rename so a
// crash never leaves a torn catalog.
func (c *Catalog) write(tables map[string]string) error {
	raw, err := json.MarshalIndent(tables, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding catalog file: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing catalog file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replacing catalog file: %w", err)
	}
	return nil
}

func (c *Catalog) CurrentLocation(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tables, err := c.read()
	if err != nil {
		return "", err
	}
	loc, ok := tables[name]
	if !ok {
		return "", fmt.Errorf("loading table %s: %w", name, floeerr.ErrNoSuchTable)
	}
	return loc, nil
}

func (c *Catalog) CompareAndSwap(ctx context.Context, name, expected, next string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tables, err := c.read()
	if err != nil {
		return err
	}
	cur, ok := tables[name]
	if !ok {
		return fmt.Errorf("committing to table %s: %w", name, floeerr.ErrNoSuchTable)
	}
	if cur != expected {
		return fmt.Errorf("committing to table %s: pointer moved from %s: %w", name, expected, floeerr.ErrConflict)
	}
	tables[name] = next
	return c.write(tables)
}

func (c *Catalog) CreateTable(ctx context.Context, name, metadataLocation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tables, err := c.read()
	if err != nil {
		return err
	}
	if _, exists := tables[name]; exists {
		return fmt.Errorf("creating table %s: already exists: %w", name, floeerr.ErrConflict)
	}
	tables[name] = metadataLocation
	return c.write(tables)
}

func (c *Catalog) DropTable(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tables, err := c.read()
	if err != nil {
		return err
	}
	if _, exists := tables[name]; !exists {
		return fmt.Errorf("dropping table %s: %w", name, floeerr.ErrNoSuchTable)
	}
	delete(tables, name)
	return c.write(tables)
}

func (c *Catalog) RenameTable(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	tables, err := c.read()
	if err != nil {
		return err
	}
	loc, ok := tables[from]
	if !ok {
		return fmt.Errorf("renaming table %s: %w", from, floeerr.ErrNoSuchTable)
	}
	if _, exists := tables[to]; exists {
		return fmt.Errorf("renaming table %s to %s: target exists: %w", from, to, floeerr.ErrConflict)
	}
	tables[to] = loc
	delete(tables, from)
	return c.write(tables)
}
