package catalog

import (
	"context"
	"fmt"
	"sync"

	"floe/floeerr"
)

// Memory is an in-process catalog for tests and single-process embedding.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]string
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]string)}
}

func (m *Memory) CurrentLocation(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.tables[name]
	if !ok {
		return "", fmt.Errorf("loading table %s: %w", name, floeerr.ErrNoSuchTable)
	}
	return loc, nil
}

func (m *Memory) CompareAndSwap(ctx context.Context, name, expected, next string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tables[name]
	if !ok {
		return fmt.Errorf("committing to table %s: %w", name, floeerr.ErrNoSuchTable)
	}
	if cur != expected {
		return fmt.Errorf("committing to table %s: pointer moved from %s: %w", name, expected, floeerr.ErrConflict)
	}
	m.tables[name] = next
	return nil
}

func (m *Memory) CreateTable(ctx context.Context, name, metadataLocation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tables[name]; exists {
		return fmt.Errorf("creating table %s: already exists: %w", name, floeerr.ErrConflict)
	}
	m.tables[name] = metadataLocation
	return nil
}

func (m *Memory) DropTable(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tables[name]; !exists {
		return fmt.Errorf("dropping table %s: %w", name, floeerr.ErrNoSuchTable)
	}
	delete(m.tables, name)
	return nil
}

func (m *Memory) RenameTable(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.tables[from]
	if !ok {
		return fmt.Errorf("renaming table %s: %w", from, floeerr.ErrNoSuchTable)
	}
	if _, exists := m.tables[to]; exists {
		return fmt.Errorf("renaming table %s to %s: target exists: %w", from, to, floeerr.ErrConflict)
	}
	m.tables[to] = loc
	delete(m.tables, from)
	return nil
}
