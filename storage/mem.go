package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process byte store used by tests and ephemeral tables.
type Memory struct {
	objects map[string][]byte
	mu      sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Write(ctx context.Context, path string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("reading object body: %w", err)
	}
	m.mu.Lock()
	m.objects[path] = buf
	m.mu.Unlock()
	return nil
}

func (m *Memory) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	buf, ok := m.objects[path]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("reading %s: %w", path, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var files []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			files = append(files, k)
		}
	}
	sort.Strings(files)
	return files, nil
}
