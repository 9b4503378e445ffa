package catalog

import (
	"context"
	"fmt"
	"sync"

	"floe/storage"
	"floe/table"
)

const defaultCacheSize = 64

// MetadataCache memoizes parsed table metadata by file location. Metadata
// files are written once and never modified, so entries can never go
// stale; the cache only needs a size bound.
type MetadataCache struct {
	store storage.Storage
	max   int

	mu      sync.Mutex
	entries map[string]*table.TableMetadata
	order   []string // insertion order, oldest first
}

func NewMetadataCache(store storage.Storage) *MetadataCache {
	return &MetadataCache{
		store:   store,
		max:     defaultCacheSize,
		entries: make(map[string]*table.TableMetadata),
	}
}

// Load returns the metadata at location, reading and parsing it on first
// use.
func (c *MetadataCache) Load(ctx context.Context, location string) (*table.TableMetadata, error) {
	c.mu.Lock()
	meta, ok := c.entries[location]
	c.mu.Unlock()
	if ok {
		return meta, nil
	}

	raw, err := storage.ReadAll(ctx, c.store, location)
	if err != nil {
		return nil, fmt.Errorf("loading metadata %s: %w", location, err)
	}
	meta, err = table.ParseMetadata(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata %s: %w", location, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[location]; !exists {
		c.entries[location] = meta
		c.order = append(c.order, location)
		for len(c.order) > c.max {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
	}
	return meta, nil
}

// Invalidate drops one location, for callers that deleted the file.
func (c *MetadataCache) Invalidate(location string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[location]; !ok {
		return
	}
	delete(c.entries, location)
	for i, loc := range c.order {
		if loc == location {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
