// Package commit implements the optimistic write path: stage a snapshot
// against the current table state, write an immutable metadata file, and
// advance the catalog pointer with compare-and-swap. Losers reload, rebase
// and retry with jittered backoff.
package commit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"floe/catalog"
	"floe/floeerr"
	"floe/internal/backoff"
	"floe/manifest"
	"floe/storage"
	"floe/table"
)

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = 100 * time.Millisecond
	defaultBackoffCap  = 5 * time.Second
)

// Committer runs commits for one table.
type Committer struct {
	cat   catalog.Catalog
	store storage.Storage
	cache *catalog.MetadataCache
	name  string

	logger      *slog.Logger
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	strategy    ConflictStrategy
	sleep       func(context.Context, time.Duration) error
}

type Option func(*Committer)

func WithLogger(l *slog.Logger) Option {
	return func(c *Committer) { c.logger = l }
}

// WithRetries sets how many commit attempts are made before giving up.
func WithRetries(n int) Option {
	return func(c *Committer) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithBackoff(base, cap time.Duration) Option {
	return func(c *Committer) {
		c.backoffBase = base
		c.backoffCap = cap
	}
}

func WithConflictStrategy(s ConflictStrategy) Option {
	return func(c *Committer) { c.strategy = s }
}

// WithCache shares a metadata cache across committers and readers.
func WithCache(cache *catalog.MetadataCache) Option {
	return func(c *Committer) { c.cache = cache }
}

func New(cat catalog.Catalog, store storage.Storage, tableName string, opts ...Option) *Committer {
	c := &Committer{
		cat:         cat,
		store:       store,
		name:        tableName,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		strategy:    defaultStrategy{},
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = catalog.NewMetadataCache(store)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Commit applies op and returns the metadata after the winning snapshot.
// On a stale pointer the operation is restaged against the reloaded state;
// manifests and the metadata file of a losing attempt are left behind as
// unreferenced garbage for maintenance to collect.
func (c *Committer) Commit(ctx context.Context, op Operation) (*table.TableMetadata, error) {
	var prevBase *table.TableMetadata
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoff.Jitter(attempt, c.backoffBase, c.backoffCap)); err != nil {
				return nil, err
			}
		}

		baseLoc, err := c.cat.CurrentLocation(ctx, c.name)
		if err != nil {
			if errors.Is(err, floeerr.ErrNoSuchTable) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			c.logger.Warn("catalog load failed", "table", c.name, "attempt", attempt+1, "error", err)
			continue
		}
		base, err := c.cache.Load(ctx, baseLoc)
		if err != nil {
			lastErr = err
			c.logger.Warn("metadata load failed", "table", c.name, "location", baseLoc, "error", err)
			continue
		}

		if prevBase != nil && !base.Equal(prevBase) {
			if err := c.strategy.CanRebase(op, prevBase, base); err != nil {
				return nil, &floeerr.CommitConflictError{Table: c.name, Attempts: attempt + 1, Err: err}
			}
		}

		next, nextLoc, err := c.stage(ctx, base, baseLoc, op)
		if err != nil {
			var consistency *floeerr.MetadataConsistencyError
			if errors.As(err, &consistency) {
				// Restaging cannot fix a removal that no longer exists.
				return nil, &floeerr.CommitConflictError{Table: c.name, Attempts: attempt + 1, Err: err}
			}
			return nil, err
		}

		err = c.cat.CompareAndSwap(ctx, c.name, baseLoc, nextLoc)
		if err == nil {
			c.logger.Info("committed snapshot",
				"table", c.name,
				"operation", op.operation(),
				"snapshot", *next.CurrentSnapshotID,
				"sequence", next.LastSequenceNumber,
				"attempts", attempt+1,
			)
			return next, nil
		}
		lastErr = err
		if errors.Is(err, floeerr.ErrConflict) {
			c.logger.Info("commit conflict, rebasing", "table", c.name, "attempt", attempt+1)
			prevBase = base
			continue
		}
		c.logger.Warn("catalog swap failed", "table", c.name, "attempt", attempt+1, "error", err)
	}

	if errors.Is(lastErr, floeerr.ErrConflict) {
		return nil, &floeerr.CommitConflictError{Table: c.name, Attempts: c.maxAttempts, Err: lastErr}
	}
	return nil, &floeerr.CatalogUnavailableError{Table: c.name, Attempts: c.maxAttempts, Err: lastErr}
}

// stage writes the snapshot's manifests and a fresh metadata file. Nothing
// it writes is visible until the catalog pointer moves.
func (c *Committer) stage(ctx context.Context, base *table.TableMetadata, baseLoc string, op Operation) (*table.TableMetadata, string, error) {
	snapshotID := table.GenerateSnapshotID()
	seq := base.LastSequenceNumber + 1
	added, removed := op.files()

	w := manifest.NewWriter(base, c.store, snapshotID, seq)
	list, summary, err := w.WriteSnapshot(ctx, added, removed)
	if err != nil {
		return nil, "", err
	}
	summary["operation"] = op.operation()

	now := time.Now().UnixMilli()
	next, err := table.NewBuilder(base).
		AddSnapshot(table.Snapshot{
			SnapshotID:     snapshotID,
			SequenceNumber: seq,
			TimestampMs:    now,
			ManifestList:   list,
			Summary:        summary,
		}).
		AppendMetadataLog(baseLoc, now).
		Build()
	if err != nil {
		return nil, "", err
	}

	nextLoc := fmt.Sprintf("%s/metadata/%05d-%s.metadata.json", base.Location, seq, uuid.NewString())
	raw, err := next.Marshal()
	if err != nil {
		return nil, "", err
	}
	if err := c.store.Write(ctx, nextLoc, bytes.NewReader(raw)); err != nil {
		return nil, "", fmt.Errorf("writing metadata %s: %w", nextLoc, err)
	}
	return next, nextLoc, nil
}

// CreateTable writes initial metadata for an empty table and registers it.
func CreateTable(ctx context.Context, cat catalog.Catalog, store storage.Storage, name string, meta *table.TableMetadata) (string, error) {
	loc := fmt.Sprintf("%s/metadata/%05d-%s.metadata.json", meta.Location, 0, uuid.NewString())
	raw, err := meta.Marshal()
	if err != nil {
		return "", err
	}
	if err := store.Write(ctx, loc, bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("writing metadata %s: %w", loc, err)
	}
	if err := cat.CreateTable(ctx, name, loc); err != nil {
		return "", err
	}
	return loc, nil
}
