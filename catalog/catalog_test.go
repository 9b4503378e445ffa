package catalog

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"floe/floeerr"
	"floe/storage"
	"floe/table"
)

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	cat := NewMemory()

	_, err := cat.CurrentLocation(ctx, "db.events")
	require.ErrorIs(t, err, floeerr.ErrNoSuchTable)

	require.NoError(t, cat.CreateTable(ctx, "db.events", "db/events/metadata/00000.metadata.json"))
	require.ErrorIs(t, cat.CreateTable(ctx, "db.events", "elsewhere"), floeerr.ErrConflict)

	loc, err := cat.CurrentLocation(ctx, "db.events")
	require.NoError(t, err)
	require.Equal(t, "db/events/metadata/00000.metadata.json", loc)

	require.NoError(t, cat.RenameTable(ctx, "db.events", "db.clicks"))
	_, err = cat.CurrentLocation(ctx, "db.events")
	require.ErrorIs(t, err, floeerr.ErrNoSuchTable)

	require.NoError(t, cat.DropTable(ctx, "db.clicks"))
	require.ErrorIs(t, cat.DropTable(ctx, "db.clicks"), floeerr.ErrNoSuchTable)
}

func TestMemoryCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	cat := NewMemory()
	require.NoError(t, cat.CreateTable(ctx, "db.events", "v0"))

	require.NoError(t, cat.CompareAndSwap(ctx, "db.events", "v0", "v1"))
	require.ErrorIs(t, cat.CompareAndSwap(ctx, "db.events", "v0", "v2"), floeerr.ErrConflict)

	loc, err := cat.CurrentLocation(ctx, "db.events")
	require.NoError(t, err)
	require.Equal(t, "v1", loc)
}

func TestMemoryCompareAndSwapSingleWinner(t *testing.T) {
	ctx := context.Background()
	cat := NewMemory()
	require.NoError(t, cat.CreateTable(ctx, "db.events", "v0"))

	const racers = 16
	var wins sync.Map
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if cat.CompareAndSwap(ctx, "db.events", "v0", "next") == nil {
				wins.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	wins.Range(func(_, _ any) bool { count++; return true })
	require.Equal(t, 1, count)
}

func TestMetadataCache(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	meta, err := table.NewMetadata("db/events",
		[]table.Field{{ID: 1, Name: "id", Type: table.TypeLong, Required: true}},
		nil,
	)
	require.NoError(t, err)
	raw, err := meta.Marshal()
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, "db/events/metadata/00000.metadata.json", bytes.NewReader(raw)))

	cache := NewMetadataCache(store)
	first, err := cache.Load(ctx, "db/events/metadata/00000.metadata.json")
	require.NoError(t, err)

	// A second load returns the same parsed document.
	again, err := cache.Load(ctx, "db/events/metadata/00000.metadata.json")
	require.NoError(t, err)
	require.Same(t, first, again)

	_, err = cache.Load(ctx, "db/events/metadata/missing.metadata.json")
	require.Error(t, err)
}
