package fscat

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"floe/floeerr"
)

func TestFileCatalog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cat, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, cat.CreateTable(ctx, "db.events", "v0"))
	require.NoError(t, cat.CompareAndSwap(ctx, "db.events", "v0", "v1"))
	require.ErrorIs(t, cat.CompareAndSwap(ctx, "db.events", "v0", "v2"), floeerr.ErrConflict)

	// A fresh handle over the same directory sees the committed state.
	reopened, err := Open(dir)
	require.NoError(t, err)
	loc, err := reopened.CurrentLocation(ctx, "db.events")
	require.NoError(t, err)
	require.Equal(t, "v1", loc)

	require.NoError(t, reopened.RenameTable(ctx, "db.events", "db.clicks"))
	_, err = reopened.CurrentLocation(ctx, "db.events")
	require.ErrorIs(t, err, floeerr.ErrNoSuchTable)

	require.NoError(t, reopened.DropTable(ctx, "db.clicks"))
}

func TestFileCatalogNeverTorn(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cat, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, cat.CreateTable(ctx, "db.events", "v0"))

	// The temp file from the atomic replace never survives a write.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, catalogFile, entries[0].Name())

	raw, err := os.ReadFile(filepath.Join(dir, catalogFile))
	require.NoError(t, err)
	require.Contains(t, string(raw), "db.events")
}
