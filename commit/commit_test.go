package commit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"floe/catalog"
	"floe/floeerr"
	"floe/manifest"
	"floe/storage"
	"floe/table"
)

func dataFile(path, day string, records int64) manifest.DataFile {
	return manifest.DataFile{
		Content:       manifest.ContentData,
		FilePath:      path,
		FileFormat:    manifest.FormatParquet,
		Partition:     map[string]string{"day": day},
		RecordCount:   records,
		FileSizeBytes: 512,
	}
}

func newTable(t *testing.T, ctx context.Context, cat catalog.Catalog, store storage.Storage, name string) *table.TableMetadata {
	t.Helper()
	meta, err := table.NewMetadata("db/"+name,
		[]table.Field{
			{ID: 1, Name: "id", Type: table.TypeLong, Required: true},
			{ID: 2, Name: "day", Type: table.TypeString, Required: true},
		},
		[]table.PartitionField{{SourceID: 2, Name: "day", Transform: "identity"}},
	)
	require.NoError(t, err)
	_, err = CreateTable(ctx, cat, store, name, meta)
	require.NoError(t, err)
	return meta
}

func fastOpts(extra ...Option) []Option {
	opts := []Option{WithBackoff(time.Millisecond, 5*time.Millisecond)}
	return append(opts, extra...)
}

func TestCommitAppend(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemory()
	store := storage.NewMemory()
	newTable(t, ctx, cat, store, "events")

	c := New(cat, store, "events", fastOpts()...)
	meta, err := c.Commit(ctx, Append{Files: []manifest.DataFile{
		dataFile("db/events/data/a.parquet", "2024-01-01", 10),
	}})
	require.NoError(t, err)

	require.EqualValues(t, 1, meta.LastSequenceNumber)
	snap := meta.CurrentSnapshot()
	require.NotNil(t, snap)
	require.Equal(t, table.OpAppend, snap.Operation())
	require.Equal(t, "10", snap.Summary[table.SummaryAddedRecords])

	// The catalog points at a metadata file that parses back to the same
	// state.
	loc, err := cat.CurrentLocation(ctx, "events")
	require.NoError(t, err)
	raw, err := storage.ReadAll(ctx, store, loc)
	require.NoError(t, err)
	parsed, err := table.ParseMetadata(raw)
	require.NoError(t, err)
	require.True(t, meta.Equal(parsed))
}

func TestCommitConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemory()
	store := storage.NewMemory()
	newTable(t, ctx, cat, store, "events")

	const writers = 4
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := New(cat, store, "events", fastOpts(WithRetries(writers+2))...)
			_, errs[i] = c.Commit(ctx, Append{Files: []manifest.DataFile{
				dataFile("db/events/data/w"+string(rune('a'+i))+".parquet", "2024-01-01", 1),
			}})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	loc, err := cat.CurrentLocation(ctx, "events")
	require.NoError(t, err)
	raw, err := storage.ReadAll(ctx, store, loc)
	require.NoError(t, err)
	meta, err := table.ParseMetadata(raw)
	require.NoError(t, err)

	// Every append landed under its own strictly increasing sequence.
	require.Len(t, meta.Snapshots, writers)
	require.EqualValues(t, writers, meta.LastSequenceNumber)
	require.Equal(t, "4", meta.CurrentSnapshot().Summary[table.SummaryTotalDataFiles])
}

// ambushCatalog lets a competing commit land right before the first swap,
// forcing the committer through its conflict path deterministically.
type ambushCatalog struct {
	catalog.Catalog
	once   sync.Once
	ambush func()
}

func (a *ambushCatalog) CompareAndSwap(ctx context.Context, name, expected, next string) error {
	a.once.Do(a.ambush)
	return a.Catalog.CompareAndSwap(ctx, name, expected, next)
}

func TestCommitRebasesOverAppend(t *testing.T) {
	ctx := context.Background()
	inner := catalog.NewMemory()
	store := storage.NewMemory()
	newTable(t, ctx, inner, store, "events")

	base := New(inner, store, "events", fastOpts()...)
	_, err := base.Commit(ctx, Append{Files: []manifest.DataFile{
		dataFile("db/events/data/a.parquet", "2024-01-01", 10),
	}})
	require.NoError(t, err)

	cat := &ambushCatalog{Catalog: inner, ambush: func() {
		competitor := New(inner, store, "events", fastOpts()...)
		_, err := competitor.Commit(ctx, Append{Files: []manifest.DataFile{
			dataFile("db/events/data/b.parquet", "2024-01-02", 5),
		}})
		require.NoError(t, err)
	}}

	c := New(cat, store, "events", fastOpts()...)
	meta, err := c.Commit(ctx, DeleteFiles{Remove: []string{"db/events/data/a.parquet"}})
	require.NoError(t, err)

	// Sequence 1 append, sequence 2 competing append, sequence 3 delete.
	require.EqualValues(t, 3, meta.LastSequenceNumber)
	require.Equal(t, table.OpDelete, meta.CurrentSnapshot().Operation())
	require.Equal(t, "1", meta.CurrentSnapshot().Summary[table.SummaryTotalDataFiles])
}

func TestCommitFailsFastOnOverlappingRemoval(t *testing.T) {
	ctx := context.Background()
	inner := catalog.NewMemory()
	store := storage.NewMemory()
	newTable(t, ctx, inner, store, "events")

	base := New(inner, store, "events", fastOpts()...)
	_, err := base.Commit(ctx, Append{Files: []manifest.DataFile{
		dataFile("db/events/data/a.parquet", "2024-01-01", 10),
		dataFile("db/events/data/b.parquet", "2024-01-02", 5),
	}})
	require.NoError(t, err)

	// The competing snapshot also removes files, so rebasing a removal
	// cannot be proven safe.
	cat := &ambushCatalog{Catalog: inner, ambush: func() {
		competitor := New(inner, store, "events", fastOpts()...)
		_, err := competitor.Commit(ctx, DeleteFiles{Remove: []string{"db/events/data/b.parquet"}})
		require.NoError(t, err)
	}}

	c := New(cat, store, "events", fastOpts()...)
	_, err = c.Commit(ctx, DeleteFiles{Remove: []string{"db/events/data/a.parquet"}})
	var conflict *floeerr.CommitConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestCommitRemovingUnknownFile(t *testing.T) {
	ctx := context.Background()
	cat := catalog.NewMemory()
	store := storage.NewMemory()
	newTable(t, ctx, cat, store, "events")

	c := New(cat, store, "events", fastOpts()...)
	_, err := c.Commit(ctx, DeleteFiles{Remove: []string{"db/events/data/ghost.parquet"}})
	var conflict *floeerr.CommitConflictError
	require.ErrorAs(t, err, &conflict)
}

type downCatalog struct{}

func (downCatalog) CurrentLocation(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}
func (downCatalog) CompareAndSwap(context.Context, string, string, string) error {
	return errors.New("connection refused")
}
func (downCatalog) CreateTable(context.Context, string, string) error {
	return errors.New("connection refused")
}
func (downCatalog) DropTable(context.Context, string) error {
	return errors.New("connection refused")
}
func (downCatalog) RenameTable(context.Context, string, string) error {
	return errors.New("connection refused")
}

func TestCommitCatalogUnavailable(t *testing.T) {
	ctx := context.Background()
	c := New(downCatalog{}, storage.NewMemory(), "events", fastOpts(WithRetries(2))...)
	_, err := c.Commit(ctx, Append{})
	var unavailable *floeerr.CatalogUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, 2, unavailable.Attempts)
}

func TestCommitNoSuchTable(t *testing.T) {
	ctx := context.Background()
	c := New(catalog.NewMemory(), storage.NewMemory(), "missing", fastOpts()...)
	_, err := c.Commit(ctx, Append{})
	require.ErrorIs(t, err, floeerr.ErrNoSuchTable)
}

func TestDefaultStrategy(t *testing.T) {
	old, err := table.NewMetadata("db/events",
		[]table.Field{{ID: 1, Name: "id", Type: table.TypeLong, Required: true}},
		nil,
	)
	require.NoError(t, err)

	appended, err := table.NewBuilder(old).AddSnapshot(table.Snapshot{
		SnapshotID:     1,
		SequenceNumber: 1,
		TimestampMs:    1000,
		ManifestList:   "db/events/metadata/snap-1.avro",
		Summary:        map[string]string{"operation": table.OpAppend},
	}).Build()
	require.NoError(t, err)

	overwritten, err := table.NewBuilder(old).AddSnapshot(table.Snapshot{
		SnapshotID:     2,
		SequenceNumber: 1,
		TimestampMs:    1000,
		ManifestList:   "db/events/metadata/snap-2.avro",
		Summary:        map[string]string{"operation": table.OpOverwrite},
	}).Build()
	require.NoError(t, err)

	s := defaultStrategy{}
	require.NoError(t, s.CanRebase(Append{}, old, overwritten))
	require.NoError(t, s.CanRebase(DeleteFiles{Remove: []string{"x"}}, old, appended))
	require.Error(t, s.CanRebase(DeleteFiles{Remove: []string{"x"}}, old, overwritten))
}
