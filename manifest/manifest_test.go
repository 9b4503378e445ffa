package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"floe/storage"
	"floe/table"
)

func dayFile(path, day string, records int64) DataFile {
	return DataFile{
		Content:       ContentData,
		FilePath:      path,
		FileFormat:    FormatParquet,
		Partition:     map[string]string{"day": day},
		RecordCount:   records,
		FileSizeBytes: records * 100,
		LowerBounds:   map[int][]byte{1: table.EncodeBound(table.LongValue(1))},
		UpperBounds:   map[int][]byte{1: table.EncodeBound(table.LongValue(records))},
	}
}

func dayMetadata(t *testing.T) *table.TableMetadata {
	t.Helper()
	meta, err := table.NewMetadata("db/events",
		[]table.Field{
			{ID: 1, Name: "id", Type: table.TypeLong, Required: true},
			{ID: 2, Name: "day", Type: table.TypeString, Required: true},
		},
		[]table.PartitionField{{SourceID: 2, Name: "day", Transform: "identity"}},
	)
	require.NoError(t, err)
	return meta
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	in := []*Entry{
		{
			Status:             StatusAdded,
			SnapshotID:         10,
			SequenceNumber:     3,
			FileSequenceNumber: 3,
			Data:               dayFile("db/events/data/a.parquet", "2024-01-01", 10),
		},
		{
			Status:         StatusExisting,
			SnapshotID:     9,
			SequenceNumber: 2,
			Data: DataFile{
				Content:            ContentPositionDeletes,
				FilePath:           "db/events/data/del-1.parquet",
				FileFormat:         FormatParquet,
				RecordCount:        4,
				ReferencedDataFile: "db/events/data/a.parquet",
			},
		},
	}

	_, err := WriteManifest(ctx, store, "db/events/metadata/m0.avro", in)
	require.NoError(t, err)

	out, err := ReadManifest(ctx, store, "db/events/metadata/m0.avro")
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, in[0].Data, out[0].Data)
	require.Equal(t, in[0].Status, out[0].Status)
	require.Equal(t, in[1].Data.ReferencedDataFile, out[1].Data.ReferencedDataFile)
	require.Equal(t, int64(2), out[1].SequenceNumber)
}

func TestEntries_LazyAndRestartable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	var in []*Entry
	for _, p := range []string{"a", "b", "c"} {
		in = append(in, &Entry{Status: StatusAdded, SequenceNumber: 1, Data: dayFile(p, "2024-01-01", 1)})
	}
	_, err := WriteManifest(ctx, store, "m.avro", in)
	require.NoError(t, err)

	seq := Entries(ctx, store, "m.avro")

	// Early break, then a full restart over the same sequence.
	var first string
	for e, err := range seq {
		require.NoError(t, err)
		first = e.Data.FilePath
		break
	}
	require.Equal(t, "a", first)

	var all []string
	for e, err := range seq {
		require.NoError(t, err)
		all = append(all, e.Data.FilePath)
	}
	require.Equal(t, []string{"a", "b", "c"}, all)
}

func TestEntries_MissingManifest(t *testing.T) {
	ctx := context.Background()
	for _, err := range Entries(ctx, storage.NewMemory(), "nope.avro") {
		require.Error(t, err)
	}
}

func TestWriteSnapshot_GroupsByPartitionAndFoldsBounds(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	meta := dayMetadata(t)

	w := NewWriter(meta, store, 100, 1)
	listPath, summary, err := w.WriteSnapshot(ctx, []DataFile{
		dayFile("a.parquet", "2024-01-01", 10),
		dayFile("b.parquet", "2024-01-01", 7),
		dayFile("c.parquet", "2024-01-02", 5),
	}, nil)
	require.NoError(t, err)

	files, err := ReadList(ctx, store, listPath)
	require.NoError(t, err)
	require.Len(t, files, 2, "one manifest per partition group")

	for _, f := range files {
		require.Equal(t, ManifestData, f.Content)
		require.Equal(t, int64(1), f.SequenceNumber)
		require.Len(t, f.Partitions, 1)
		require.NotNil(t, f.Partitions[0].LowerBound)
		require.NotNil(t, f.Partitions[0].UpperBound)
		require.Equal(t, *f.Partitions[0].LowerBound, *f.Partitions[0].UpperBound,
			"single-partition manifest has equal bounds")
	}

	require.Equal(t, "3", summary[table.SummaryAddedDataFiles])
	require.Equal(t, "22", summary[table.SummaryAddedRecords])
	require.Equal(t, "3", summary[table.SummaryTotalDataFiles])
}

func TestWriteSnapshot_CarriesForwardAndRemoves(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	meta := dayMetadata(t)

	// First snapshot: two files in two partitions.
	w1 := NewWriter(meta, store, 100, 1)
	list1, _, err := w1.WriteSnapshot(ctx, []DataFile{
		dayFile("a.parquet", "2024-01-01", 10),
		dayFile("b.parquet", "2024-01-02", 5),
	}, nil)
	require.NoError(t, err)

	meta, err = table.NewBuilder(meta).AddSnapshot(table.Snapshot{
		SnapshotID: 100, SequenceNumber: 1, TimestampMs: 10, ManifestList: list1,
	}).Build()
	require.NoError(t, err)

	// Second snapshot removes one file and adds another.
	w2 := NewWriter(meta, store, 101, 2)
	list2, summary, err := w2.WriteSnapshot(ctx,
		[]DataFile{dayFile("c.parquet", "2024-01-01", 3)},
		map[string]bool{"a.parquet": true})
	require.NoError(t, err)

	files, err := ReadList(ctx, store, list2)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		for e, err := range Entries(ctx, store, f.Path) {
			require.NoError(t, err)
			if e.Live() {
				paths = append(paths, e.Data.FilePath)
				require.NotEqual(t, "a.parquet", e.Data.FilePath)
			}
			if e.Data.FilePath == "b.parquet" {
				require.Equal(t, int64(1), e.SequenceNumber,
					"carried-forward entries keep their original sequence number")
			}
		}
	}
	require.ElementsMatch(t, []string{"b.parquet", "c.parquet"}, paths)
	require.Equal(t, "1", summary[table.SummaryDeletedDataFiles])
	require.Equal(t, "2", summary[table.SummaryTotalDataFiles])
}

func TestWriteSnapshot_RewriteKeepsManifestSpecOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	meta, err := table.NewMetadata("db/events",
		[]table.Field{
			{ID: 1, Name: "id", Type: table.TypeLong, Required: true},
			{ID: 2, Name: "pa", Type: table.TypeString, Required: true},
			{ID: 3, Name: "pb", Type: table.TypeString, Required: true},
		},
		[]table.PartitionField{
			{SourceID: 2, Name: "pa", Transform: "identity"},
			{SourceID: 3, Name: "pb", Transform: "identity"},
		},
	)
	require.NoError(t, err)
	oldSpecID := meta.DefaultSpecID

	file := func(path string) DataFile {
		return DataFile{
			Content:     ContentData,
			FilePath:    path,
			FileFormat:  FormatParquet,
			Partition:   map[string]string{"pa": "aaa", "pb": "xxx"},
			RecordCount: 5,
		}
	}

	w1 := NewWriter(meta, store, 100, 1)
	list1, _, err := w1.WriteSnapshot(ctx, []DataFile{file("a.parquet"), file("b.parquet")}, nil)
	require.NoError(t, err)
	meta, err = table.NewBuilder(meta).AddSnapshot(table.Snapshot{
		SnapshotID: 100, SequenceNumber: 1, TimestampMs: 10, ManifestList: list1,
	}).Build()
	require.NoError(t, err)

	// The new default spec lists the same fields in the opposite order.
	meta, err = table.NewBuilder(meta).AddPartitionSpec([]table.PartitionField{
		{SourceID: 3, Name: "pb", Transform: "identity"},
		{SourceID: 2, Name: "pa", Transform: "identity"},
	}).Build()
	require.NoError(t, err)

	// Removing b.parquet rewrites the manifest written under the old spec.
	w2 := NewWriter(meta, store, 101, 2)
	list2, _, err := w2.WriteSnapshot(ctx, nil, map[string]bool{"b.parquet": true})
	require.NoError(t, err)

	files, err := ReadList(ctx, store, list2)
	require.NoError(t, err)
	require.Len(t, files, 1)

	rewritten := files[0]
	require.Equal(t, oldSpecID, rewritten.SpecID)
	require.Len(t, rewritten.Partitions, 2)
	require.Equal(t, "aaa", *rewritten.Partitions[0].LowerBound,
		"summaries fold in the owning spec's field order, not the default's")
	require.Equal(t, "xxx", *rewritten.Partitions[1].LowerBound)
}

func TestWriteSnapshot_RemovedFileNotFound(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	meta := dayMetadata(t)

	w := NewWriter(meta, store, 100, 1)
	_, _, err := w.WriteSnapshot(ctx, nil, map[string]bool{"ghost.parquet": true})
	require.Error(t, err)
}
