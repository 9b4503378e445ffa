package manifest

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"floe/storage"
)

// Avro is the structured-record codec for manifests and manifest lists.
// The schemas below are fixed; both ends of the wire are this package.

const manifestEntrySchema = `{
	"type": "record",
	"name": "manifest_entry",
	"fields": [
		{"name": "status", "type": "int"},
		{"name": "snapshot_id", "type": "long"},
		{"name": "sequence_number", "type": "long"},
		{"name": "file_sequence_number", "type": "long"},
		{"name": "data_file", "type": {
			"type": "record",
			"name": "data_file",
			"fields": [
				{"name": "content", "type": "int"},
				{"name": "file_path", "type": "string"},
				{"name": "file_format", "type": "string"},
				{"name": "partition", "type": {"type": "map", "values": "string"}},
				{"name": "record_count", "type": "long"},
				{"name": "file_size_in_bytes", "type": "long"},
				{"name": "column_sizes", "type": {"type": "array", "items": {
					"type": "record", "name": "i64_entry", "fields": [
						{"name": "key", "type": "int"},
						{"name": "value", "type": "long"}
					]}}},
				{"name": "value_counts", "type": {"type": "array", "items": "i64_entry"}},
				{"name": "null_value_counts", "type": {"type": "array", "items": "i64_entry"}},
				{"name": "nan_value_counts", "type": {"type": "array", "items": "i64_entry"}},
				{"name": "lower_bounds", "type": {"type": "array", "items": {
					"type": "record", "name": "bytes_entry", "fields": [
						{"name": "key", "type": "int"},
						{"name": "value", "type": "bytes"}
					]}}},
				{"name": "upper_bounds", "type": {"type": "array", "items": "bytes_entry"}},
				{"name": "equality_ids", "type": {"type": "array", "items": "int"}},
				{"name": "referenced_data_file", "type": "string"}
			]
		}}
	]
}`

const manifestFileSchema = `{
	"type": "record",
	"name": "manifest_file",
	"fields": [
		{"name": "manifest_path", "type": "string"},
		{"name": "manifest_length", "type": "long"},
		{"name": "partition_spec_id", "type": "int"},
		{"name": "content", "type": "int"},
		{"name": "sequence_number", "type": "long"},
		{"name": "min_sequence_number", "type": "long"},
		{"name": "added_snapshot_id", "type": "long"},
		{"name": "added_files_count", "type": "int"},
		{"name": "existing_files_count", "type": "int"},
		{"name": "deleted_files_count", "type": "int"},
		{"name": "added_rows_count", "type": "long"},
		{"name": "existing_rows_count", "type": "long"},
		{"name": "deleted_rows_count", "type": "long"},
		{"name": "partitions", "type": {"type": "array", "items": {
			"type": "record", "name": "field_summary", "fields": [
				{"name": "contains_null", "type": "boolean"},
				{"name": "contains_nan", "type": ["null", "boolean"], "default": null},
				{"name": "lower_bound", "type": ["null", "string"], "default": null},
				{"name": "upper_bound", "type": ["null", "string"], "default": null}
			]}}}
	]
}`

// Parsed once so encoding errors surface at init, not per write.
var (
	_ = avro.MustParse(manifestEntrySchema)
	_ = avro.MustParse(manifestFileSchema)
)

type i64Entry struct {
	Key   int32 `avro:"key"`
	Value int64 `avro:"value"`
}

type bytesEntry struct {
	Key   int32  `avro:"key"`
	Value []byte `avro:"value"`
}

type avroDataFile struct {
	Content            int32             `avro:"content"`
	FilePath           string            `avro:"file_path"`
	FileFormat         string            `avro:"file_format"`
	Partition          map[string]string `avro:"partition"`
	RecordCount        int64             `avro:"record_count"`
	FileSizeBytes      int64             `avro:"file_size_in_bytes"`
	ColumnSizes        []i64Entry        `avro:"column_sizes"`
	ValueCounts        []i64Entry        `avro:"value_counts"`
	NullValueCounts    []i64Entry        `avro:"null_value_counts"`
	NaNValueCounts     []i64Entry        `avro:"nan_value_counts"`
	LowerBounds        []bytesEntry      `avro:"lower_bounds"`
	UpperBounds        []bytesEntry      `avro:"upper_bounds"`
	EqualityIDs        []int32           `avro:"equality_ids"`
	ReferencedDataFile string            `avro:"referenced_data_file"`
}

type avroEntry struct {
	Status             int32        `avro:"status"`
	SnapshotID         int64        `avro:"snapshot_id"`
	SequenceNumber     int64        `avro:"sequence_number"`
	FileSequenceNumber int64        `avro:"file_sequence_number"`
	Data               avroDataFile `avro:"data_file"`
}

type avroFieldSummary struct {
	ContainsNull bool    `avro:"contains_null"`
	ContainsNaN  *bool   `avro:"contains_nan"`
	LowerBound   *string `avro:"lower_bound"`
	UpperBound   *string `avro:"upper_bound"`
}

type avroFile struct {
	Path               string             `avro:"manifest_path"`
	Length             int64              `avro:"manifest_length"`
	SpecID             int32              `avro:"partition_spec_id"`
	Content            int32              `avro:"content"`
	SequenceNumber     int64              `avro:"sequence_number"`
	MinSequenceNumber  int64              `avro:"min_sequence_number"`
	AddedSnapshotID    int64              `avro:"added_snapshot_id"`
	AddedFilesCount    int32              `avro:"added_files_count"`
	ExistingFilesCount int32              `avro:"existing_files_count"`
	DeletedFilesCount  int32              `avro:"deleted_files_count"`
	AddedRowsCount     int64              `avro:"added_rows_count"`
	ExistingRowsCount  int64              `avro:"existing_rows_count"`
	DeletedRowsCount   int64              `avro:"deleted_rows_count"`
	Partitions         []avroFieldSummary `avro:"partitions"`
}

func toI64Entries(m map[int]int64) []i64Entry {
	out := make([]i64Entry, 0, len(m))
	for k, v := range m {
		out = append(out, i64Entry{Key: int32(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func fromI64Entries(s []i64Entry) map[int]int64 {
	if len(s) == 0 {
		return nil
	}
	out := make(map[int]int64, len(s))
	for _, e := range s {
		out[int(e.Key)] = e.Value
	}
	return out
}

func toBytesEntries(m map[int][]byte) []bytesEntry {
	out := make([]bytesEntry, 0, len(m))
	for k, v := range m {
		out = append(out, bytesEntry{Key: int32(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func fromBytesEntries(s []bytesEntry) map[int][]byte {
	if len(s) == 0 {
		return nil
	}
	out := make(map[int][]byte, len(s))
	for _, e := range s {
		out[int(e.Key)] = e.Value
	}
	return out
}

func toAvroEntry(e *Entry) avroEntry {
	d := e.Data
	partition := d.Partition
	if partition == nil {
		partition = map[string]string{}
	}
	eq := make([]int32, len(d.EqualityFieldIDs))
	for i, id := range d.EqualityFieldIDs {
		eq[i] = int32(id)
	}
	return avroEntry{
		Status:             int32(e.Status),
		SnapshotID:         e.SnapshotID,
		SequenceNumber:     e.SequenceNumber,
		FileSequenceNumber: e.FileSequenceNumber,
		Data: avroDataFile{
			Content:            int32(d.Content),
			FilePath:           d.FilePath,
			FileFormat:         d.FileFormat,
			Partition:          partition,
			RecordCount:        d.RecordCount,
			FileSizeBytes:      d.FileSizeBytes,
			ColumnSizes:        toI64Entries(d.ColumnSizes),
			ValueCounts:        toI64Entries(d.ValueCounts),
			NullValueCounts:    toI64Entries(d.NullValueCounts),
			NaNValueCounts:     toI64Entries(d.NaNValueCounts),
			LowerBounds:        toBytesEntries(d.LowerBounds),
			UpperBounds:        toBytesEntries(d.UpperBounds),
			EqualityIDs:        eq,
			ReferencedDataFile: d.ReferencedDataFile,
		},
	}
}

func fromAvroEntry(a *avroEntry) *Entry {
	eq := make([]int, 0, len(a.Data.EqualityIDs))
	for _, id := range a.Data.EqualityIDs {
		eq = append(eq, int(id))
	}
	partition := a.Data.Partition
	if len(partition) == 0 {
		partition = nil
	}
	return &Entry{
		Status:             Status(a.Status),
		SnapshotID:         a.SnapshotID,
		SequenceNumber:     a.SequenceNumber,
		FileSequenceNumber: a.FileSequenceNumber,
		Data: DataFile{
			Content:            Content(a.Data.Content),
			FilePath:           a.Data.FilePath,
			FileFormat:         a.Data.FileFormat,
			Partition:          partition,
			RecordCount:        a.Data.RecordCount,
			FileSizeBytes:      a.Data.FileSizeBytes,
			ColumnSizes:        fromI64Entries(a.Data.ColumnSizes),
			ValueCounts:        fromI64Entries(a.Data.ValueCounts),
			NullValueCounts:    fromI64Entries(a.Data.NullValueCounts),
			NaNValueCounts:     fromI64Entries(a.Data.NaNValueCounts),
			LowerBounds:        fromBytesEntries(a.Data.LowerBounds),
			UpperBounds:        fromBytesEntries(a.Data.UpperBounds),
			EqualityFieldIDs:   eq,
			ReferencedDataFile: a.Data.ReferencedDataFile,
		},
	}
}

func toAvroFile(f *File) avroFile {
	parts := make([]avroFieldSummary, len(f.Partitions))
	for i, p := range f.Partitions {
		parts[i] = avroFieldSummary(p)
	}
	return avroFile{
		Path:               f.Path,
		Length:             f.Length,
		SpecID:             int32(f.SpecID),
		Content:            int32(f.Content),
		SequenceNumber:     f.SequenceNumber,
		MinSequenceNumber:  f.MinSequenceNumber,
		AddedSnapshotID:    f.AddedSnapshotID,
		AddedFilesCount:    f.AddedFilesCount,
		ExistingFilesCount: f.ExistingFilesCount,
		DeletedFilesCount:  f.DeletedFilesCount,
		AddedRowsCount:     f.AddedRowsCount,
		ExistingRowsCount:  f.ExistingRowsCount,
		DeletedRowsCount:   f.DeletedRowsCount,
		Partitions:         parts,
	}
}

func fromAvroFile(a *avroFile) File {
	parts := make([]FieldSummary, len(a.Partitions))
	for i, p := range a.Partitions {
		parts[i] = FieldSummary(p)
	}
	return File{
		Path:               a.Path,
		Length:             a.Length,
		SpecID:             int(a.SpecID),
		Content:            ManifestContent(a.Content),
		SequenceNumber:     a.SequenceNumber,
		MinSequenceNumber:  a.MinSequenceNumber,
		AddedSnapshotID:    a.AddedSnapshotID,
		AddedFilesCount:    a.AddedFilesCount,
		ExistingFilesCount: a.ExistingFilesCount,
		DeletedFilesCount:  a.DeletedFilesCount,
		AddedRowsCount:     a.AddedRowsCount,
		ExistingRowsCount:  a.ExistingRowsCount,
		DeletedRowsCount:   a.DeletedRowsCount,
		Partitions:         parts,
	}
}

// WriteManifest encodes entries as an Avro object container file at path and
// returns the encoded length.
func WriteManifest(ctx context.Context, store storage.Storage, path string, entries []*Entry) (int64, error) {
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(manifestEntrySchema, &buf)
	if err != nil {
		return 0, fmt.Errorf("creating manifest encoder: %w", err)
	}
	for _, e := range entries {
		rec := toAvroEntry(e)
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("encoding manifest entry %s: %w", e.Data.FilePath, err)
		}
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("closing manifest encoder: %w", err)
	}
	if err := store.Write(ctx, path, bytes.NewReader(buf.Bytes())); err != nil {
		return 0, fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return int64(buf.Len()), nil
}

// ReadManifest decodes all entries of the manifest at path.
func ReadManifest(ctx context.Context, store storage.Storage, path string) ([]*Entry, error) {
	var out []*Entry
	for e, err := range Entries(ctx, store, path) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Entries returns a lazy, finite sequence of the manifest's entries. The
// sequence is restartable: each range re-reads the immutable file.
func Entries(ctx context.Context, store storage.Storage, path string) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		rc, err := store.Read(ctx, path)
		if err != nil {
			yield(nil, fmt.Errorf("opening manifest %s: %w", path, err))
			return
		}
		defer rc.Close()
		dec, err := ocf.NewDecoder(rc)
		if err != nil {
			yield(nil, fmt.Errorf("decoding manifest %s: %w", path, err))
			return
		}
		for dec.HasNext() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			var rec avroEntry
			if err := dec.Decode(&rec); err != nil {
				yield(nil, fmt.Errorf("decoding manifest entry in %s: %w", path, err))
				return
			}
			if !yield(fromAvroEntry(&rec), nil) {
				return
			}
		}
		if err := dec.Error(); err != nil {
			yield(nil, fmt.Errorf("decoding manifest %s: %w", path, err))
		}
	}
}

// WriteList writes the manifest list for a snapshot.
func WriteList(ctx context.Context, store storage.Storage, path string, files []File) error {
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(manifestFileSchema, &buf)
	if err != nil {
		return fmt.Errorf("creating manifest list encoder: %w", err)
	}
	for i := range files {
		rec := toAvroFile(&files[i])
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding manifest list entry %s: %w", files[i].Path, err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing manifest list encoder: %w", err)
	}
	if err := store.Write(ctx, path, bytes.NewReader(buf.Bytes())); err != nil {
		return fmt.Errorf("writing manifest list %s: %w", path, err)
	}
	return nil
}

// ReadList reads the manifest list at path.
func ReadList(ctx context.Context, store storage.Storage, path string) ([]File, error) {
	rc, err := store.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest list %s: %w", path, err)
	}
	defer rc.Close()
	dec, err := ocf.NewDecoder(rc)
	if err != nil {
		return nil, fmt.Errorf("decoding manifest list %s: %w", path, err)
	}
	var out []File
	for dec.HasNext() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec avroFile
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding manifest list entry in %s: %w", path, err)
		}
		out = append(out, fromAvroFile(&rec))
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decoding manifest list %s: %w", path, err)
	}
	return out, nil
}
