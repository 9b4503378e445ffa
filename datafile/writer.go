// Package datafile writes parquet data and delete files and describes them
// with the column statistics that scan planning prunes on.
package datafile

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"floe/manifest"
	"floe/storage"
	"floe/table"
)

// Row is one record keyed by column name.
type Row map[string]any

// Writer produces data files for one table, splitting rows across
// partitions using the default spec.
type Writer struct {
	meta   *table.TableMetadata
	store  storage.Storage
	schema *table.Schema
	pqs    *parquet.Schema
}

func NewWriter(meta *table.TableMetadata, store storage.Storage) (*Writer, error) {
	schema := meta.CurrentSchema()
	if schema == nil {
		return nil, fmt.Errorf("table %s has no current schema", meta.Location)
	}
	pqs, err := parquetSchema(schema)
	if err != nil {
		return nil, err
	}
	return &Writer{meta: meta, store: store, schema: schema, pqs: pqs}, nil
}

func parquetSchema(schema *table.Schema) (*parquet.Schema, error) {
	root := make(parquet.Group)
	for _, field := range schema.Fields {
		var node parquet.Node
		switch field.Type {
		case table.TypeInt:
			node = parquet.Leaf(parquet.Int32Type)
		case table.TypeLong:
			node = parquet.Leaf(parquet.Int64Type)
		case table.TypeString:
			node = parquet.String()
		case table.TypeDouble:
			node = parquet.Leaf(parquet.DoubleType)
		case table.TypeFloat:
			node = parquet.Leaf(parquet.FloatType)
		case table.TypeBoolean:
			node = parquet.Leaf(parquet.BooleanType)
		case table.TypeDate:
			node = parquet.Date()
		case table.TypeTimestamp, table.TypeTimestampTz:
			node = parquet.Timestamp(parquet.Millisecond)
		case table.TypeBinary:
			node = parquet.Leaf(parquet.ByteArrayType)
		default:
			return nil, fmt.Errorf("unsupported parquet type: %s", field.Type)
		}
		if !field.Required {
			node = parquet.Optional(node)
		}
		root[field.Name] = node
	}
	return parquet.NewSchema("table", root), nil
}

// WriteRows partitions rows under the default spec and writes one parquet
// file per partition. The returned descriptions carry per-column bounds
// and null counts.
func (w *Writer) WriteRows(ctx context.Context, rows []Row) ([]manifest.DataFile, error) {
	spec := w.meta.DefaultSpec()

	groups := make(map[string][]Row)
	partitions := make(map[string]map[string]string)
	var keys []string
	for _, row := range rows {
		partition, err := w.partitionOf(spec, row)
		if err != nil {
			return nil, err
		}
		key := partitionKey(partition)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
			partitions[key] = partition
		}
		groups[key] = append(groups[key], row)
	}
	sort.Strings(keys)

	out := make([]manifest.DataFile, 0, len(keys))
	for _, key := range keys {
		df, err := w.writeFile(ctx, groups[key], partitions[key])
		if err != nil {
			return nil, err
		}
		out = append(out, df)
	}
	return out, nil
}

func (w *Writer) partitionOf(spec *table.PartitionSpec, row Row) (map[string]string, error) {
	partition := make(map[string]string, len(spec.Fields))
	for _, pf := range spec.Fields {
		src, ok := w.schema.FieldByID(pf.SourceID)
		if !ok {
			return nil, fmt.Errorf("partition source field %d not in schema", pf.SourceID)
		}
		v, err := toValue(src.Type, row[src.Name])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", src.Name, err)
		}
		tr, err := table.ParseTransform(pf.Transform)
		if err != nil {
			return nil, err
		}
		result, ok := tr.Apply(v)
		if !ok || result.IsNull() {
			continue // null partition value is an absent key
		}
		formatted, ok := table.FormatValue(result)
		if !ok {
			continue
		}
		partition[pf.Name] = formatted
	}
	return partition, nil
}

func partitionKey(partition map[string]string) string {
	names := make([]string, 0, len(partition))
	for name := range partition {
		names = append(names, name)
	}
	sort.Strings(names)
	var b bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%s/", name, partition[name])
	}
	return b.String()
}

func (w *Writer) writeFile(ctx context.Context, rows []Row, partition map[string]string) (manifest.DataFile, error) {
	stats := newColumnStats(w.schema)
	records := make([]map[string]any, len(rows))
	for i, row := range rows {
		if err := stats.observe(row); err != nil {
			return manifest.DataFile{}, err
		}
		records[i] = row
	}

	var buf bytes.Buffer
	pw := parquet.NewGenericWriter[map[string]any](&buf, w.pqs)
	if _, err := pw.Write(records); err != nil {
		return manifest.DataFile{}, fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return manifest.DataFile{}, fmt.Errorf("closing parquet writer: %w", err)
	}

	path := fmt.Sprintf("%s/data/%s%s.parquet", w.meta.Location, partitionKey(partition), uuid.NewString())
	if err := w.store.Write(ctx, path, bytes.NewReader(buf.Bytes())); err != nil {
		return manifest.DataFile{}, fmt.Errorf("writing data file %s: %w", path, err)
	}

	df := manifest.DataFile{
		Content:       manifest.ContentData,
		FilePath:      path,
		FileFormat:    manifest.FormatParquet,
		Partition:     partition,
		RecordCount:   int64(len(rows)),
		FileSizeBytes: int64(buf.Len()),
	}
	stats.fill(&df)
	return df, nil
}

// PositionDelete marks one row of one data file as deleted.
type PositionDelete struct {
	Path string
	Pos  int64
}

var positionDeleteSchema = parquet.NewSchema("position-deletes", parquet.Group{
	"file_path": parquet.String(),
	"pos":       parquet.Leaf(parquet.Int64Type),
})

// WritePositionDeletes writes a position delete file scoped to partition.
// When every delete targets the same data file the description records it,
// which lets scans skip the delete for all other files.
func (w *Writer) WritePositionDeletes(ctx context.Context, partition map[string]string, deletes []PositionDelete) (manifest.DataFile, error) {
	if len(deletes) == 0 {
		return manifest.DataFile{}, fmt.Errorf("no position deletes to write")
	}
	sorted := make([]PositionDelete, len(deletes))
	copy(sorted, deletes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Pos < sorted[j].Pos
	})

	referenced := sorted[0].Path
	records := make([]map[string]any, len(sorted))
	for i, d := range sorted {
		if d.Path != referenced {
			referenced = ""
		}
		records[i] = map[string]any{"file_path": d.Path, "pos": d.Pos}
	}

	var buf bytes.Buffer
	pw := parquet.NewGenericWriter[map[string]any](&buf, positionDeleteSchema)
	if _, err := pw.Write(records); err != nil {
		return manifest.DataFile{}, fmt.Errorf("writing delete rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return manifest.DataFile{}, fmt.Errorf("closing delete writer: %w", err)
	}

	path := fmt.Sprintf("%s/data/%s%s-deletes.parquet", w.meta.Location, partitionKey(partition), uuid.NewString())
	if err := w.store.Write(ctx, path, bytes.NewReader(buf.Bytes())); err != nil {
		return manifest.DataFile{}, fmt.Errorf("writing delete file %s: %w", path, err)
	}

	return manifest.DataFile{
		Content:            manifest.ContentPositionDeletes,
		FilePath:           path,
		FileFormat:         manifest.FormatParquet,
		Partition:          partition,
		RecordCount:        int64(len(sorted)),
		FileSizeBytes:      int64(buf.Len()),
		ReferencedDataFile: referenced,
	}, nil
}
