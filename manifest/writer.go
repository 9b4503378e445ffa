package manifest

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"floe/floeerr"
	"floe/storage"
	"floe/table"
)

// Writer produces the manifests and manifest list of one new snapshot. All
// files it writes go to fresh uuid-suffixed locations; parent manifests that
// are untouched by the change are referenced, never rewritten.
type Writer struct {
	meta           *table.TableMetadata
	store          storage.Storage
	snapshotID     int64
	sequenceNumber int64
	commitUUID     string
	fieldsBySpec   map[int][]partitionFieldType
}

func NewWriter(meta *table.TableMetadata, store storage.Storage, snapshotID, sequenceNumber int64) *Writer {
	return &Writer{
		meta:           meta,
		store:          store,
		snapshotID:     snapshotID,
		sequenceNumber: sequenceNumber,
		commitUUID:     uuid.New().String(),
		fieldsBySpec:   make(map[int][]partitionFieldType),
	}
}

// partitionFieldType pairs a partition field with the type of its transform
// output, which is the type partition values and summaries are compared at.
type partitionFieldType struct {
	Name string
	Type table.Type
}

// fieldsForSpec resolves the partition field list of one spec. Summaries
// must be folded in the owning spec's field order, so a manifest written
// under an older spec keeps that spec's shape when it is rewritten.
func (w *Writer) fieldsForSpec(specID int) ([]partitionFieldType, error) {
	if fields, ok := w.fieldsBySpec[specID]; ok {
		return fields, nil
	}
	spec, ok := w.meta.SpecByID(specID)
	if !ok {
		return nil, &floeerr.MetadataConsistencyError{
			Detail: fmt.Sprintf("manifest references unknown partition-spec-id %d", specID),
		}
	}
	out := make([]partitionFieldType, len(spec.Fields))
	for i, pf := range spec.Fields {
		src, ok := w.sourceField(pf.SourceID)
		if !ok {
			return nil, &floeerr.MetadataConsistencyError{
				Detail: fmt.Sprintf("partition field %q references unknown source-id %d", pf.Name, pf.SourceID),
			}
		}
		tr, err := table.ParseTransform(pf.Transform)
		if err != nil {
			return nil, err
		}
		out[i] = partitionFieldType{Name: pf.Name, Type: tr.ResultType(src.Type)}
	}
	w.fieldsBySpec[specID] = out
	return out, nil
}

// sourceField looks a partition source column up by its stable field id,
// falling back to historical schemas for columns since dropped.
func (w *Writer) sourceField(id int) (table.Field, bool) {
	if f, ok := w.meta.CurrentSchema().FieldByID(id); ok {
		return f, true
	}
	for i := range w.meta.Schemas {
		if f, ok := w.meta.Schemas[i].FieldByID(id); ok {
			return f, true
		}
	}
	return table.Field{}, false
}

// WriteSnapshot writes new manifests for the added files, rewrites or
// carries forward the parent snapshot's manifests around removedPaths, and
// writes the manifest list. It returns the list location and the snapshot
// summary counters.
func (w *Writer) WriteSnapshot(ctx context.Context, added []DataFile, removedPaths map[string]bool) (string, map[string]string, error) {
	fields, err := w.fieldsForSpec(w.meta.DefaultSpecID)
	if err != nil {
		return "", nil, err
	}

	var dataFiles, deleteFiles []DataFile
	for _, f := range added {
		if f.IsDelete() {
			deleteFiles = append(deleteFiles, f)
		} else {
			dataFiles = append(dataFiles, f)
		}
	}

	var files []File
	manifestIdx := 0

	// One data manifest per partition group keeps aggregated bounds tight.
	for _, group := range groupByPartition(dataFiles) {
		f, err := w.writeNewManifest(ctx, group, ManifestData, fields, manifestIdx)
		if err != nil {
			return "", nil, err
		}
		files = append(files, f)
		manifestIdx++
	}
	if len(deleteFiles) > 0 {
		f, err := w.writeNewManifest(ctx, deleteFiles, ManifestDeletes, fields, manifestIdx)
		if err != nil {
			return "", nil, err
		}
		files = append(files, f)
		manifestIdx++
	}

	removedSeen := make(map[string]bool, len(removedPaths))
	var removedRecords int64

	if parent := w.meta.CurrentSnapshot(); parent != nil {
		parentFiles, err := ReadList(ctx, w.store, parent.ManifestList)
		if err != nil {
			return "", nil, err
		}
		for _, pf := range parentFiles {
			kept, rewritten, err := w.carryForward(ctx, pf, removedPaths, removedSeen, &manifestIdx, &removedRecords)
			if err != nil {
				return "", nil, err
			}
			if kept {
				files = append(files, rewritten)
			}
		}
	}

	for path := range removedPaths {
		if !removedSeen[path] {
			return "", nil, &floeerr.MetadataConsistencyError{
				Detail: fmt.Sprintf("removed file %s not found in current snapshot", path),
			}
		}
	}

	listPath := fmt.Sprintf("%s/metadata/snap-%d-%s.avro", w.meta.Location, w.snapshotID, w.commitUUID)
	if err := WriteList(ctx, w.store, listPath, files); err != nil {
		return "", nil, err
	}

	return listPath, w.summarize(files, dataFiles, deleteFiles, len(removedSeen), removedRecords), nil
}

func groupByPartition(files []DataFile) [][]DataFile {
	byKey := make(map[string][]DataFile)
	var keys []string
	for _, f := range files {
		k := f.PartitionKey()
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], f)
	}
	sort.Strings(keys)
	out := make([][]DataFile, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out
}

func (w *Writer) manifestPath(idx int) string {
	return fmt.Sprintf("%s/metadata/%s-m%d.avro", w.meta.Location, w.commitUUID, idx)
}

func (w *Writer) writeNewManifest(ctx context.Context, group []DataFile, content ManifestContent, fields []partitionFieldType, idx int) (File, error) {
	entries := make([]*Entry, len(group))
	var rows int64
	for i, f := range group {
		entries[i] = &Entry{
			Status:             StatusAdded,
			SnapshotID:         w.snapshotID,
			SequenceNumber:     w.sequenceNumber,
			FileSequenceNumber: w.sequenceNumber,
			Data:               f,
		}
		rows += f.RecordCount
	}
	path := w.manifestPath(idx)
	length, err := WriteManifest(ctx, w.store, path, entries)
	if err != nil {
		return File{}, err
	}
	summaries, err := foldSummaries(entries, fields)
	if err != nil {
		return File{}, err
	}
	return File{
		Path:              path,
		Length:            length,
		SpecID:            w.meta.DefaultSpecID,
		Content:           content,
		SequenceNumber:    w.sequenceNumber,
		MinSequenceNumber: w.sequenceNumber,
		AddedSnapshotID:   w.snapshotID,
		AddedFilesCount:   int32(len(entries)),
		AddedRowsCount:    rows,
		Partitions:        summaries,
	}, nil
}

// carryForward keeps a parent manifest untouched when none of its files are
// removed, rewrites it when some are, and drops it when all are.
func (w *Writer) carryForward(ctx context.Context, pf File, removedPaths, removedSeen map[string]bool, manifestIdx *int, removedRecords *int64) (bool, File, error) {
	if len(removedPaths) == 0 || pf.Content == ManifestDeletes {
		return true, pf, nil
	}

	entries, err := ReadManifest(ctx, w.store, pf.Path)
	if err != nil {
		return false, File{}, err
	}

	var survivors, removed []*Entry
	for _, e := range entries {
		if !e.Live() {
			continue
		}
		if removedPaths[e.Data.FilePath] {
			removedSeen[e.Data.FilePath] = true
			*removedRecords += e.Data.RecordCount
			removed = append(removed, e)
		} else {
			survivors = append(survivors, e)
		}
	}
	if len(removed) == 0 {
		return true, pf, nil
	}
	if len(survivors) == 0 {
		// Fully superseded.
		return false, File{}, nil
	}

	rewritten := make([]*Entry, 0, len(entries))
	minSeq := int64(math.MaxInt64)
	var existingRows int64
	for _, e := range survivors {
		rewritten = append(rewritten, &Entry{
			Status:             StatusExisting,
			SnapshotID:         e.SnapshotID,
			SequenceNumber:     e.SequenceNumber,
			FileSequenceNumber: e.FileSequenceNumber,
			Data:               e.Data,
		})
		if e.SequenceNumber < minSeq {
			minSeq = e.SequenceNumber
		}
		existingRows += e.Data.RecordCount
	}
	var deletedRows int64
	for _, e := range removed {
		rewritten = append(rewritten, &Entry{
			Status:             StatusDeleted,
			SnapshotID:         w.snapshotID,
			SequenceNumber:     e.SequenceNumber,
			FileSequenceNumber: e.FileSequenceNumber,
			Data:               e.Data,
		})
		deletedRows += e.Data.RecordCount
	}

	// The rewritten manifest keeps its original spec id, so its summaries
	// stay in that spec's field order, not the default spec's.
	fields, err := w.fieldsForSpec(pf.SpecID)
	if err != nil {
		return false, File{}, err
	}

	path := w.manifestPath(*manifestIdx)
	*manifestIdx++
	length, err := WriteManifest(ctx, w.store, path, rewritten)
	if err != nil {
		return false, File{}, err
	}
	summaries, err := foldSummaries(rewritten, fields)
	if err != nil {
		return false, File{}, err
	}
	return true, File{
		Path:               path,
		Length:             length,
		SpecID:             pf.SpecID,
		Content:            pf.Content,
		SequenceNumber:     w.sequenceNumber,
		MinSequenceNumber:  minSeq,
		AddedSnapshotID:    w.snapshotID,
		ExistingFilesCount: int32(len(survivors)),
		DeletedFilesCount:  int32(len(removed)),
		ExistingRowsCount:  existingRows,
		DeletedRowsCount:   deletedRows,
		Partitions:         summaries,
	}, nil
}

// foldSummaries aggregates per-partition-field bounds across live entries.
func foldSummaries(entries []*Entry, fields []partitionFieldType) ([]FieldSummary, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	summaries := make([]FieldSummary, len(fields))
	lowers := make([]table.Value, len(fields))
	uppers := make([]table.Value, len(fields))
	for i := range lowers {
		lowers[i] = table.Null()
		uppers[i] = table.Null()
	}

	for _, e := range entries {
		if !e.Live() {
			continue
		}
		for i, f := range fields {
			raw, ok := e.Data.Partition[f.Name]
			if !ok {
				summaries[i].ContainsNull = true
				continue
			}
			v, err := table.ParseValue(f.Type, raw)
			if err != nil {
				return nil, fmt.Errorf("partition value %q for field %q: %w", raw, f.Name, err)
			}
			if v.Kind == table.KindFloat && math.IsNaN(v.Float) {
				nan := true
				summaries[i].ContainsNaN = &nan
				continue
			}
			if cmp, ok := table.Compare(v, lowers[i]); !ok || cmp < 0 {
				lowers[i] = v
			}
			if cmp, ok := table.Compare(v, uppers[i]); !ok || cmp > 0 {
				uppers[i] = v
			}
		}
	}

	for i := range summaries {
		if s, ok := table.FormatValue(lowers[i]); ok {
			low := s
			summaries[i].LowerBound = &low
		}
		if s, ok := table.FormatValue(uppers[i]); ok {
			up := s
			summaries[i].UpperBound = &up
		}
	}
	return summaries, nil
}

func (w *Writer) summarize(files []File, dataFiles, deleteFiles []DataFile, removedFiles int, removedRecords int64) map[string]string {
	var addedRecords int64
	for _, f := range dataFiles {
		addedRecords += f.RecordCount
	}
	var totalFiles int64
	var totalRecords int64
	for _, f := range files {
		if f.Content != ManifestData {
			continue
		}
		totalFiles += int64(f.LiveFilesCount())
		totalRecords += f.AddedRowsCount + f.ExistingRowsCount
	}
	return map[string]string{
		table.SummaryAddedDataFiles:   fmt.Sprintf("%d", len(dataFiles)),
		table.SummaryAddedDeleteFiles: fmt.Sprintf("%d", len(deleteFiles)),
		table.SummaryDeletedDataFiles: fmt.Sprintf("%d", removedFiles),
		table.SummaryAddedRecords:     fmt.Sprintf("%d", addedRecords),
		table.SummaryTotalDataFiles:   fmt.Sprintf("%d", totalFiles),
		table.SummaryTotalRecords:     fmt.Sprintf("%d", totalRecords),
	}
}
