package table

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"floe/floeerr"
)

// The first partition field id, leaving room below for column field ids.
const initialPartitionID = 999

// Builder derives a new immutable TableMetadata from a base. The base is
// deep-copied up front and never mutated; the first error sticks and is
// returned by Build.
type Builder struct {
	meta TableMetadata
	err  error
}

// NewBuilder starts a builder from an existing metadata version.
func NewBuilder(base *TableMetadata) *Builder {
	return &Builder{meta: base.clone()}
}

// NewMetadata creates the metadata of a brand-new, empty table.
func NewMetadata(location string, fields []Field, partitionFields []PartitionField) (*TableMetadata, error) {
	schema := Schema{SchemaID: 0, Fields: fields}
	b := &Builder{meta: TableMetadata{
		FormatVersion:   FormatV2,
		TableUUID:       uuid.New().String(),
		Location:        location,
		LastUpdatedMs:   time.Now().UnixMilli(),
		LastColumnID:    schema.HighestFieldID(),
		Schemas:         []Schema{schema},
		CurrentSchemaID: 0,
		PartitionSpecs:  []PartitionSpec{UnpartitionedSpec},
		SortOrders:      []SortOrder{UnsortedOrder},
		LastPartitionID: initialPartitionID,
	}}
	if err := checkFields(fields); err != nil {
		return nil, err
	}
	if len(partitionFields) > 0 {
		b.AddPartitionSpec(partitionFields)
	}
	return b.Build()
}

// AddSchema appends a new schema version and makes it current. Field ids
// must already be assigned and unique; last-column-id advances to cover
// them. The previous schema versions are retained so old snapshots remain
// interpretable.
func (b *Builder) AddSchema(fields []Field) *Builder {
	if b.err != nil {
		return b
	}
	if err := checkFields(fields); err != nil {
		b.err = err
		return b
	}
	maxID := 0
	for _, s := range b.meta.Schemas {
		if s.SchemaID > maxID {
			maxID = s.SchemaID
		}
	}
	schema := Schema{SchemaID: maxID + 1, Fields: fields}
	b.meta.Schemas = append(b.meta.Schemas, schema)
	b.meta.CurrentSchemaID = schema.SchemaID
	if high := schema.HighestFieldID(); high > b.meta.LastColumnID {
		b.meta.LastColumnID = high
	}
	return b
}

func checkFields(fields []Field) error {
	ids := make(map[int]string, len(fields))
	names := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !f.Type.Valid() {
			return &floeerr.SchemaEvolutionError{Column: f.Name, Reason: fmt.Sprintf("unsupported type %q", f.Type)}
		}
		if other, dup := ids[f.ID]; dup {
			return &floeerr.SchemaEvolutionError{
				Column: f.Name,
				Reason: fmt.Sprintf("duplicate field-id %d (also %q)", f.ID, other),
			}
		}
		if names[f.Name] {
			return &floeerr.SchemaEvolutionError{Column: f.Name, Reason: "duplicate column name"}
		}
		ids[f.ID] = f.Name
		names[f.Name] = true
	}
	return nil
}

// AddColumn appends a column to the current schema with the next field id.
func (b *Builder) AddColumn(name string, typ Type, required bool) *Builder {
	if b.err != nil {
		return b
	}
	cur := b.meta.CurrentSchema()
	if _, exists := cur.FieldByName(name); exists {
		b.err = &floeerr.SchemaEvolutionError{Column: name, Reason: "column already exists"}
		return b
	}
	fields := make([]Field, len(cur.Fields), len(cur.Fields)+1)
	copy(fields, cur.Fields)
	fields = append(fields, Field{
		ID:       b.meta.LastColumnID + 1,
		Name:     name,
		Type:     typ,
		Required: required,
	})
	return b.AddSchema(fields)
}

// DropColumn removes a column from the current schema only. Historical
// schema versions keep the field.
func (b *Builder) DropColumn(name string) *Builder {
	if b.err != nil {
		return b
	}
	cur := b.meta.CurrentSchema()
	if _, exists := cur.FieldByName(name); !exists {
		b.err = &floeerr.SchemaEvolutionError{Column: name, Reason: "no such column"}
		return b
	}
	fields := make([]Field, 0, len(cur.Fields)-1)
	for _, f := range cur.Fields {
		if f.Name != name {
			fields = append(fields, f)
		}
	}
	return b.AddSchema(fields)
}

// RenameColumn renames a column, preserving its field id.
func (b *Builder) RenameColumn(from, to string) *Builder {
	if b.err != nil {
		return b
	}
	cur := b.meta.CurrentSchema()
	if _, exists := cur.FieldByName(from); !exists {
		b.err = &floeerr.SchemaEvolutionError{Column: from, Reason: "no such column"}
		return b
	}
	fields := make([]Field, len(cur.Fields))
	copy(fields, cur.Fields)
	for i := range fields {
		if fields[i].Name == from {
			fields[i].Name = to
		}
	}
	return b.AddSchema(fields)
}

// UpdateColumnType promotes a column's type. Only the fixed promotion table
// is allowed; anything else fails.
func (b *Builder) UpdateColumnType(name string, to Type) *Builder {
	if b.err != nil {
		return b
	}
	cur := b.meta.CurrentSchema()
	field, exists := cur.FieldByName(name)
	if !exists {
		b.err = &floeerr.SchemaEvolutionError{Column: name, Reason: "no such column"}
		return b
	}
	if !CanPromote(field.Type, to) {
		b.err = &floeerr.SchemaEvolutionError{
			Column: name,
			Reason: fmt.Sprintf("cannot promote %s to %s", field.Type, to),
		}
		return b
	}
	if field.Type == to {
		return b
	}
	fields := make([]Field, len(cur.Fields))
	copy(fields, cur.Fields)
	for i := range fields {
		if fields[i].Name == name {
			fields[i].Type = to
		}
	}
	return b.AddSchema(fields)
}

// AddPartitionSpec appends a new spec and makes it the default. Partition
// field ids are assigned from last-partition-id when unset; source columns
// must exist in the current schema.
func (b *Builder) AddPartitionSpec(fields []PartitionField) *Builder {
	if b.err != nil {
		return b
	}
	cur := b.meta.CurrentSchema()
	assigned := make([]PartitionField, len(fields))
	copy(assigned, fields)
	lastPartitionID := b.meta.LastPartitionID
	for i := range assigned {
		if _, ok := cur.FieldByID(assigned[i].SourceID); !ok {
			b.err = &floeerr.SchemaEvolutionError{
				Column: assigned[i].Name,
				Reason: fmt.Sprintf("partition source-id %d not in current schema", assigned[i].SourceID),
			}
			return b
		}
		if _, err := ParseTransform(assigned[i].Transform); err != nil {
			b.err = fmt.Errorf("partition field %q: %w", assigned[i].Name, err)
			return b
		}
		if assigned[i].FieldID == 0 {
			lastPartitionID++
			assigned[i].FieldID = lastPartitionID
		} else if assigned[i].FieldID > lastPartitionID {
			lastPartitionID = assigned[i].FieldID
		}
	}
	maxID := 0
	for _, s := range b.meta.PartitionSpecs {
		if s.SpecID >= maxID {
			maxID = s.SpecID + 1
		}
	}
	spec := PartitionSpec{SpecID: maxID, Fields: assigned}
	b.meta.PartitionSpecs = append(b.meta.PartitionSpecs, spec)
	b.meta.DefaultSpecID = spec.SpecID
	b.meta.LastPartitionID = lastPartitionID
	return b
}

// AddSortOrder appends a new sort order and makes it the default.
func (b *Builder) AddSortOrder(fields []SortField) *Builder {
	if b.err != nil {
		return b
	}
	cur := b.meta.CurrentSchema()
	for _, f := range fields {
		if _, ok := cur.FieldByID(f.SourceID); !ok {
			b.err = &floeerr.SchemaEvolutionError{
				Reason: fmt.Sprintf("sort source-id %d not in current schema", f.SourceID),
			}
			return b
		}
	}
	maxID := 0
	for _, o := range b.meta.SortOrders {
		if o.OrderID >= maxID {
			maxID = o.OrderID + 1
		}
	}
	order := SortOrder{OrderID: maxID, Fields: fields}
	b.meta.SortOrders = append(b.meta.SortOrders, order)
	b.meta.DefaultSortOrderID = order.OrderID
	return b
}

// AddSnapshot appends a committed snapshot and makes it current. The
// snapshot's sequence number must be exactly last-sequence-number+1 and its
// id must not collide with any existing snapshot.
func (b *Builder) AddSnapshot(snap Snapshot) *Builder {
	if b.err != nil {
		return b
	}
	if _, exists := b.meta.SnapshotByID(snap.SnapshotID); exists {
		b.err = &floeerr.MetadataConsistencyError{
			Detail: fmt.Sprintf("snapshot-id %d already exists", snap.SnapshotID),
		}
		return b
	}
	if want := b.meta.LastSequenceNumber + 1; snap.SequenceNumber != want {
		b.err = &floeerr.MetadataConsistencyError{
			Detail: fmt.Sprintf("snapshot sequence-number %d, want %d", snap.SequenceNumber, want),
		}
		return b
	}
	if snap.SchemaID == nil {
		id := b.meta.CurrentSchemaID
		snap.SchemaID = &id
	}
	if cur := b.meta.CurrentSnapshot(); cur != nil && snap.ParentSnapshotID == nil {
		parent := cur.SnapshotID
		snap.ParentSnapshotID = &parent
	}
	b.meta.Snapshots = append(b.meta.Snapshots, snap)
	id := snap.SnapshotID
	b.meta.CurrentSnapshotID = &id
	b.meta.LastSequenceNumber = snap.SequenceNumber
	b.meta.LastUpdatedMs = snap.TimestampMs
	b.meta.SnapshotLog = append(b.meta.SnapshotLog, SnapshotLogEntry{
		TimestampMs: snap.TimestampMs,
		SnapshotID:  snap.SnapshotID,
	})
	return b
}

// SetProperties merges the given properties into the table properties.
func (b *Builder) SetProperties(props map[string]string) *Builder {
	if b.err != nil {
		return b
	}
	if b.meta.Properties == nil {
		b.meta.Properties = make(map[string]string, len(props))
	}
	for k, v := range props {
		b.meta.Properties[k] = v
	}
	return b
}

// AppendMetadataLog records the location of the metadata version this build
// replaces. The log is append-only; nothing here ever truncates it.
func (b *Builder) AppendMetadataLog(previousLocation string, timestampMs int64) *Builder {
	if b.err != nil || previousLocation == "" {
		return b
	}
	b.meta.MetadataLog = append(b.meta.MetadataLog, MetadataLogEntry{
		TimestampMs:  timestampMs,
		MetadataFile: previousLocation,
	})
	return b
}

// TrimMetadataLog is the explicit retention operation: it keeps only the
// most recent keep entries. It is never applied implicitly.
func (b *Builder) TrimMetadataLog(keep int) *Builder {
	if b.err != nil {
		return b
	}
	if excess := len(b.meta.MetadataLog) - keep; excess > 0 {
		b.meta.MetadataLog = b.meta.MetadataLog[excess:]
	}
	return b
}

// Build validates and returns the new metadata.
func (b *Builder) Build() (*TableMetadata, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.meta.LastUpdatedMs == 0 {
		b.meta.LastUpdatedMs = time.Now().UnixMilli()
	}
	if err := b.meta.validate(); err != nil {
		return nil, err
	}
	meta := b.meta.clone()
	return &meta, nil
}
