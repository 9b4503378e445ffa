package table

import (
	"encoding/json"
	"fmt"
	"sort"

	"floe/floeerr"
)

// Supported metadata document format versions.
const (
	FormatV1 = 1
	FormatV2 = 2
)

// TableMetadata is the complete versioned state of a table. Instances are
// immutable: every commit produces a brand-new value built from the previous
// one through a Builder, never an in-place mutation.
type TableMetadata struct {
	FormatVersion      int                `json:"format-version"`
	TableUUID          string             `json:"table-uuid"`
	Location           string             `json:"location"`
	LastSequenceNumber int64              `json:"last-sequence-number"`
	LastUpdatedMs      int64              `json:"last-updated-ms"`
	LastColumnID       int                `json:"last-column-id"`
	Schemas            []Schema           `json:"schemas"`
	CurrentSchemaID    int                `json:"current-schema-id"`
	PartitionSpecs     []PartitionSpec    `json:"partition-specs"`
	DefaultSpecID      int                `json:"default-spec-id"`
	LastPartitionID    int                `json:"last-partition-id"`
	SortOrders         []SortOrder        `json:"sort-orders"`
	DefaultSortOrderID int                `json:"default-sort-order-id"`
	Properties         map[string]string  `json:"properties,omitempty"`
	CurrentSnapshotID  *int64             `json:"current-snapshot-id,omitempty"`
	Snapshots          []Snapshot         `json:"snapshots,omitempty"`
	SnapshotLog        []SnapshotLogEntry `json:"snapshot-log,omitempty"`
	MetadataLog        []MetadataLogEntry `json:"metadata-log,omitempty"`
}

// v1Doc carries the format-version 1 fields that were replaced by lists in
// version 2. They are normalized into the v2 shape during parsing.
type v1Doc struct {
	Schema        *Schema          `json:"schema"`
	PartitionSpec []PartitionField `json:"partition-spec"`
}

// ParseMetadata decodes and validates a metadata document.
func ParseMetadata(data []byte) (*TableMetadata, error) {
	var meta TableMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, &floeerr.ParseError{Err: err}
	}
	if meta.FormatVersion != FormatV1 && meta.FormatVersion != FormatV2 {
		return nil, &floeerr.ParseError{
			Field: "format-version",
			Err:   fmt.Errorf("unsupported version %d", meta.FormatVersion),
		}
	}
	if meta.FormatVersion == FormatV1 {
		var v1 v1Doc
		if err := json.Unmarshal(data, &v1); err != nil {
			return nil, &floeerr.ParseError{Err: err}
		}
		normalizeV1(&meta, &v1)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// normalizeV1 lifts the singular v1 schema and partition-spec fields into
// the v2 lists so the rest of the engine only sees one shape.
func normalizeV1(meta *TableMetadata, v1 *v1Doc) {
	if len(meta.Schemas) == 0 && v1.Schema != nil {
		s := *v1.Schema
		meta.Schemas = []Schema{s}
		meta.CurrentSchemaID = s.SchemaID
	}
	if len(meta.PartitionSpecs) == 0 {
		spec := PartitionSpec{SpecID: 0, Fields: v1.PartitionSpec}
		if spec.Fields == nil {
			spec.Fields = []PartitionField{}
		}
		meta.PartitionSpecs = []PartitionSpec{spec}
		meta.DefaultSpecID = spec.SpecID
	}
	if len(meta.SortOrders) == 0 {
		meta.SortOrders = []SortOrder{UnsortedOrder}
	}
	for _, f := range meta.PartitionSpecs[0].Fields {
		if f.FieldID > meta.LastPartitionID {
			meta.LastPartitionID = f.FieldID
		}
	}
}

// Marshal serializes the metadata document. parse(Marshal(m)) is logically
// equal to m; byte identity is not guaranteed.
func (m *TableMetadata) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return data, nil
}

func (m *TableMetadata) validate() error {
	missing := func(field string) error {
		return &floeerr.ParseError{Field: field, Err: fmt.Errorf("missing required field")}
	}
	if m.Location == "" {
		return missing("location")
	}
	if m.TableUUID == "" {
		return missing("table-uuid")
	}
	if len(m.Schemas) == 0 {
		return missing("schemas")
	}
	if _, ok := m.SchemaByID(m.CurrentSchemaID); !ok {
		return &floeerr.MetadataConsistencyError{
			Detail: fmt.Sprintf("current-schema-id %d not in schemas", m.CurrentSchemaID),
		}
	}
	if _, ok := m.SpecByID(m.DefaultSpecID); !ok {
		return &floeerr.MetadataConsistencyError{
			Detail: fmt.Sprintf("default-spec-id %d not in partition-specs", m.DefaultSpecID),
		}
	}
	seen := make(map[int64]bool, len(m.Snapshots))
	for _, s := range m.Snapshots {
		if seen[s.SnapshotID] {
			return &floeerr.MetadataConsistencyError{
				Detail: fmt.Sprintf("duplicate snapshot-id %d", s.SnapshotID),
			}
		}
		seen[s.SnapshotID] = true
		if s.SchemaID != nil {
			if _, ok := m.SchemaByID(*s.SchemaID); !ok {
				return &floeerr.MetadataConsistencyError{
					Detail: fmt.Sprintf("snapshot %d references unknown schema-id %d", s.SnapshotID, *s.SchemaID),
				}
			}
		}
		if m.FormatVersion >= FormatV2 && s.SequenceNumber > m.LastSequenceNumber {
			return &floeerr.MetadataConsistencyError{
				Detail: fmt.Sprintf("snapshot %d sequence-number %d exceeds last-sequence-number %d",
					s.SnapshotID, s.SequenceNumber, m.LastSequenceNumber),
			}
		}
	}
	if m.CurrentSnapshotID != nil && !seen[*m.CurrentSnapshotID] {
		return &floeerr.MetadataConsistencyError{
			Detail: fmt.Sprintf("current-snapshot-id %d not in snapshot list", *m.CurrentSnapshotID),
		}
	}
	return nil
}

// SchemaByID returns the schema with the given id.
func (m *TableMetadata) SchemaByID(id int) (*Schema, bool) {
	for i := range m.Schemas {
		if m.Schemas[i].SchemaID == id {
			return &m.Schemas[i], true
		}
	}
	return nil, false
}

// CurrentSchema returns the schema referenced by current-schema-id.
func (m *TableMetadata) CurrentSchema() *Schema {
	s, _ := m.SchemaByID(m.CurrentSchemaID)
	return s
}

// SpecByID returns the partition spec with the given id.
func (m *TableMetadata) SpecByID(id int) (*PartitionSpec, bool) {
	for i := range m.PartitionSpecs {
		if m.PartitionSpecs[i].SpecID == id {
			return &m.PartitionSpecs[i], true
		}
	}
	return nil, false
}

// DefaultSpec returns the spec referenced by default-spec-id.
func (m *TableMetadata) DefaultSpec() *PartitionSpec {
	s, _ := m.SpecByID(m.DefaultSpecID)
	return s
}

// SnapshotByID returns the snapshot with the given id.
func (m *TableMetadata) SnapshotByID(id int64) (*Snapshot, bool) {
	for i := range m.Snapshots {
		if m.Snapshots[i].SnapshotID == id {
			return &m.Snapshots[i], true
		}
	}
	return nil, false
}

// CurrentSnapshot returns the current snapshot, nil for empty tables.
func (m *TableMetadata) CurrentSnapshot() *Snapshot {
	if m.CurrentSnapshotID == nil {
		return nil
	}
	s, _ := m.SnapshotByID(*m.CurrentSnapshotID)
	return s
}

// SnapshotAsOf resolves the snapshot that was current at timestampMs by
// binary search on the ordered snapshot log. ok is false when the table had
// no snapshot at that time.
func (m *TableMetadata) SnapshotAsOf(timestampMs int64) (*Snapshot, bool) {
	// First log entry after the target time; the entry before it was current.
	i := sort.Search(len(m.SnapshotLog), func(i int) bool {
		return m.SnapshotLog[i].TimestampMs > timestampMs
	})
	if i == 0 {
		return nil, false
	}
	return m.SnapshotByID(m.SnapshotLog[i-1].SnapshotID)
}

// Equal reports logical equality of two metadata documents.
func (m *TableMetadata) Equal(other *TableMetadata) bool {
	a, err := json.Marshal(m)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

func (m *TableMetadata) clone() TableMetadata {
	out := *m
	out.Schemas = make([]Schema, len(m.Schemas))
	for i := range m.Schemas {
		out.Schemas[i] = m.Schemas[i].clone()
	}
	out.PartitionSpecs = make([]PartitionSpec, len(m.PartitionSpecs))
	for i := range m.PartitionSpecs {
		out.PartitionSpecs[i] = m.PartitionSpecs[i].clone()
	}
	out.SortOrders = make([]SortOrder, len(m.SortOrders))
	for i := range m.SortOrders {
		o := SortOrder{OrderID: m.SortOrders[i].OrderID, Fields: make([]SortField, len(m.SortOrders[i].Fields))}
		copy(o.Fields, m.SortOrders[i].Fields)
		out.SortOrders[i] = o
	}
	if m.Properties != nil {
		out.Properties = make(map[string]string, len(m.Properties))
		for k, v := range m.Properties {
			out.Properties[k] = v
		}
	}
	if m.CurrentSnapshotID != nil {
		id := *m.CurrentSnapshotID
		out.CurrentSnapshotID = &id
	}
	out.Snapshots = make([]Snapshot, len(m.Snapshots))
	for i := range m.Snapshots {
		out.Snapshots[i] = m.Snapshots[i].clone()
	}
	out.SnapshotLog = make([]SnapshotLogEntry, len(m.SnapshotLog))
	copy(out.SnapshotLog, m.SnapshotLog)
	out.MetadataLog = make([]MetadataLogEntry, len(m.MetadataLog))
	copy(out.MetadataLog, m.MetadataLog)
	return out
}
