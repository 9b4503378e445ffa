package table

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"floe/floeerr"
)

func testMetadata(t *testing.T) *TableMetadata {
	t.Helper()
	meta, err := NewMetadata("s3://warehouse/db/events",
		[]Field{
			{ID: 1, Name: "id", Type: TypeLong, Required: true},
			{ID: 2, Name: "day", Type: TypeDate, Required: true},
			{ID: 3, Name: "payload", Type: TypeString},
		},
		[]PartitionField{
			{SourceID: 2, Name: "day", Transform: "identity"},
		},
	)
	require.NoError(t, err)
	return meta
}

func TestParseMetadata_RoundTrip(t *testing.T) {
	meta := testMetadata(t)

	next, err := NewBuilder(meta).
		SetProperties(map[string]string{"write.format.default": "parquet"}).
		AddSnapshot(Snapshot{
			SnapshotID:     GenerateSnapshotID(),
			SequenceNumber: 1,
			TimestampMs:    1700000000000,
			ManifestList:   "s3://warehouse/db/events/metadata/snap-1.avro",
			Summary:        map[string]string{"operation": OpAppend},
		}).
		Build()
	require.NoError(t, err)

	data, err := next.Marshal()
	require.NoError(t, err)

	parsed, err := ParseMetadata(data)
	require.NoError(t, err)
	require.True(t, next.Equal(parsed), "parse(serialize(m)) must be logically equal to m")
	require.Equal(t, int64(1), parsed.LastSequenceNumber)
	require.NotNil(t, parsed.CurrentSnapshotID)
}

func TestParseMetadata_V1Normalized(t *testing.T) {
	doc := []byte(`{
		"format-version": 1,
		"table-uuid": "9c12d441-03fe-4693-9a96-a0705ddf69c1",
		"location": "s3://warehouse/db/legacy",
		"last-updated-ms": 1600000000000,
		"last-column-id": 2,
		"schema": {"schema-id": 0, "fields": [
			{"id": 1, "name": "id", "type": "long", "required": true},
			{"id": 2, "name": "ts", "type": "timestamp", "required": false}
		]},
		"partition-spec": [
			{"source-id": 2, "field-id": 1000, "name": "ts_day", "transform": "day"}
		]
	}`)

	meta, err := ParseMetadata(doc)
	require.NoError(t, err)
	require.Len(t, meta.Schemas, 1)
	require.Equal(t, 0, meta.CurrentSchemaID)
	require.Len(t, meta.PartitionSpecs, 1)
	require.Equal(t, "day", meta.DefaultSpec().Fields[0].Transform)
	require.Equal(t, 1000, meta.LastPartitionID)
}

func TestParseMetadata_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"garbage", `{]`},
		{"unsupported version", `{"format-version": 7, "table-uuid": "u", "location": "l"}`},
		{"missing location", `{"format-version": 2, "table-uuid": "u", "schemas": [{"schema-id":0,"fields":[]}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMetadata([]byte(tc.doc))
			var parseErr *floeerr.ParseError
			require.Error(t, err)
			require.True(t, errors.As(err, &parseErr), "want ParseError, got %v", err)
		})
	}
}

func TestParseMetadata_DanglingCurrentSnapshot(t *testing.T) {
	meta := testMetadata(t)
	bad := meta.clone()
	id := int64(42)
	bad.CurrentSnapshotID = &id
	data, err := bad.Marshal()
	require.NoError(t, err)

	_, err = ParseMetadata(data)
	var consistency *floeerr.MetadataConsistencyError
	require.True(t, errors.As(err, &consistency))
}

func TestBuilder_DoesNotMutateBase(t *testing.T) {
	base := testMetadata(t)
	baseProps := len(base.Properties)
	baseSchemas := len(base.Schemas)

	_, err := NewBuilder(base).
		AddColumn("country", TypeString, false).
		SetProperties(map[string]string{"a": "b"}).
		Build()
	require.NoError(t, err)

	require.Len(t, base.Schemas, baseSchemas, "base metadata must never be mutated")
	require.Len(t, base.Properties, baseProps)
}

func TestBuilder_SequenceNumbersStrictlyIncrease(t *testing.T) {
	meta := testMetadata(t)
	for seq := int64(1); seq <= 3; seq++ {
		next, err := NewBuilder(meta).AddSnapshot(Snapshot{
			SnapshotID:     GenerateSnapshotID(),
			SequenceNumber: seq,
			TimestampMs:    1700000000000 + seq,
			ManifestList:   "ml",
		}).Build()
		require.NoError(t, err)
		meta = next
	}
	require.Equal(t, int64(3), meta.LastSequenceNumber)
	for i, s := range meta.Snapshots {
		require.Equal(t, int64(i+1), s.SequenceNumber)
	}

	// A stale sequence number is rejected.
	_, err := NewBuilder(meta).AddSnapshot(Snapshot{
		SnapshotID:     GenerateSnapshotID(),
		SequenceNumber: 3,
		TimestampMs:    1700000000010,
		ManifestList:   "ml",
	}).Build()
	require.Error(t, err)
}

func TestBuilder_RejectsDuplicateSnapshotID(t *testing.T) {
	meta := testMetadata(t)
	snap := Snapshot{SnapshotID: 77, SequenceNumber: 1, TimestampMs: 1, ManifestList: "ml"}
	meta, err := NewBuilder(meta).AddSnapshot(snap).Build()
	require.NoError(t, err)

	snap.SequenceNumber = 2
	_, err = NewBuilder(meta).AddSnapshot(snap).Build()
	require.Error(t, err)
}

func TestBuilder_ParentChain(t *testing.T) {
	meta := testMetadata(t)
	meta, err := NewBuilder(meta).AddSnapshot(Snapshot{
		SnapshotID: 1, SequenceNumber: 1, TimestampMs: 10, ManifestList: "ml1",
	}).Build()
	require.NoError(t, err)
	meta, err = NewBuilder(meta).AddSnapshot(Snapshot{
		SnapshotID: 2, SequenceNumber: 2, TimestampMs: 20, ManifestList: "ml2",
	}).Build()
	require.NoError(t, err)

	cur := meta.CurrentSnapshot()
	require.NotNil(t, cur.ParentSnapshotID)
	require.Equal(t, int64(1), *cur.ParentSnapshotID)
	first, _ := meta.SnapshotByID(1)
	require.Nil(t, first.ParentSnapshotID)
}

func TestSnapshotAsOf(t *testing.T) {
	meta := testMetadata(t)
	for i, ts := range []int64{100, 200, 300} {
		var err error
		meta, err = NewBuilder(meta).AddSnapshot(Snapshot{
			SnapshotID:     int64(i + 1),
			SequenceNumber: int64(i + 1),
			TimestampMs:    ts,
			ManifestList:   "ml",
		}).Build()
		require.NoError(t, err)
	}

	_, ok := meta.SnapshotAsOf(99)
	require.False(t, ok, "no snapshot before the first commit")

	s, ok := meta.SnapshotAsOf(250)
	require.True(t, ok)
	require.Equal(t, int64(2), s.SnapshotID)

	s, ok = meta.SnapshotAsOf(300)
	require.True(t, ok)
	require.Equal(t, int64(3), s.SnapshotID)
}

func TestBuilder_MetadataLogAppendOnlyAndTrim(t *testing.T) {
	meta := testMetadata(t)
	for i := range 3 {
		var err error
		meta, err = NewBuilder(meta).
			AppendMetadataLog("loc-"+string(rune('a'+i)), int64(i)).
			Build()
		require.NoError(t, err)
	}
	require.Len(t, meta.MetadataLog, 3)

	trimmed, err := NewBuilder(meta).TrimMetadataLog(1).Build()
	require.NoError(t, err)
	require.Len(t, trimmed.MetadataLog, 1)
	require.Equal(t, "loc-c", trimmed.MetadataLog[0].MetadataFile)
	require.Len(t, meta.MetadataLog, 3, "trim builds a new version, never edits the old one")
}

func TestGenerateSnapshotID_Positive(t *testing.T) {
	// The sign bit is masked rather than negated, which would map 1<<63
	// back onto itself.
	require.Equal(t, int64(5), snapshotIDFromBits(1<<63|5))
	require.Equal(t, int64(math.MaxInt64), snapshotIDFromBits(math.MaxUint64))
	require.Equal(t, int64(0), snapshotIDFromBits(1<<63))

	for i := 0; i < 64; i++ {
		require.Positive(t, GenerateSnapshotID())
	}
}
