package table

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Snapshot operations recorded in the snapshot summary.
const (
	OpAppend    = "append"
	OpOverwrite = "overwrite"
	OpDelete    = "delete"
	OpReplace   = "replace"
)

// Well-known snapshot summary counter keys.
const (
	SummaryAddedDataFiles   = "added-data-files"
	SummaryDeletedDataFiles = "deleted-data-files"
	SummaryAddedDeleteFiles = "added-delete-files"
	SummaryAddedRecords     = "added-records"
	SummaryTotalDataFiles   = "total-data-files"
	SummaryTotalRecords     = "total-records"
)

// Snapshot is an immutable, timestamped view of the table's live file set.
// It is never mutated after creation.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID *int64            `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMs      int64             `json:"timestamp-ms"`
	SchemaID         *int              `json:"schema-id,omitempty"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary,omitempty"`
}

// Operation returns the summary operation, defaulting to append for
// documents that omit it.
func (s *Snapshot) Operation() string {
	if op, ok := s.Summary["operation"]; ok {
		return op
	}
	return OpAppend
}

func (s *Snapshot) clone() Snapshot {
	out := *s
	if s.ParentSnapshotID != nil {
		p := *s.ParentSnapshotID
		out.ParentSnapshotID = &p
	}
	if s.SchemaID != nil {
		id := *s.SchemaID
		out.SchemaID = &id
	}
	if s.Summary != nil {
		out.Summary = make(map[string]string, len(s.Summary))
		for k, v := range s.Summary {
			out.Summary[k] = v
		}
	}
	return out
}

// SnapshotLogEntry records when a snapshot became the current one.
type SnapshotLogEntry struct {
	TimestampMs int64 `json:"timestamp-ms"`
	SnapshotID  int64 `json:"snapshot-id"`
}

// MetadataLogEntry records the location of a prior metadata version.
type MetadataLogEntry struct {
	TimestampMs  int64  `json:"timestamp-ms"`
	MetadataFile string `json:"metadata-file"`
}

// GenerateSnapshotID returns a fresh positive snapshot id derived from
// random uuid bits. Callers must still check for collisions against the
// snapshot log before use.
func GenerateSnapshotID() int64 {
	for {
		u := uuid.New()
		if id := snapshotIDFromBits(binary.BigEndian.Uint64(u[:8])); id > 0 {
			return id
		}
	}
}

// snapshotIDFromBits masks the sign bit so the id is never negative.
// Negating instead would map 1<<63 back onto itself.
func snapshotIDFromBits(bits uint64) int64 {
	return int64(bits & (1<<63 - 1))
}
