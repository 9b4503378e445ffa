// Package manifest reads and writes the two-level file index of a snapshot:
// a manifest list pointing at manifest files, each enumerating data or
// delete files with the statistics scans prune on.
package manifest

import (
	"sort"
	"strings"
)

// Entry status within a manifest.
type Status int32

const (
	StatusExisting Status = 0
	StatusAdded    Status = 1
	StatusDeleted  Status = 2
)

// Content of a file tracked by a manifest entry.
type Content int32

const (
	ContentData            Content = 0
	ContentPositionDeletes Content = 1
	ContentEqualityDeletes Content = 2
)

// File formats.
const (
	FormatParquet = "PARQUET"
	FormatAvro    = "AVRO"
)

// DataFile describes one immutable data or delete file. Partition maps
// partition field names to canonical string values; an absent key is a null
// partition value. Bounds are keyed by field id and encoded with
// table.EncodeBound.
type DataFile struct {
	Content            Content
	FilePath           string
	FileFormat         string
	Partition          map[string]string
	RecordCount        int64
	FileSizeBytes      int64
	ColumnSizes        map[int]int64
	ValueCounts        map[int]int64
	NullValueCounts    map[int]int64
	NaNValueCounts     map[int]int64
	LowerBounds        map[int][]byte
	UpperBounds        map[int][]byte
	EqualityFieldIDs   []int
	ReferencedDataFile string // position deletes scoped to one data file
}

// IsDelete reports whether the file carries row-level deletes rather than
// data.
func (d *DataFile) IsDelete() bool {
	return d.Content == ContentPositionDeletes || d.Content == ContentEqualityDeletes
}

// PartitionKey returns a canonical grouping key for the file's partition
// tuple.
func (d *DataFile) PartitionKey() string {
	if len(d.Partition) == 0 {
		return ""
	}
	names := make([]string, 0, len(d.Partition))
	for name := range d.Partition {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(d.Partition[name])
	}
	return b.String()
}

// SamePartition reports whether two files carry an identical partition
// tuple.
func (d *DataFile) SamePartition(other *DataFile) bool {
	if len(d.Partition) != len(other.Partition) {
		return false
	}
	for k, v := range d.Partition {
		if ov, ok := other.Partition[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Entry is one manifest row: a file plus its lifecycle status and the
// sequence number at which it became live.
type Entry struct {
	Status             Status
	SnapshotID         int64
	SequenceNumber     int64 // data sequence number
	FileSequenceNumber int64
	Data               DataFile
}

// Live reports whether the entry contributes to the snapshot's file set.
func (e *Entry) Live() bool { return e.Status != StatusDeleted }
