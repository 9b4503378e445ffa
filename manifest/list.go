package manifest

// ManifestContent separates manifests of data files from manifests of
// delete files.
type ManifestContent int32

const (
	ManifestData    ManifestContent = 0
	ManifestDeletes ManifestContent = 1
)

// FieldSummary aggregates one partition field across every entry of a
// manifest: bounds in the canonical string encoding, nil meaning unknown.
// It is what lets a scan prune a manifest without opening it.
type FieldSummary struct {
	ContainsNull bool
	ContainsNaN  *bool
	LowerBound   *string
	UpperBound   *string
}

// File is a manifest-list entry describing one manifest file.
type File struct {
	Path               string
	Length             int64
	SpecID             int
	Content            ManifestContent
	SequenceNumber     int64
	MinSequenceNumber  int64
	AddedSnapshotID    int64
	AddedFilesCount    int32
	ExistingFilesCount int32
	DeletedFilesCount  int32
	AddedRowsCount     int64
	ExistingRowsCount  int64
	DeletedRowsCount   int64
	Partitions         []FieldSummary
}

// LiveFilesCount is the number of entries contributing files to the
// snapshot.
func (f *File) LiveFilesCount() int32 {
	return f.AddedFilesCount + f.ExistingFilesCount
}
