package commit

import (
	"fmt"

	"floe/manifest"
	"floe/table"
)

// Operation is one atomic change to a table's file set. Each kind carries
// the snapshot operation it records and whether it can be reapplied on a
// base that moved underneath it.
type Operation interface {
	operation() string
	files() (added []manifest.DataFile, removed map[string]bool)
}

// Append adds data files. Appends commute with everything and always
// rebase.
type Append struct {
	Files []manifest.DataFile
}

func (a Append) operation() string { return table.OpAppend }

func (a Append) files() ([]manifest.DataFile, map[string]bool) {
	return a.Files, nil
}

// RowDelta adds data files together with the delete files produced by the
// same write, the merge-on-read shape of an update.
type RowDelta struct {
	Data    []manifest.DataFile
	Deletes []manifest.DataFile
}

func (r RowDelta) operation() string { return table.OpOverwrite }

func (r RowDelta) files() ([]manifest.DataFile, map[string]bool) {
	out := make([]manifest.DataFile, 0, len(r.Data)+len(r.Deletes))
	out = append(out, r.Data...)
	out = append(out, r.Deletes...)
	return out, nil
}

// Overwrite removes data files and adds their replacements in one
// snapshot.
type Overwrite struct {
	Add    []manifest.DataFile
	Remove []string
}

func (o Overwrite) operation() string { return table.OpOverwrite }

func (o Overwrite) files() ([]manifest.DataFile, map[string]bool) {
	return o.Add, pathSet(o.Remove)
}

// DeleteFiles removes whole data files.
type DeleteFiles struct {
	Remove []string
}

func (d DeleteFiles) operation() string { return table.OpDelete }

func (d DeleteFiles) files() ([]manifest.DataFile, map[string]bool) {
	return nil, pathSet(d.Remove)
}

// ReplaceFiles rewrites files without changing table contents, the
// compaction operation.
type ReplaceFiles struct {
	Add    []manifest.DataFile
	Remove []string
}

func (r ReplaceFiles) operation() string { return table.OpReplace }

func (r ReplaceFiles) files() ([]manifest.DataFile, map[string]bool) {
	return r.Add, pathSet(r.Remove)
}

func pathSet(paths []string) map[string]bool {
	if len(paths) == 0 {
		return nil
	}
	out := make(map[string]bool, len(paths))
	for _, p := range paths {
		out[p] = true
	}
	return out
}

// ConflictStrategy decides whether an operation may be reapplied after a
// concurrent commit advanced the table from oldBase to newBase. Returning
// an error aborts the commit instead of retrying.
type ConflictStrategy interface {
	CanRebase(op Operation, oldBase, newBase *table.TableMetadata) error
}

// defaultStrategy: additive operations always rebase. Operations that
// remove files rebase only over appends; if any intervening snapshot also
// deleted or rewrote files, overlap cannot be ruled out and the commit
// fails rather than guess.
type defaultStrategy struct{}

func (defaultStrategy) CanRebase(op Operation, oldBase, newBase *table.TableMetadata) error {
	if _, removed := op.files(); removed == nil {
		return nil
	}
	for _, snap := range newBase.Snapshots {
		if snap.SequenceNumber <= oldBase.LastSequenceNumber {
			continue
		}
		if snapOp := snap.Operation(); snapOp != table.OpAppend {
			return fmt.Errorf("concurrent %s snapshot %d may overlap removed files", snapOp, snap.SnapshotID)
		}
	}
	return nil
}
