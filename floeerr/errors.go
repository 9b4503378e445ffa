// Package floeerr defines the error taxonomy shared by all floe packages.
//
// Typed errors carry enough context to be self-describing in logs; callers
// classify them with errors.As and the sentinel values with errors.Is.
package floeerr

import (
	"errors"
	"fmt"
)

// ErrConflict is reported by a catalog compare-and-swap whose expected
// metadata location no longer matches the live pointer. It is an expected
// condition, not a failure: commit retries resolve it by reload-and-rebase.
var ErrConflict = errors.New("catalog: metadata location changed")

// ErrNoSuchTable is reported by catalog lookups for unknown tables.
var ErrNoSuchTable = errors.New("catalog: no such table")

// ParseError indicates a malformed metadata or manifest document.
type ParseError struct {
	Location string // document location, empty if parsed from memory
	Field    string // offending field, empty if structural
	Err      error
}

func (e *ParseError) Error() string {
	switch {
	case e.Location != "" && e.Field != "":
		return fmt.Sprintf("parsing %s: field %q: %v", e.Location, e.Field, e.Err)
	case e.Location != "":
		return fmt.Sprintf("parsing %s: %v", e.Location, e.Err)
	case e.Field != "":
		return fmt.Sprintf("parse: field %q: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("parse: %v", e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaEvolutionError indicates a rejected schema change, such as an
// incompatible type promotion or a duplicate field id.
type SchemaEvolutionError struct {
	Column string
	Reason string
}

func (e *SchemaEvolutionError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("schema evolution: %s", e.Reason)
	}
	return fmt.Sprintf("schema evolution: column %q: %s", e.Column, e.Reason)
}

// CommitConflictError is fatal: either a conflicting snapshot could not be
// rebased over, or the retry budget was exhausted.
type CommitConflictError struct {
	Table    string
	Attempts int
	Err      error
}

func (e *CommitConflictError) Error() string {
	return fmt.Sprintf("commit to %s failed after %d attempts: %v", e.Table, e.Attempts, e.Err)
}

func (e *CommitConflictError) Unwrap() error { return e.Err }

// CatalogUnavailableError is surfaced once a transient catalog failure has
// outlived the retry budget.
type CatalogUnavailableError struct {
	Table    string
	Attempts int
	Err      error
}

func (e *CatalogUnavailableError) Error() string {
	return fmt.Sprintf("catalog unavailable for %s after %d attempts: %v", e.Table, e.Attempts, e.Err)
}

func (e *CatalogUnavailableError) Unwrap() error { return e.Err }

// MetadataConsistencyError indicates corruption: a manifest or snapshot
// references a schema or partition spec absent from the table metadata.
// It is never auto-repaired.
type MetadataConsistencyError struct {
	Table  string
	Detail string
}

func (e *MetadataConsistencyError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("metadata inconsistency: %s", e.Detail)
	}
	return fmt.Sprintf("metadata inconsistency in %s: %s", e.Table, e.Detail)
}

// ScanError identifies the manifest or data file that aborted a scan.
type ScanError struct {
	Location string
	Err      error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scanning %s: %v", e.Location, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
