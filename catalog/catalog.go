// Package catalog tracks the current metadata location of each table. The
// only mutation is an atomic compare-and-swap of that location, which is
// what makes commits safe under concurrent writers.
package catalog

import (
	"context"
)

// Catalog is the table name authority. Implementations must make
// CompareAndSwap atomic: of any number of concurrent swaps from the same
// expected location, exactly one succeeds.
type Catalog interface {
	// CurrentLocation returns the metadata file location for the table,
	// or floeerr.ErrNoSuchTable.
	CurrentLocation(ctx context.Context, name string) (string, error)

	// CompareAndSwap advances the table's metadata pointer from expected
	// to next. A stale expected location fails with floeerr.ErrConflict.
	CompareAndSwap(ctx context.Context, name, expected, next string) error

	// CreateTable registers a table at its initial metadata location.
	CreateTable(ctx context.Context, name, metadataLocation string) error

	// DropTable removes the table from the catalog. Data and metadata
	// files are left in place.
	DropTable(ctx context.Context, name string) error

	// RenameTable moves the metadata pointer to a new name.
	RenameTable(ctx context.Context, from, to string) error
}
