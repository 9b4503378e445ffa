// Package storage is the byte-store boundary of the engine. Metadata,
// manifest and data files are written to fresh, unique-suffixed locations
// and never overwritten, so backends need no conditional-write support.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when reading a location that does not exist.
var ErrNotFound = errors.New("storage: not found")

type Storage interface {
	Write(ctx context.Context, filepath string, data io.Reader) error
	Read(ctx context.Context, filepath string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// ReadAll reads the whole object at filepath.
func ReadAll(ctx context.Context, s Storage, filepath string) ([]byte, error) {
	rc, err := s.Read(ctx, filepath)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
